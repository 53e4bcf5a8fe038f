package pipeline

import (
	"errors"
	"fmt"
)

// FatalStageError aborts the whole run. Only the OCR stage produces it:
// with no recognized text nothing downstream can operate.
type FatalStageError struct {
	Stage Stage
	Err   error
}

func (e *FatalStageError) Error() string {
	return fmt.Sprintf("pipeline failed at stage %s: %v", e.Stage, e.Err)
}

func (e *FatalStageError) Unwrap() error { return e.Err }

// StageUnavailableError records that a whole non-first stage was skipped.
// It never propagates past the orchestrator; it becomes Document metadata.
type StageUnavailableError struct {
	Stage Stage
	Err   error
}

func (e *StageUnavailableError) Error() string {
	return fmt.Sprintf("stage %s unavailable: %v", e.Stage, e.Err)
}

func (e *StageUnavailableError) Unwrap() error { return e.Err }

// ErrMalformedResponse marks a collaborator response that failed shape
// validation. A stage seeing it treats the collaborator as unavailable
// rather than accepting a partial result.
var ErrMalformedResponse = errors.New("malformed collaborator response")

// IsFatal reports whether err carries a FatalStageError.
func IsFatal(err error) bool {
	var fatal *FatalStageError
	return errors.As(err, &fatal)
}
