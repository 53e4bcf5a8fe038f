// Package artifact persists annotated images as transient disk artifacts.
// Artifacts are addressed by generated filename and swept by age; nothing
// here is a durable document store.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kanjilens/kanjilens/pkg/config"
	"github.com/kanjilens/kanjilens/pkg/logging"
)

// Store writes annotated images under one directory.
type Store struct {
	dir    string
	maxAge time.Duration
}

// NewStore creates the artifact directory if needed.
func NewStore(cfg *config.ArtifactConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %q: %w", cfg.Dir, err)
	}
	return &Store{dir: cfg.Dir, maxAge: cfg.MaxAge}, nil
}

// Save writes the image and returns its path. The filename carries a
// timestamp plus a short document ID so concurrent runs never collide.
func (s *Store) Save(documentID string, image []byte) (string, error) {
	short := documentID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("annotated_%s_%s.png", time.Now().UTC().Format("20060102_150405"), short)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}

// Sweep removes annotated artifacts older than the configured age and
// returns how many were deleted. Failures on individual files are logged
// and skipped.
func (s *Store) Sweep() int {
	logger := logging.GetLogger("artifact")

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", s.dir).Msg("Artifact sweep could not read directory")
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-s.maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "annotated_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to remove stale artifact")
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("Swept stale artifacts")
	}
	return removed
}
