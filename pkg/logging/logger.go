package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Format  string `json:"format"`  // json, pretty
	Console bool   `json:"console"` // log to console
}

// DefaultLogConfig returns sensible defaults
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:   "info",
		Format:  "json",
		Console: true,
	}
}

// SetupLogger configures the global logger
func SetupLogger(config *LogConfig) error {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if config.Format == "pretty" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	log.Info().
		Str("level", config.Level).
		Str("format", config.Format).
		Msg("Logger initialized")

	return nil
}

// GetLogger returns a contextual logger for a component
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// GetPipelineLogger returns a logger scoped to one pipeline stage
func GetPipelineLogger(documentID, stage string) zerolog.Logger {
	return log.With().
		Str("document_id", documentID).
		Str("stage", stage).
		Logger()
}

// GetCollaboratorLogger returns a logger for external engine calls
func GetCollaboratorLogger(engine, operation string) zerolog.Logger {
	return log.With().
		Str("engine", engine).
		Str("operation", operation).
		Logger()
}
