// Package logging configures the process-wide zerolog logger the rest of
// the engine is handed by value.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config carries the config file's debug directive and any overrides the
// command-line flags apply on top of it.
type Config struct {
	Debug   bool
	Console bool // human-readable console output instead of JSON lines
	Writer  io.Writer
}

// New returns a configured zerolog.Logger: InfoLevel normally,
// DebugLevel when Config.Debug is set, matching the config file's
// debug=0|1 directive.
func New(cfg Config) zerolog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
