package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"goalkeeper/internal/config"
)

// New builds a logger writing to w (stderr when nil) at the given level.
// format is "console" for human output or "json" for one object per line.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	switch format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	case "json":
		w = zerolog.SyncWriter(w)
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// FromConfig applies the log section of cfg.
func FromConfig(w io.Writer, cfg *config.Config) (zerolog.Logger, error) {
	return New(w, cfg.Log.Level, cfg.Log.Format)
}
