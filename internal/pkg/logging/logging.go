// Package logging configures the process wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New parses level and returns a logger writing to w. Pretty output is meant
// for terminals; otherwise one JSON object per line is written.
func New(w io.Writer, level string, pretty bool) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(level); err != nil {
			return zerolog.Nop(), err
		}
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Setup installs a logger on stderr as the global zerolog logger
func Setup(level string, pretty bool) error {
	l, err := New(os.Stderr, level, pretty)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(l.GetLevel())
	log.Logger = l
	return nil
}

// Component returns the global logger tagged with name
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
