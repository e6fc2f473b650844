// Package logger configures the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format selects the log output encoding.
type Format string

const (
	Console Format = "console"
	JSON    Format = "json"
)

// Options holds logger settings as they arrive from flags or env.
type Options struct {
	Level  string
	Format Format
}

// New builds a logger writing to w.
func New(w io.Writer, opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logger: %w", err)
		}
		level = l
	}

	switch opts.Format {
	case "", Console:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	case JSON:
	default:
		return zerolog.Nop(), fmt.Errorf("logger: unknown format %q", opts.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// Setup installs a stderr logger as the global log.Logger.
func Setup(opts Options) error {
	l, err := New(os.Stderr, opts)
	if err != nil {
		return err
	}
	log.Logger = l
	return nil
}
