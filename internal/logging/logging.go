// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options select level, format and color of log output.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // console, json
	NoColor bool
	Out     io.Writer // defaults to stderr
}

// InitDefault installs an info-level console logger on stderr. Used before
// flags are parsed.
func InitDefault() {
	l, _ := New(Options{})
	log.Logger = l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init installs the logger described by opts as the global logger.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	log.Logger = l
	zerolog.SetGlobalLevel(l.GetLevel())
	return nil
}

// New builds a logger without touching global state.
func New(opts Options) (zerolog.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil || level == zerolog.NoLevel {
			return zerolog.Nop(), fmt.Errorf("unknown log level %q", opts.Level)
		}
	}

	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, NoColor: opts.NoColor, TimeFormat: time.Kitchen}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q (console, json)", opts.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
