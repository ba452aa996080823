// Package logging builds the zerolog loggers shared by the server, the client
// and gensecret.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a logger writing to stderr. Unknown levels fall back to info.
func New(level, format, component string) zerolog.Logger {
	return NewWriter(os.Stderr, level, format, component)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, level, format, component string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	l := zerolog.New(w).Level(lvl).With().Timestamp()
	if component != "" {
		l = l.Str("component", component)
	}
	return l.Logger()
}
