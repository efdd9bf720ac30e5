package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog Logger writing to stdout.
// dev uses a human-friendly console writer, JSON otherwise.
func NewLogger(dev bool) zerolog.Logger {
	return newLogger(os.Stdout, dev)
}

func newLogger(w io.Writer, dev bool) zerolog.Logger {
	if dev {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}
