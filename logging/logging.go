// Package logging sets up the top-level structured logger used by System
// and its immediate collaborators, mirroring the teacher's pkg/logging.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a colorized slog.Logger writing to w at the given level.
// Passing a nil w defaults to os.Stderr.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	})
	return slog.New(handler)
}

// Default returns the standard stderr, info-level logger used when a caller
// does not supply their own.
func Default() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo)
}
