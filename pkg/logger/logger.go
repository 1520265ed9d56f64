// Package logger adapts structured logging to libraries that expect a
// printf-style *log.Logger.
package logger

import (
	"fmt"
	"log"
	"log/slog"
	"os"
)

// New returns a stdout logger with a component prefix. FromSlog falls back to it
// when no slog base is given.
func New(component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(os.Stdout, prefix, log.LstdFlags|log.Lshortfile)
}

// FromSlog routes *log.Logger output into base at info level, tagged with component.
func FromSlog(base *slog.Logger, component string) *log.Logger {
	if base == nil {
		return New(component)
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), slog.LevelInfo)
}
