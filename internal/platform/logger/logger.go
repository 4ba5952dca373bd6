package logger

import (
	"log/slog"
	"os"
)

// New returns the shared structured logger. Services log through slog with
// contextual attributes; the handler format is swappable here.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
