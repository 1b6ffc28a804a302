package sync

import (
	"log/slog"

	"github.com/voidstore/storesync/logging"
)

// sub returns a child logger tagged with the given component name.
func sub(component string) *slog.Logger {
	return logging.Sub(component)
}

// logEnabled guards expensive DEBUG logging in hot paths.
func logEnabled(level slog.Level) bool {
	return logging.Enabled(level)
}
