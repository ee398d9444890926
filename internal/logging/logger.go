// Package logging holds the process-wide structured logger.
//
// Call Init once at startup; packages that log before that get a stderr text
// logger at INFO.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init replaces the process-wide logger. A nil writer means stderr.
func Init(level slog.Level, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Discard silences all output. Tests use it to keep go test quiet.
func Discard() {
	Init(slog.LevelError+4, io.Discard)
}

// Logger returns the current logger, creating the default one on first use.
func Logger() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger
}

// WithComponent tags records with the emitting subsystem.
func WithComponent(component string) *slog.Logger {
	return Logger().With("component", component)
}

// WithTx tags records with a transaction id.
func WithTx(component string, txID uint64) *slog.Logger {
	return Logger().With("component", component, "tx_id", txID)
}

// WithTable tags records with a table name and id.
func WithTable(component, name string, tableID uint64) *slog.Logger {
	return Logger().With("component", component, "table", name, "table_id", tableID)
}

// WithPage tags records with a heap page coordinate.
func WithPage(component string, tableID uint64, page int) *slog.Logger {
	return Logger().With("component", component, "table_id", tableID, "page", page)
}
