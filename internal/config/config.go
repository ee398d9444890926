package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultPageSize is the byte size of every heap page unless overridden.
	DefaultPageSize = 4096
	// DefaultCachePages is the buffer pool capacity in pages.
	DefaultCachePages = 50

	minPageSize = 64
	maxPageSize = 1 << 20
)

// Config carries the process-wide knobs shared by storage, the buffer pool and
// the lock manager.
type Config struct {
	PageSize    int
	CachePages  int
	LockTimeout time.Duration // zero waits indefinitely
	LogLevel    slog.Level
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		PageSize:   DefaultPageSize,
		CachePages: DefaultCachePages,
		LogLevel:   slog.LevelInfo,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.PageSize < minPageSize || c.PageSize > maxPageSize {
		return fmt.Errorf("config: page size %d outside [%d, %d]", c.PageSize, minPageSize, maxPageSize)
	}
	if c.CachePages <= 0 {
		return fmt.Errorf("config: cache capacity must be positive, got %d", c.CachePages)
	}
	if c.LockTimeout < 0 {
		return errors.New("config: lock timeout cannot be negative")
	}
	return nil
}

// ParseLevel converts a textual log level into its slog equivalent.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", s)
	}
}
