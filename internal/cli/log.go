package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return level, nil
}

// NewLogger builds the process logger. Each verbose step lowers the level
// by one slog step, down to debug.
func NewLogger(w io.Writer, lc LogConfig, verbose int) *slog.Logger {
	level, err := ParseLevel(lc.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	level = max(slog.LevelDebug, level-slog.Level(4*verbose))

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
