// Package logging builds the process logger. Output goes to stderr so that
// stdout stays free for telemetry when the line channel is stdio.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Config struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`    // debug | info | warn | error
	Format string `koanf:"format" yaml:"format" json:"format"` // text | json
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q", s)
	}
}

// New returns a logger writing to w and installs it as the slog default.
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %q", cfg.Format)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}
