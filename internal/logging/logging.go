// Package logging builds the zerolog logger of the code generator from the
// logging section of its configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/modbustcp/config"
)

// Setup creates a logger writing to stderr, so that generated output can go
// to stdout, and to Loki when enabled.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	return SetupWriter(cfg, os.Stderr)
}

// SetupWriter is Setup with the local log output replaced by out.
func SetupWriter(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, func(), error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	local, err := formatWriter(cfg.Format, out)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	writers := []io.Writer{local}
	cleanup := func() {}
	if cfg.Loki.Enabled {
		lw, err := newLokiWriter(cfg.Loki)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		writers = append(writers, lw)
		cleanup = lw.stop
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Str("service", serviceName).Logger().
		Level(level)
	return logger, cleanup, nil
}

func parseLevel(raw string) (zerolog.Level, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(text)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return level, nil
}

func formatWriter(format string, out io.Writer) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return out, nil
	case "text":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}, nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}
