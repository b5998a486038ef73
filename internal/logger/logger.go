package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
)

// New creates the service logger. Development gets console output, everything else JSON.
func New(cfg *configuration.Config) zerolog.Logger {
	if !cfg.Server.LogEnabled {
		return zerolog.Nop()
	}
	var out io.Writer = os.Stdout
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", cfg.Server.ServiceName).
		Str("environment", cfg.Server.Environment).
		Logger().
		Level(parseLevel(cfg.Server.LogLevel))
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
