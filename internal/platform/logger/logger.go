// Package logger constructs the service-wide zerolog logger.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level       string // debug | info | warn | error; empty defaults to info
	Environment string // "development" enables the console writer
	ServiceName string
	Version     string
}

// Logger wraps zerolog.Logger so call sites can grow helpers without
// re-importing zerolog everywhere.
type Logger struct {
	zerolog.Logger
}

// New builds a logger with service identity fields attached to every event.
func New(cfg Config) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := parseLevel(cfg.Level)

	var log zerolog.Logger
	if cfg.Environment == "development" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}

	log = log.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()

	return &Logger{Logger: log}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
