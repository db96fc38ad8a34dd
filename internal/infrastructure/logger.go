package infrastructure

import (
	"os"
	"strings"
	"time"

	"github.com/architeacher/svc-event-outbox/internal/config"
	"github.com/rs/zerolog"
)

// Logger wraps zerolog to keep the logging dependency behind one type.
type Logger struct {
	zerolog.Logger
}

// New creates a logger configured from the service's logging settings.
func New(cfg config.LoggingConfig) Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	logger := zerolog.New(os.Stdout)
	if strings.EqualFold(cfg.Format, "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return Logger{
		Logger: logger.Level(level).With().Timestamp().Logger(),
	}
}
