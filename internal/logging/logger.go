package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var root zerolog.Logger

func init() {
	root = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Setup configures the global logger from the configured level and output mode.
func Setup(level string, pretty bool) {
	lvl := parseLevel(level)
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger()
	} else {
		root = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
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
