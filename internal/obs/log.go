// Package obs wires the process-wide structured logger. Every other package
// pulls its logger from here via Component rather than constructing its own,
// keeping a single shared sink — a configured zerolog.Logger — instead of
// each package reaching for the stdlib `log` package on its own.
package obs

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Init configures the global logger. pretty=true renders human-readable
// console output (local development); pretty=false emits line-delimited JSON
// (production). Safe to call multiple times; only the first call takes
// effect, matching a one-shot startup wiring called once at process start.
func Init(pretty bool, level string) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)

		if pretty {
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
				With().Timestamp().Logger()
			return
		}
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
}

// Component returns a logger pre-tagged with the given component name, the
// structured equivalent of a plain "[Component] message" log prefix.
func Component(name string) zerolog.Logger {
	ensureInit()
	return logger.With().Str("component", name).Logger()
}

// Raw returns the shared base logger with no component tag.
func Raw() zerolog.Logger {
	ensureInit()
	return logger
}

func ensureInit() {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
}
