package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. Development gets human-readable
// console output at debug level; everything else emits JSON at info.
func New(env string) zerolog.Logger {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if env == "development" {
		return log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
	}
	return log.Level(zerolog.InfoLevel)
}
