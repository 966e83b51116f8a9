package platform

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. Console output is
// human-readable and goes to stderr; otherwise JSON lines go to stderr.
func InitLogger(level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stderr
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", "escopt").Logger()
	log.Logger = logger
	return logger
}

// LogFatal logs err and exits.
func LogFatal(logger zerolog.Logger, msg string, err error) {
	logger.Fatal().Err(err).Msg(msg)
}
