package logging

import (
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global zerolog logger with the given level and output format.
// Unknown levels fall back to info.
func InitLogger(level string, human bool) {
	InitLoggerTo(os.Stdout, level, human)
}

// InitLoggerTo is InitLogger writing to w.
func InitLoggerTo(w io.Writer, level string, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano          // always initialize base logger with timestamp.
	base := zerolog.New(w).With().Timestamp().Logger() // initialize base logger.
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339Nano,
		}) // select output format.
	} else {
		log.Logger = base // use JSON logger.
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// LogRequest logs a received invocation with structured fields.
func LogRequest(
	clientIP string,
	module string,
	operation string,
	payload []byte,
	activeConns int,
) {
	log.Info().
		Str("event", "request_received").
		Str("client_ip", clientIP).
		Str("module", module).
		Str("operation", operation).
		Str("request_hex", hex.EncodeToString(payload)).
		Int("active_connections", activeConns).
		Msg("received invocation")
}

// LogResponse logs a sent response with structured fields.
func LogResponse(
	clientIP string,
	module string,
	operation string,
	response []byte,
	failed bool,
	duration time.Duration,
) {
	log.Info().
		Str("event", "response_sent").
		Str("client_ip", clientIP).
		Str("module", module).
		Str("operation", operation).
		Str("response_hex", hex.EncodeToString(response)).
		Bool("failed", failed).
		Dur("duration", duration).
		Msg("sent response")
}
