package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

func envConsole() bool { return strings.ToLower(os.Getenv("APP_ENV")) == "dev" }

func init() { console = envConsole() }

// NewZerologLogger creates a ZerologLogger writing to stdout. The format is
// console when configured so or when APP_ENV is dev, JSON otherwise. All logs
// include the provided component field.
func NewZerologLogger(component string) Logger {
	mu.RLock()
	c := console
	mu.RUnlock()
	var out io.Writer = os.Stdout
	if c {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out, component)
}

// NewWithWriter builds a ZerologLogger on w.
func NewWithWriter(w io.Writer, component string) Logger {
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
