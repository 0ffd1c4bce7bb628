package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger can log structured debug information. It is implemented by
// ZerologLogger and other adapters.
type StructuredLogger interface {
	Debugw(msg string, fields map[string]any)
}

// Discard drops every message. Core components use it when no logger is set.
type Discard struct{}

func (Discard) Debugf(string, ...any)         {}
func (Discard) Debugw(string, map[string]any) {}
func (Discard) Infof(string, ...any)          {}
func (Discard) Warnf(string, ...any)          {}
func (Discard) Errorf(string, ...any)         {}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard{}
	}
	return l
}
