package log

// Logger receives device log events. Components accept nil and fall back
// to NoopLogger.
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent use
	// and must not block: Log is called from sighting and timer callbacks.
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

var _ Logger = NoopLogger{}
