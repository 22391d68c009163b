package log

// Logger receives protocol events. A nil Logger disables capture.
type Logger interface {
	// Log is called from reader and writer goroutines concurrently and
	// must not block.
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger fans events out to several loggers in order.
type MultiLogger []Logger

// Log passes event to every logger.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

// Combine returns a logger writing to all of loggers. Nil and NoopLogger
// entries are dropped and nested MultiLoggers are flattened; with nothing
// left the result is nil, with one logger it is that logger.
func Combine(loggers ...Logger) Logger {
	var out MultiLogger
	for _, l := range loggers {
		switch l := l.(type) {
		case nil, NoopLogger:
		case MultiLogger:
			out = append(out, l...)
		default:
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

var (
	_ Logger = NoopLogger{}
	_ Logger = MultiLogger(nil)
)
