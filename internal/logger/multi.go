package logger

// Leveled is the formatted logging surface shared by ConsoleLogger and
// FileLogger.
type Leveled interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Multi fans every message out to multiple loggers, typically console plus
// file. Nil entries are skipped.
type Multi struct {
	loggers []Leveled
}

// NewMulti creates a Multi over the given loggers.
func NewMulti(loggers ...Leveled) *Multi {
	var active []Leveled
	for _, l := range loggers {
		if l != nil {
			active = append(active, l)
		}
	}
	return &Multi{loggers: active}
}

// Tracef fans out a trace-level message.
func (m *Multi) Tracef(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Tracef(format, args...)
	}
}

// Debugf fans out a debug-level message.
func (m *Multi) Debugf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Debugf(format, args...)
	}
}

// Infof fans out an info-level message.
func (m *Multi) Infof(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Infof(format, args...)
	}
}

// Warnf fans out a warn-level message.
func (m *Multi) Warnf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Warnf(format, args...)
	}
}

// Errorf fans out an error-level message.
func (m *Multi) Errorf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Errorf(format, args...)
	}
}
