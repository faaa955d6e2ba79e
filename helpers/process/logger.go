package process

import (
	"github.com/sirupsen/logrus"
)

//go:generate mockery --name=Logger --inpackage --with-expecter=false
type Logger interface {
	WithFields(fields logrus.Fields) Logger
	Warn(args ...interface{})
}

type logrusLogger struct {
	entry logrus.FieldLogger
}

// NewLogrusLogger adapts a logrus logger to Logger.
func NewLogrusLogger(logger logrus.FieldLogger) Logger {
	return &logrusLogger{entry: logger}
}

func (l *logrusLogger) WithFields(fields logrus.Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}

func (l *logrusLogger) Warn(args ...interface{}) {
	l.entry.Warn(args...)
}
