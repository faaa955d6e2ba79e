package helpers

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

type panicLogHook struct {
	output io.Writer
	levels []logrus.Level
}

func (s *panicLogHook) Levels() []logrus.Level {
	return s.levels
}

func (s *panicLogHook) Fire(e *logrus.Entry) error {
	_, _ = fmt.Fprintln(s.output, e.Message)

	panic(e)
}

func makeLevelsToPanic(levels ...logrus.Level) func() {
	logger := logrus.StandardLogger()
	hooks := make(logrus.LevelHooks)

	hooks.Add(&panicLogHook{output: logger.Out, levels: levels})
	oldHooks := logger.ReplaceHooks(hooks)

	return func() {
		logger.ReplaceHooks(oldHooks)
	}
}

// MakeFatalToPanic turns Fatal logs of the standard logger into panics
// carrying the *logrus.Entry, so code calling Fatal can be tested. The
// returned function restores the previous hooks.
func MakeFatalToPanic() func() {
	return makeLevelsToPanic(logrus.FatalLevel)
}

func MakeWarningToPanic() func() {
	return makeLevelsToPanic(logrus.WarnLevel)
}
