package log

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

type RunnerTextFormatter struct {
	// Force disabling colors.
	DisableColors bool

	// The fields are sorted by default for a consistent output. For applications
	// that log extremely frequently and don't use the JSON formatter this may not
	// be desired.
	DisableSorting bool
}

var levelDefinitions = map[logrus.Level]struct {
	color  *color.Color
	prefix string
}{
	logrus.TraceLevel: {
		color: color.New(color.FgWhite),
	},
	logrus.DebugLevel: {
		color: color.New(color.FgWhite, color.Bold),
	},
	logrus.WarnLevel: {
		color:  color.New(color.FgYellow),
		prefix: "WARNING: ",
	},
	logrus.ErrorLevel: {
		color:  color.New(color.FgRed, color.Bold),
		prefix: "ERROR: ",
	},
	logrus.FatalLevel: {
		color:  color.New(color.FgRed, color.Bold),
		prefix: "FATAL: ",
	},
	logrus.PanicLevel: {
		color:  color.New(color.FgRed, color.Bold),
		prefix: "PANIC: ",
	},
}

func (f *RunnerTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := new(bytes.Buffer)
	f.print(b, entry)
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func (f *RunnerTextFormatter) print(b *bytes.Buffer, entry *logrus.Entry) {
	paint, prefix := f.getColorAndPrefix(entry)
	indentLength := 50 - len(prefix)

	b.WriteString(paint(fmt.Sprintf("%s%-*s", prefix, indentLength, entry.Message)))
	b.WriteByte(' ')
	for _, k := range f.prepareKeys(entry) {
		fmt.Fprintf(b, " %s=%v", paint(k), entry.Data[k])
	}
}

func (f *RunnerTextFormatter) getColorAndPrefix(entry *logrus.Entry) (func(string) string, string) {
	plain := func(s string) string { return s }

	definition, ok := levelDefinitions[entry.Level]
	if !ok {
		return plain, ""
	}

	if f.DisableColors || definition.color == nil {
		return plain, definition.prefix
	}

	// color.NoColor only looks at stdout, logs are written to stderr
	c := *definition.color
	c.EnableColor()

	return func(s string) string { return c.Sprint(s) }, definition.prefix
}

func (f *RunnerTextFormatter) prepareKeys(entry *logrus.Entry) []string {
	keys := make([]string, 0, len(entry.Data))

	for k := range entry.Data {
		keys = append(keys, k)
	}

	if !f.DisableSorting {
		sort.Strings(keys)
	}

	return keys
}

func SetRunnerFormatter() {
	logrus.SetFormatter(new(RunnerTextFormatter))
}
