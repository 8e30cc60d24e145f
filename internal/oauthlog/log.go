// Package oauthlog wires the application log of oauth2gate.
package oauthlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Yueren-Wang/oauth2gate/internal/oauth2"
)

// Options configures the process-wide application logger.
type Options struct {
	// Prefix is prepended to every application log line. Empty disables
	// the prefix.
	Prefix string
	// Output is where application log entries are written. Defaults to
	// os.Stderr.
	Output io.Writer
	// JSON switches the application log to JSON formatting.
	JSON bool
	// Level is the minimum logrus level emitted.
	Level logrus.Level
}

type prefixFormatter struct {
	prefix    string
	formatter logrus.Formatter
}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	b, err := f.formatter.Format(e)
	if err != nil {
		return nil, err
	}
	return append([]byte(f.prefix), b...), nil
}

// Init configures logrus's standard logger with o. It should be called once
// at process start, before any Logger is built.
func Init(o Options) {
	if o.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if o.Prefix != "" {
		logrus.SetFormatter(&prefixFormatter{o.Prefix, logrus.StandardLogger().Formatter})
	}

	out := o.Output
	if out == nil {
		out = os.Stderr
	}
	logrus.SetOutput(out)

	if o.Level != 0 {
		logrus.SetLevel(o.Level)
	}
}

// EntryLogger adapts a *logrus.Entry to oauth2.Logger, letting callers
// attach fixed fields (request id, remote addr, ...) once per request via
// WithFields and thread the result through a Filter.
type EntryLogger struct {
	entry *logrus.Entry
}

// New returns an EntryLogger writing through logrus's standard logger with
// no fields attached.
func New() *EntryLogger {
	return &EntryLogger{entry: logrus.NewEntry(logrus.StandardLogger())}
}

// WithFields returns a new EntryLogger with fields merged into the
// receiver's, matching logrus.Entry.WithFields' accumulation semantics.
func (l *EntryLogger) WithFields(fields logrus.Fields) *EntryLogger {
	return &EntryLogger{entry: l.entry.WithFields(fields)}
}

func (l *EntryLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *EntryLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

var _ oauth2.Logger = (*EntryLogger)(nil)
