package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type logrusAdapter struct {
	entry *logrus.Entry
	out   *MultiWriter
}

func newLogrusAdapter(cfg *LoggerConfig) (*logrusAdapter, error) {
	a := &logrusAdapter{entry: logrus.NewEntry(logrus.New())}
	if err := a.configure(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// configure applies level, pattern and appenders to the underlying logrus
// logger in place, so entries derived earlier with WithField follow along.
// The previous appenders are closed once logrus has switched away from them.
func (l *logrusAdapter) configure(cfg *LoggerConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	out, err := buildAppenders(cfg.Appenders)
	if err != nil {
		return err
	}

	root := l.entry.Logger
	root.SetFormatter(&formatter{
		pattern: cfg.Pattern,
		time:    cfg.Time,
	})
	root.SetOutput(out)
	root.SetLevel(level)

	prev := l.out
	l.out = out
	if prev != nil {
		return prev.Close()
	}
	return nil
}

func buildAppenders(appenders []AppenderConfig) (*MultiWriter, error) {
	out := NewMultiWriter()
	for _, a := range appenders {
		switch strings.ToLower(a.Type) {
		case "console", "":
			out.Add(os.Stdout)
		case "file":
			if a.File.Filename == "" {
				out.Close()
				return nil, fmt.Errorf("file appender requires 'filename'")
			}
			out.AddFileAppender(a.File)
		default:
			out.Close()
			return nil, fmt.Errorf("unsupported appender type: %s (must be console or file)", a.Type)
		}
	}
	return out, nil
}

func (l *logrusAdapter) Print(args ...interface{})                 { l.entry.Print(args...) }
func (l *logrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusAdapter) IsInfoEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.InfoLevel)
}
