package networking

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger receives structured log events. Arguments after msg are key/value
// pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// LogLevel is the verbosity of a dispatcher's logging.
type LogLevel int

const (
	LogOff LogLevel = iota
	LogError
	LogWarning
	LogDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogOff:
		return "off"
	case LogError:
		return "error"
	case LogWarning:
		return "warning"
	case LogDebug:
		return "debug"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// ParseLogLevel parses "off", "error", "warning" (or "warn") and "debug".
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogOff, nil
	case "error":
		return LogError, nil
	case "warning", "warn":
		return LogWarning, nil
	case "debug":
		return LogDebug, nil
	default:
		return LogOff, fmt.Errorf("unknown log level %q", s)
	}
}

type leveledLogger struct {
	inner Logger
	level LogLevel
}

// NewLeveledLogger drops events above level before they reach inner. Info
// events are emitted at LogDebug only.
func NewLeveledLogger(inner Logger, level LogLevel) Logger {
	if inner == nil || level == LogOff {
		return NopLogger{}
	}
	return &leveledLogger{inner: inner, level: level}
}

func (l *leveledLogger) Debug(msg string, args ...interface{}) {
	if l.level >= LogDebug {
		l.inner.Debug(msg, args...)
	}
}

func (l *leveledLogger) Info(msg string, args ...interface{}) {
	if l.level >= LogDebug {
		l.inner.Info(msg, args...)
	}
}

func (l *leveledLogger) Warn(msg string, args ...interface{}) {
	if l.level >= LogWarning {
		l.inner.Warn(msg, args...)
	}
}

func (l *leveledLogger) Error(msg string, args ...interface{}) {
	if l.level >= LogError {
		l.inner.Error(msg, args...)
	}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// SimpleLogger writes plain lines to stderr.
type SimpleLogger struct {
	out *log.Logger
}

// NewSimpleLogger returns a console logger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{out: log.New(os.Stderr, "networking ", log.LstdFlags)}
}

func (l *SimpleLogger) Debug(msg string, args ...interface{}) { l.print("DEBUG", msg, args) }
func (l *SimpleLogger) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l *SimpleLogger) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l *SimpleLogger) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }

func (l *SimpleLogger) print(level, msg string, args []interface{}) {
	var b strings.Builder
	b.WriteString("[" + level + "] " + msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	if len(args)%2 == 1 {
		fmt.Fprintf(&b, " %v", args[len(args)-1])
	}
	l.out.Println(b.String())
}

// SlogLogger adapts a *slog.Logger.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, args ...interface{}) { s.l.Debug(msg, args...) }
func (s *SlogLogger) Info(msg string, args ...interface{})  { s.l.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...interface{})  { s.l.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...interface{}) { s.l.Error(msg, args...) }

// defaultLogger is used when no logger was configured. It writes text records
// to the standard logger's output and lets through everything level allows.
func defaultLogger(level LogLevel) Logger {
	handler := slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{Level: level.slogLevel()})
	return NewSlogLogger(slog.New(handler))
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarning:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelError + 4
	}
}

// LogrusLogger adapts a *logrus.Logger; key/value pairs become fields.
type LogrusLogger struct {
	l *logrus.Logger
}

func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.New()
	}
	return &LogrusLogger{l: l}
}

func (r *LogrusLogger) Debug(msg string, args ...interface{}) { r.entry(args).Debug(msg) }
func (r *LogrusLogger) Info(msg string, args ...interface{})  { r.entry(args).Info(msg) }
func (r *LogrusLogger) Warn(msg string, args ...interface{})  { r.entry(args).Warn(msg) }
func (r *LogrusLogger) Error(msg string, args ...interface{}) { r.entry(args).Error(msg) }

func (r *LogrusLogger) entry(args []interface{}) *logrus.Entry {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	if len(args)%2 == 1 {
		fields["!BADKEY"] = args[len(args)-1]
	}
	return r.l.WithFields(fields)
}
