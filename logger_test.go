package networking

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(msg string, args ...interface{}) { r.add("DEBUG", msg, args) }
func (r *recordingLogger) Info(msg string, args ...interface{})  { r.add("INFO", msg, args) }
func (r *recordingLogger) Warn(msg string, args ...interface{})  { r.add("WARN", msg, args) }
func (r *recordingLogger) Error(msg string, args ...interface{}) { r.add("ERROR", msg, args) }

func (r *recordingLogger) add(level, msg string, args []interface{}) {
	r.lines = append(r.lines, level+" "+msg+" "+fmt.Sprint(args...))
}

func (r *recordingLogger) joined() string {
	return strings.Join(r.lines, "\n")
}

func TestLeveledLogger(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{LogOff, nil},
		{LogError, []string{"ERROR"}},
		{LogWarning, []string{"WARN", "ERROR"}},
		{LogDebug, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			rec := &recordingLogger{}
			l := NewLeveledLogger(rec, tt.level)
			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			if len(rec.lines) != len(tt.want) {
				t.Fatalf("Expected %d lines, got %d: %v", len(tt.want), len(rec.lines), rec.lines)
			}
			for i, prefix := range tt.want {
				if !strings.HasPrefix(rec.lines[i], prefix) {
					t.Errorf("Expected line %d to be %s, got %q", i, prefix, rec.lines[i])
				}
			}
		})
	}
}

func TestLeveledLoggerNilInner(t *testing.T) {
	if _, ok := NewLeveledLogger(nil, LogDebug).(NopLogger); !ok {
		t.Error("Expected a nil inner logger to yield NopLogger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"off":     LogOff,
		"none":    LogOff,
		"error":   LogError,
		"WARNING": LogWarning,
		"warn":    LogWarning,
		" debug ": LogDebug,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q): expected %s, got %s", in, want, got)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}

func TestLogLevelString(t *testing.T) {
	if got := LogLevel(9).String(); got != "LogLevel(9)" {
		t.Errorf("Expected LogLevel(9), got %q", got)
	}
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Warn("Circuit breaker open", "name", "api")

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "name=api") {
		t.Errorf("Unexpected slog output %q", out)
	}
}

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	l := NewLogrusLogger(base)
	l.Error("Request failed", "status", 500, "dangling")

	out := buf.String()
	for _, want := range []string{"level=error", "status=500", "!BADKEY=dangling", `msg="Request failed"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in logrus output %q", want, out)
		}
	}
}
