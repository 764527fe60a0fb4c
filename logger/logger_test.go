package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger("polystore")
	l.SetOutput(&buf)
	l.SetLevel(LogLevelDebug)

	tests := []struct {
		level   LogLevel
		logFunc func(string, ...any)
		message string
	}{
		{LogLevelDebug, l.Debug, "debug message"},
		{LogLevelInfo, l.Info, "info message"},
		{LogLevelWarn, l.Warn, "warn message"},
		{LogLevelError, l.Error, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			buf.Reset()
			tt.logFunc(tt.message)
			output := buf.String()
			assert.Contains(t, output, tt.level.String())
			assert.Contains(t, output, tt.message)
		})
	}
}

func TestDefaultLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger("polystore")
	l.SetOutput(&buf)
	l.SetLevel(LogLevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len(), "expected no output below WARN")

	l.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNullLogger(t *testing.T) {
	n := NewNullLogger()
	n.Debug("noop")
	n.SetLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, n.GetLevel(), "expected level to be stored even though nothing is written")
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger("")
	l.SetOutput(&buf)
	l.SetLevel(LogLevelDebug)

	SetGlobal(l)
	defer SetGlobal(NewNullLogger())

	Warn("global warning")
	assert.Contains(t, buf.String(), "global warning")
}
