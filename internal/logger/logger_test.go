package logger

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)

	l := New()
	l.SetLevel(LogLevelWarn)
	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	l.Error("error line")

	got := buf.String()
	if strings.Contains(got, "debug line") || strings.Contains(got, "info line") {
		t.Errorf("lines below warn were written: %q", got)
	}
	if !strings.Contains(got, "warn line") || !strings.Contains(got, "error line") {
		t.Errorf("expected warn and error lines, got %q", got)
	}
}

func TestWithErrorAndFields(t *testing.T) {
	buf := capture(t)

	l := New().WithField("job_id", "abc").WithField("segment", 2)
	l.WithError(errors.New("boom")).Warn("synthesis failed")

	got := buf.String()
	for _, want := range []string{"synthesis failed", "job_id=abc", "segment=2", "boom"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"WARNING": LogLevelWarn,
		"error":   LogLevelError,
		"":        LogLevelInfo,
		"verbose": LogLevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
