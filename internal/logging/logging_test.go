package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   Debug,
		"DEBUG":   Debug,
		"warn":    Warn,
		"warning": Warn,
		"error":   Error,
		"":        Info,
		"bogus":   Info,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerGatesBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Warn)
	l.Debugf("should not appear")
	l.Infof("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below minimum level, got %q", buf.String())
	}
	l.Warnf("warning: %d", 1)
	if !strings.Contains(buf.String(), "warning: 1") {
		t.Errorf("expected warning message, got %q", buf.String())
	}
}

func TestLoggerNilReceiverSafe(t *testing.T) {
	var l *Logger
	l.Infof("should not panic")
}

func TestLoggerLevelPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Debug)
	l.Errorf("oops")
	if !strings.Contains(buf.String(), "[ERROR]") {
		t.Errorf("expected [ERROR] prefix, got %q", buf.String())
	}
}
