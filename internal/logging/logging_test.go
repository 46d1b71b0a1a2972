package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) expected error")
	}
}

func TestSetupJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	l, err := Setup(buf, "json", "warn")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	l.Info("filtered")
	Role(l, "tracker").Warn("out of order", "expected", 3, "received", 5)

	out := buf.String()
	if strings.Contains(out, "filtered") {
		t.Error("INFO should be filtered at WARN level")
	}
	if !strings.Contains(out, `"role":"tracker"`) {
		t.Errorf("expected role attribute, got: %s", out)
	}
	if !strings.Contains(out, `"expected":3`) {
		t.Errorf("expected structured attribute, got: %s", out)
	}
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	if _, err := Setup(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Error("Setup(xml) expected error")
	}
}
