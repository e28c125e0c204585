package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEV", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"prod", slog.LevelError, true},
		{"", 0, false},
		{"loud", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.name)
		if ok != tt.valid || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.valid)
		}
	}
}

func keepDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInitLevelPrecedence(t *testing.T) {
	keepDefault(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	logger := Init(Options{Fallback: slog.LevelError, Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("LOG_LEVEL=warn output = %q", buf.String())
	}

	buf.Reset()
	logger = Init(Options{Level: "debug", Fallback: slog.LevelError, Output: &buf})
	logger.Debug("flag wins")
	if !strings.Contains(buf.String(), "flag wins") {
		t.Fatalf("explicit level ignored: %q", buf.String())
	}
	if slog.Default() != logger {
		t.Fatal("Init did not install the default logger")
	}
}

func TestInitJSONFormat(t *testing.T) {
	keepDefault(t)
	t.Setenv("LOG_LEVEL", "")

	var buf bytes.Buffer
	Init(Options{Format: "json", Fallback: slog.LevelInfo, Output: &buf}).Info("hello", "peer", "bob")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"peer":"bob"`) {
		t.Fatalf("json output = %q", buf.String())
	}
}

func TestPionLoggerScopesAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l := NewPionFactory(logger).NewLogger("ice")
	l.Trace("below debug")
	l.Debugf("checking %d pairs", 3)
	l.Warn("gathering slow")

	out := buf.String()
	if strings.Contains(out, "below debug") {
		t.Errorf("trace leaked at debug level: %q", out)
	}
	for _, want := range []string{"checking 3 pairs", "gathering slow", "scope=ice", "component=pion"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}
