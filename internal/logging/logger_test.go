package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var component *ComponentLogger
	var logger Logger = component
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world")
}

func TestComponentLoggerFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSink(buf, LevelInfo).Component("Bridge")
	logger.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	logger.Debug("hidden")
	logger.Info("accepted %s", "sess-1")

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %q", got)
	}
	if !strings.HasPrefix(got, "2025-01-02 03:04:05 [INFO] [Bridge] logger_test.go:") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.HasSuffix(got, " - accepted sess-1\n") {
		t.Fatalf("unexpected suffix: %q", got)
	}
}

func TestSanitizeLogLineRedactsSecrets(t *testing.T) {
	line := sanitizeLogLine(`env ANTHROPIC_API_KEY=sk-ant-REDACTED Authorization: Bearer abc.def`)
	if strings.Contains(line, "sk-ant-REDACTED") {
		t.Fatalf("api key leaked: %q", line)
	}
	if strings.Contains(line, "abc.def") {
		t.Fatalf("bearer token leaked: %q", line)
	}
	if !strings.Contains(line, Placeholder) {
		t.Fatalf("expected placeholder in %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]Level{"debug": LevelDebug, "": LevelInfo, "WARNING": LevelWarn, "error": LevelError} {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "companion.log")
	closer, err := Setup(Options{Path: path, Level: LevelDebug})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	NewComponentLogger("Test").Debug("written")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "[DEBUG] [Test]") {
		t.Fatalf("unexpected log contents: %q", data)
	}
}
