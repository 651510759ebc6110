package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"error", zerolog.ErrorLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"info", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigureWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bramble.log")
	defer func() { GlobalLogging = nil }()

	if err := Configure(&LoggingConfig{Level: "debug", File: path, Format: FormatJSON}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if !IsDebugEnabled() {
		t.Error("Expected debug to be enabled")
	}
	if IsTraceEnabled() {
		t.Error("Expected trace to be disabled at debug level")
	}

	LogInfo("hub connected on %s", "/dev/ttyAMA0")
	LogTrace("should not appear")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"level":"info"`) || !strings.Contains(out, "hub connected on /dev/ttyAMA0") {
		t.Errorf("Expected JSON info line, got: %s", out)
	}
	if strings.Contains(out, "should not appear") {
		t.Errorf("Trace message leaked at debug level: %s", out)
	}
}

func TestMockLoggerRecordsFormatted(t *testing.T) {
	mock := NewMockLogger()
	mock.LogWarn("batch mismatch: expected %d, got %d", 3, 2)
	mock.LogError("write failed")

	if mock.WarnCount() != 1 || mock.ErrorCount() != 1 {
		t.Fatalf("Expected 1 warn and 1 error, got %d/%d", mock.WarnCount(), mock.ErrorCount())
	}
	if !mock.HasWarnContaining("expected 3, got 2") {
		t.Errorf("Expected formatted warning, got %v", mock.WarnMessages)
	}

	mock.Reset()
	if mock.WarnCount() != 0 {
		t.Error("Expected Reset to clear warnings")
	}
}

func TestComponentLoggerPrefix(t *testing.T) {
	l := NewComponentLogger("router").(*StandardLogger)
	if got := l.prefix("line %s"); got != "[router] line %s" {
		t.Errorf("prefix = %q", got)
	}
	if got := (&StandardLogger{}).prefix("x"); got != "x" {
		t.Errorf("empty component prefix = %q", got)
	}
}
