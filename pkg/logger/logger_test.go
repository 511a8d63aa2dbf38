package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected string
	}{
		{"DEBUG level", DEBUG, "DEBUG"},
		{"INFO level", INFO, "INFO"},
		{"WARN level", WARN, "WARN"},
		{"ERROR level", ERROR, "ERROR"},
		{"Unknown level", LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.level.String()
			if result != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  LogLevel
		wantError bool
	}{
		{"Parse DEBUG", "DEBUG", DEBUG, false},
		{"Parse debug lowercase", "debug", DEBUG, false},
		{"Parse INFO", "INFO", INFO, false},
		{"Parse WARN", "WARN", WARN, false},
		{"Parse WARNING", "WARNING", WARN, false},
		{"Parse ERROR", "ERROR", ERROR, false},
		{"Parse invalid", "INVALID", INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseLevel() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && result != tt.expected {
				t.Errorf("ParseLevel() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger := New()

	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.level != INFO {
		t.Errorf("Default level = %v, want %v", logger.level, INFO)
	}
	if logger.fields == nil {
		t.Error("Fields map not initialized")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithConfig(Config{Level: WARN, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("DEBUG message logged at WARN level")
	}
	if strings.Contains(output, "info message") {
		t.Error("INFO message logged at WARN level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("WARN message not logged at WARN level")
	}
	if !strings.Contains(output, "error message") {
		t.Error("ERROR message not logged at WARN level")
	}
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithConfig(Config{Level: DEBUG, Output: &buf})

	childLogger := logger.WithField("component", "slab-generator")
	childLogger.Info("generating slabs")

	output := buf.String()
	if !strings.Contains(output, "component=slab-generator") {
		t.Errorf("output missing context field: %s", output)
	}

	// Parent logger must not pick up the child's fields.
	buf.Reset()
	logger.Info("bare message")
	if strings.Contains(buf.String(), "component=") {
		t.Error("parent logger inherited child field")
	}
}

func TestLogger_WithFields_Chaining(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithConfig(Config{Level: DEBUG, Output: &buf})

	child := logger.WithFields("jobID", "abc", "recipe", "SlabRelax")
	grandchild := child.WithField("miller", "(1,1,1)")
	grandchild.Info("dispatch")

	output := buf.String()
	for _, want := range []string{"jobID=abc", "recipe=SlabRelax", "miller=(1,1,1)"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}

func TestLogger_CallSiteFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithConfig(Config{Level: DEBUG, Output: &buf})

	logger.Warn("copilot adjustment", "param", "LASPH", "value", true)

	output := buf.String()
	if !strings.Contains(output, "param=LASPH") || !strings.Contains(output, "value=true") {
		t.Errorf("call-site key/vals missing: %s", output)
	}
}

func TestLogger_QuotedStringValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithConfig(Config{Level: DEBUG, Output: &buf})

	logger.Info("msg", "reason", "not enough k-points")

	if !strings.Contains(buf.String(), `reason="not enough k-points"`) {
		t.Errorf("string with spaces not quoted: %s", buf.String())
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithConfig(Config{Level: DEBUG, Output: &buf, Format: "json"})

	logger.Info("json line", "key", "value")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("json output not parseable: %v: %s", err, buf.String())
	}
	if entry["msg"] != "json line" {
		t.Errorf("msg = %v, want %q", entry["msg"], "json line")
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want value", entry["key"])
	}
}

func TestLogger_SetLevel(t *testing.T) {
	logger := New()
	logger.SetLevel(DEBUG)

	if logger.GetLevel() != DEBUG {
		t.Errorf("GetLevel() = %v, want DEBUG", logger.GetLevel())
	}
	if !logger.IsDebugEnabled() {
		t.Error("IsDebugEnabled() = false after SetLevel(DEBUG)")
	}
}
