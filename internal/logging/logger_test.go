package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{
			name: "debug level",
			config: &Config{
				Level:  LevelDebug,
				Output: &bytes.Buffer{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("Expected filtered messages to be dropped, got: %s", output)
	}
	if !strings.Contains(output, "visible") {
		t.Errorf("Expected warn message, got: %s", output)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelError, Output: &buf})

	logger.Info("before")
	logger.SetLevel(LevelTrace)
	logger.Trace("after")

	output := buf.String()
	if strings.Contains(output, "before") {
		t.Errorf("Expected info to be filtered at error level, got: %s", output)
	}
	if !strings.Contains(output, "after") {
		t.Errorf("Expected trace after SetLevel, got: %s", output)
	}
}

type recordingSink struct {
	levels []LogLevel
	msgs   []string
}

func (s *recordingSink) Record(level LogLevel, msg string, kvs []any) {
	s.levels = append(s.levels, level)
	s.msgs = append(s.msgs, msg)
}

func TestSinkReceivesRecords(t *testing.T) {
	var buf bytes.Buffer
	sink := &recordingSink{}
	logger := NewLogger(&Config{Level: LevelInfo, Output: &buf, Sink: sink})

	logger.Debug("filtered")
	logger.Info("mirrored", "port", 3)

	if len(sink.msgs) != 1 {
		t.Fatalf("Sink received %d records, want 1", len(sink.msgs))
	}
	if sink.msgs[0] != "mirrored" {
		t.Errorf("Sink record = %q, want %q", sink.msgs[0], "mirrored")
	}
	if sink.levels[0] != LevelInfo {
		t.Errorf("Sink level = %v, want %v", sink.levels[0], LevelInfo)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("Expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}

	buf.Reset()
	Warn("warning message")
	output = buf.String()
	if !strings.Contains(output, "warning message") {
		t.Errorf("Expected warning message, got: %s", output)
	}
}
