package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("InvalidLevel", func(t *testing.T) {
		if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
			t.Error("Expected error for invalid level")
		}
	})

	t.Run("JSONFieldsFromContext", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Config{Level: "info", Format: "json", Output: &buf})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}

		log.WithComponent("collector").WithConfiguration("guardrail").WithRunID("run-1").Info("trial recorded")
		_ = log.Sync()

		var entry map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Log line is not JSON: %v (%q)", err, buf.String())
		}
		if entry["component"] != "collector" {
			t.Errorf("Expected component 'collector', got %v", entry["component"])
		}
		if entry["configuration"] != "guardrail" {
			t.Errorf("Expected configuration 'guardrail', got %v", entry["configuration"])
		}
		if entry["run_id"] != "run-1" {
			t.Errorf("Expected run_id 'run-1', got %v", entry["run_id"])
		}
		if _, ok := entry["timestamp"]; !ok {
			t.Error("Expected timestamp key in JSON output")
		}
	})

	t.Run("LevelFilter", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Config{Level: "warn", Format: "console", Output: &buf})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}

		log.Debug("hidden")
		log.Warn("shown")
		_ = log.Sync()

		if strings.Contains(buf.String(), "hidden") {
			t.Error("Debug message should be filtered at warn level")
		}
		if !strings.Contains(buf.String(), "shown") {
			t.Error("Warn message should be written")
		}
	})
}
