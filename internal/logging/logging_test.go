package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/zhouzirui/topup-bot/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, config.LogConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("visible", "component", "executor")

	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "hidden") {
		t.Fatalf("debug record should be filtered: %s", line)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("expected one json record, got %q: %v", line, err)
	}
	if record["msg"] != "visible" || record["component"] != "executor" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, config.LogConfig{Level: "debug", Format: "text"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	logger.Debug("ready")
	if !strings.Contains(buf.String(), "msg=ready") {
		t.Fatalf("expected text record, got %q", buf.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, config.LogConfig{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
