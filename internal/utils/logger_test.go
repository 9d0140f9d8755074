package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput(WarnLevel, &buf)

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below the minimum level leaked: %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("messages at or above the minimum level missing: %q", out)
	}
}

func TestLoggerWithFieldsAccumulates(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput(InfoLevel, &buf)

	child := log.WithField("keyword", "camera").WithFields(map[string]interface{}{"page": 2})
	child.Info("extracted")

	out := buf.String()
	if !strings.Contains(out, "keyword=camera") || !strings.Contains(out, "page=2") {
		t.Errorf("fields missing from output: %q", out)
	}

	// The parent logger must not inherit the child's fields.
	buf.Reset()
	log.Info("plain")
	if strings.Contains(buf.String(), "keyword=camera") {
		t.Errorf("child fields leaked into parent: %q", buf.String())
	}
}

func TestLoggerFormatf(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithOutput(InfoLevel, &buf)

	log.Infof("processed %d of %d", 3, 5)
	if !strings.Contains(buf.String(), "processed 3 of 5") {
		t.Errorf("formatted message missing: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[INFO]") {
		t.Errorf("level tag missing: %q", buf.String())
	}
}
