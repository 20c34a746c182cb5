package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", InfoLevel, false},
		{"debug", DebugLevel, false},
		{"warn", WarnLevel, false},
		{"warning", WarnLevel, false},
		{"ERROR", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) err=%v", tc.in, err)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestJSONFormatterMergesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(DebugLevel),
		WithFormatter(&JSONFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	logger.With(F("worker", "w1")).Info("claimed", F("item", "task-1"))

	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if obj["msg"] != "claimed" || obj["level"] != "INFO" {
		t.Fatalf("entry: %v", obj)
	}
	if obj["worker"] != "w1" || obj["item"] != "task-1" {
		t.Fatalf("fields not merged: %v", obj)
	}
	if _, err := time.Parse(time.RFC3339Nano, obj["ts"].(string)); err != nil {
		t.Fatalf("timestamp: %v", err)
	}
}

func TestTextFormatterSortsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithFormatter(&TextFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	logger.Warn("lease lapsed", F("zeta", 2), F("alpha", 1))

	line := buf.String()
	if !strings.Contains(line, "WARN") || !strings.Contains(line, "lease lapsed") {
		t.Fatalf("line: %q", line)
	}
	if strings.Index(line, "alpha=1") > strings.Index(line, "zeta=2") {
		t.Fatalf("fields not sorted: %q", line)
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(WarnLevel),
		WithFormatter(&TextFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	logger.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info leaked through warn gate: %q", buf.String())
	}
	logger.Error("loud")
	if buf.Len() == 0 {
		t.Fatalf("error suppressed")
	}
}

func TestErrFieldNilSafe(t *testing.T) {
	f := Err(nil)
	if f.Key != "error" || f.Value != "" {
		t.Fatalf("Err(nil) = %+v", f)
	}
}

func TestNopLoggerFatalDoesNotExit(t *testing.T) {
	// must not call os.Exit
	NewNop().Fatal("ignored")
}
