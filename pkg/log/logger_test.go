package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(WarnLevel),
		WithFormatter(&TextFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("expected sub-warn entries to be dropped, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("expected warn entry in output, got %q", out)
	}
}

func TestWithFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithFormatter(&TextFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	).WithComponent("watcher")
	logger.Info("drain complete", Int("notifications", 3))
	out := buf.String()
	if !strings.Contains(out, "component=watcher") {
		t.Fatalf("missing component field: %q", out)
	}
	if !strings.Contains(out, "notifications=3") {
		t.Fatalf("missing call-site field: %q", out)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithFormatter(&JSONFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	logger.Info("cursor advanced", Str("token", "104186647014576128"))
	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if record["msg"] != "cursor advanced" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["token"] != "104186647014576128" {
		t.Fatalf("unexpected token field: %v", record["token"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{"Warning", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"", InfoLevel, true},
		{"verbose", InfoLevel, false},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.ok && err != nil {
			t.Fatalf("ParseLevel(%q): unexpected error %v", c.in, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("ParseLevel(%q): expected error", c.in)
		}
		if got != c.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
