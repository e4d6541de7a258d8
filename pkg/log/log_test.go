package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type testMode struct{}

func (testMode) String() string { return "exactly-once" }

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: FormatJSON, Out: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("appended", Int64("rows", 3), String("stream", "s1"), Stringer("mode", testMode{}), Err(errors.New("x")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["message"] != "appended" || entry["stream"] != "s1" || entry["error"] != "x" || entry["mode"] != "exactly-once" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["rows"] != float64(3) {
		t.Errorf("rows = %v, want 3", entry["rows"])
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"bad level", Options{Level: "loud"}},
		{"bad format", Options{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

type recordingLogger struct {
	NoopLogger
	fields []Field
}

func (r *recordingLogger) Info(msg string, fields ...Field) {
	r.fields = fields
}

func TestWith(t *testing.T) {
	rec := &recordingLogger{}
	l := With(With(rec, Int("subtask", 2)), String("table", "t"))
	l.Info("msg", Bool("final", true))

	keys := make([]string, 0, len(rec.fields))
	for _, f := range rec.fields {
		keys = append(keys, f.Key)
	}
	if got := strings.Join(keys, ","); got != "subtask,table,final" {
		t.Errorf("field keys = %s, want subtask,table,final", got)
	}

	if With(rec) != Logger(rec) {
		t.Error("With() without fields should return the same logger")
	}
}
