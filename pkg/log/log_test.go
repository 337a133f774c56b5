package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newCaptureLogger(level Level, formatter Formatter) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(NewWriterOutput(buf)),
	)
	return logger, buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"":        InfoLevel,
		"WARN":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newCaptureLogger(WarnLevel, &TextFormatter{DisableTimestamp: true, DisableCaller: true})
	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("suppressed levels leaked: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn missing: %q", out)
	}
}

func TestTextFormatterFieldsAreSorted(t *testing.T) {
	logger, buf := newCaptureLogger(InfoLevel, &TextFormatter{DisableTimestamp: true, DisableCaller: true})
	logger.Info("msg", Str("zeta", "1"), Str("alpha", "2"))
	line := buf.String()
	if !strings.Contains(line, "alpha=2 zeta=1") {
		t.Fatalf("fields not sorted: %q", line)
	}
}

func TestJSONFormatterOutput(t *testing.T) {
	logger, buf := newCaptureLogger(InfoLevel, &JSONFormatter{})
	logger.Info("hello", Int("count", 3), Err(errors.New("bad")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["level"] != "INFO" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["count"] != float64(3) {
		t.Fatalf("count = %v", entry["count"])
	}
	if entry["error"] != "bad" {
		t.Fatalf("error = %v", entry["error"])
	}
}

func TestWithAttachesFields(t *testing.T) {
	logger, buf := newCaptureLogger(InfoLevel, &JSONFormatter{})
	child := logger.WithComponent("queue").With(Str("conn", "abc"))
	child.Info("attached")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry[ComponentKey] != "queue" || entry["conn"] != "abc" {
		t.Fatalf("entry = %v", entry)
	}

	// The parent is unchanged. Unmarshal into a fresh map: decoding into a
	// non-nil map merges keys, which would leave stale fields from above.
	buf.Reset()
	entry = map[string]any{}
	logger.Info("bare")
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if _, ok := entry["conn"]; ok {
		t.Fatalf("parent logger inherited child field: %v", entry)
	}
}

func TestChildLevelIndependent(t *testing.T) {
	logger, buf := newCaptureLogger(InfoLevel, &TextFormatter{DisableTimestamp: true, DisableCaller: true})
	child := logger.With(Str("k", "v"))
	child.SetLevel(ErrorLevel)
	child.Info("quiet")
	logger.Info("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("child level ignored: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("parent suppressed: %q", out)
	}
}
