package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := ContextWithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatalf("expected the attached logger")
	}
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Fatalf("expected slog.Default without an attached logger")
	}
	if got := ContextWithLogger(ctx, nil); got != ctx {
		t.Fatalf("expected a nil logger to leave the context unchanged")
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, slog.LevelWarn, "json")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "version", 58)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "kept" || record["version"] != float64(58) {
		t.Fatalf("unexpected record: %v", record)
	}

	buf.Reset()
	logger, err = New(&buf, slog.LevelInfo, "TEXT")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("upgraded")
	if !strings.Contains(buf.String(), "msg=upgraded") {
		t.Fatalf("expected text output, got %q", buf.String())
	}

	if _, err := New(&buf, slog.LevelInfo, "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for value, want := range cases {
		got, err := ParseLevel(value)
		if err != nil {
			t.Fatalf("ParseLevel(%q) returned error: %v", value, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", value, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
