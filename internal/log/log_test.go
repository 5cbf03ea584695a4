package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("note saved", "chunks", 3)
	logger.Debug("should be filtered")

	out := buf.String()
	if !strings.Contains(out, "note saved") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, "chunks=3") {
		t.Errorf("output missing attribute: %s", out)
	}
	if strings.Contains(out, "should be filtered") {
		t.Errorf("debug record leaked through info level: %s", out)
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug, JSON: true})

	logger.Debug("retrieval complete", "hits", 5)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "retrieval complete" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["hits"] != float64(5) {
		t.Errorf("hits = %v", record["hits"])
	}
}

func TestNewNopDiscards(t *testing.T) {
	t.Parallel()

	// Must not panic and must accept any level.
	logger := NewNop()
	logger.Error("discarded", "key", "value")
}
