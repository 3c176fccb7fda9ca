package ingesttrace

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTraceIDDeterminism(t *testing.T) {
	files := [][]byte{[]byte("chat one"), []byte("chat two")}
	first := NewRunTrace("run-1", "WhatsApp", files)
	second := NewRunTrace("run-2", "WhatsApp", files)
	if first.TraceID != second.TraceID {
		t.Fatalf("expected deterministic trace id, got %q and %q", first.TraceID, second.TraceID)
	}

	different := NewRunTrace("run-1", "WhatsApp", [][]byte{[]byte("chat one"), []byte("chat three")})
	if first.TraceID == different.TraceID {
		t.Fatalf("expected different trace id when content changes")
	}

	otherSource := NewRunTrace("run-1", "Facebook", files)
	if first.TraceID == otherSource.TraceID {
		t.Fatalf("expected different trace id when source changes")
	}
}

func TestCounterIncrements(t *testing.T) {
	trace := NewRunTrace("run", "Instagram", nil)

	if count := trace.IncCounter(StageConversationsAssembled); count != 1 {
		t.Fatalf("expected conversations_assembled to be 1, got %d", count)
	}

	if count := trace.IncCounter(StageDropped("empty")); count != 1 {
		t.Fatalf("expected dropped_empty to be 1, got %d", count)
	}

	if count := trace.AddCounter(StageDropped("empty"), 4); count != 5 {
		t.Fatalf("expected dropped_empty to be 5 after add, got %d", count)
	}

	if got := trace.Counter(StageRecordsExtracted); got != 0 {
		t.Fatalf("expected untouched counter to be 0, got %d", got)
	}
}

func TestLogTraceOmitsContent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	trace := NewRunTrace("run-7", "WhatsApp", [][]byte{[]byte("Alice: secret")})
	trace.AddCounter(StageRecordsExtracted, 3)
	trace.LogTrace(logger, "pipeline: run")

	out := buf.String()
	if !strings.Contains(out, `"records_extracted":3`) || !strings.Contains(out, `"run_id":"run-7"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
	if strings.Contains(out, "secret") || strings.Contains(out, "Alice") {
		t.Fatalf("trace leaked content: %s", out)
	}
}
