package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/rules"
)

func TestRecordAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	logger := NewLogger(path)

	for i := 0; i < 3; i++ {
		logger.Record(Entry{
			TS:     time.Date(2025, 6, 1, 12, i, 0, 0, time.UTC),
			Scope:  "grow-room",
			RuleID: "rule-heat",
			Actions: []rules.Action{
				{PlugID: "plug:kasa:desk", On: true},
			},
			Executed: []plug.ActionResult{
				{PlugID: "plug:kasa:desk", Success: true},
			},
		})
	}

	entries := logger.Tail(2)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].TS.Minute() != 1 || entries[1].TS.Minute() != 2 {
		t.Fatalf("unexpected order: %v, %v", entries[0].TS, entries[1].TS)
	}
	if entries[1].RuleID != "rule-heat" {
		t.Fatalf("RuleID = %q", entries[1].RuleID)
	}
	if len(entries[1].Executed) != 1 || !entries[1].Executed[0].Success {
		t.Fatalf("Executed = %+v", entries[1].Executed)
	}
}

func TestRecordFillsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	logger := NewLogger(path)

	logger.Record(Entry{Scope: "default", RuleID: "r1"})

	entries := logger.Tail(1)
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].TS.IsZero() {
		t.Fatal("TS was not defaulted")
	}
}

func TestTailSkipsGarbageLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	logger := NewLogger(path)
	logger.Record(Entry{Scope: "a", RuleID: "r1"})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()
	logger.Record(Entry{Scope: "b", RuleID: "r2"})

	entries := logger.Tail(10)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Scope != "a" || entries[1].Scope != "b" {
		t.Fatalf("scopes = %q, %q", entries[0].Scope, entries[1].Scope)
	}
}

func TestTailMissingFile(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "missing.ndjson"))
	if entries := logger.Tail(5); len(entries) != 0 {
		t.Fatalf("len(entries) = %d, want 0", len(entries))
	}
}
