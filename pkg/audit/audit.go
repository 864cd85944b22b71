// Package audit records one NDJSON entry per automation decision so every
// actuation can be traced back to the rule and sensor data that caused it.
package audit

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/preauto/preauto/pkg/env"
	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/rules"
	"github.com/preauto/preauto/pkg/storage"
)

// SkippedAction is an action a guardrail held back this tick.
type SkippedAction struct {
	PlugID string `json:"plugId"`
	On     bool   `json:"on"`
	Reason string `json:"reason"`
}

// Entry is the full record of one tick decision for one scope.
type Entry struct {
	TS        time.Time           `json:"ts"`
	Scope     string              `json:"scope"`
	RuleID    string              `json:"ruleId"`
	Actions   []rules.Action      `json:"actions"`
	Executed  []plug.ActionResult `json:"executed"`
	Skipped   []SkippedAction     `json:"skipped"`
	EnvBefore env.Scope           `json:"envBefore"`
	EnvAfter  env.Scope           `json:"envAfter"`
	Pre       plug.Snapshot       `json:"pre"`
	Post      plug.Snapshot       `json:"post"`
}

// Logger appends entries to an NDJSON file. Writes are best-effort; an
// IO failure must never block or fail the tick that produced the entry.
type Logger struct {
	path string
}

// NewLogger creates a logger writing to path.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// DefaultPath returns the execution log location under dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "events.ndjson")
}

// Record appends one entry. Failures are logged and swallowed.
func (l *Logger) Record(entry Entry) {
	if entry.TS.IsZero() {
		entry.TS = time.Now()
	}
	if err := storage.AppendNDJSON(l.path, entry); err != nil {
		log.Warn().Err(err).Str("scope", entry.Scope).Str("rule", entry.RuleID).
			Msg("Failed to append audit entry")
	}
}

// Tail returns the most recent n entries, oldest first. Lines that no
// longer parse are skipped.
func (l *Logger) Tail(n int) []Entry {
	raw := storage.ReadNDJSONTail(l.path, n)
	entries := make([]Entry, 0, len(raw))
	for _, line := range raw {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Warn().Err(err).Msg("Skipping unreadable audit entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
