package rules

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTestRuleStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s := NewStore(t.TempDir())
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func gt(threshold float64) Condition {
	return Condition{Comparisons: []Comparison{{Op: OpGT, Operand: threshold}}}
}

func TestUpsert_GeneratesIDAndDefaults(t *testing.T) {
	s, _ := newTestRuleStore(t)

	saved, err := s.Upsert(Rule{When: map[string]Condition{"rh": gt(70)}, Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID == "" {
		t.Error("expected generated id")
	}
	if saved.Name != saved.ID {
		t.Errorf("name should default to id, got %q", saved.Name)
	}
	if saved.Scope.Room != "default" {
		t.Errorf("scope should default to room default, got %+v", saved.Scope)
	}
}

func TestUpsert_ExplicitEmptyScopeStaysMatchAll(t *testing.T) {
	s, _ := newTestRuleStore(t)

	var global Rule
	if err := json.Unmarshal([]byte(`{"id": "g1", "scope": {}}`), &global); err != nil {
		t.Fatal(err)
	}
	saved, err := s.Upsert(global)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Scope != (RuleScope{}) {
		t.Errorf("explicit empty scope was rewritten to %+v", saved.Scope)
	}
	if !saved.Scope.Matches("anywhere") {
		t.Error("empty scope should match any scope id")
	}

	var omitted Rule
	if err := json.Unmarshal([]byte(`{"id": "g2"}`), &omitted); err != nil {
		t.Fatal(err)
	}
	saved, err = s.Upsert(omitted)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Scope.Room != "default" {
		t.Errorf("omitted scope should default, got %+v", saved.Scope)
	}
}

func TestUpsert_IdempotentUpdatePreservesCreatedAt(t *testing.T) {
	s, now := newTestRuleStore(t)

	first, err := s.Upsert(Rule{ID: "r1", Name: "old name", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	*now = now.Add(time.Minute)
	second, err := s.Upsert(Rule{ID: "r1", Name: "new name", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	if len(s.List()) != 1 {
		t.Fatalf("expected exactly one stored rule, got %d", len(s.List()))
	}
	if second.Name != "new name" {
		t.Errorf("name = %q", second.Name)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("createdAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updatedAt did not advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestUpsert_RejectsInvalidRule(t *testing.T) {
	s, _ := newTestRuleStore(t)

	_, err := s.Upsert(Rule{ID: "bad", Actions: []Action{{PlugID: ""}}, Enabled: true})
	if err == nil {
		t.Error("expected actions without plug ids to be rejected")
	}
	if len(s.List()) != 0 {
		t.Error("invalid rule must not be stored")
	}
}

func TestListEnabled_SkipsDisabledPreservesOrder(t *testing.T) {
	s, _ := newTestRuleStore(t)
	s.Upsert(Rule{ID: "a", Enabled: true})
	s.Upsert(Rule{ID: "b", Enabled: false})
	s.Upsert(Rule{ID: "c", Enabled: true})

	enabled := s.ListEnabled()
	if len(enabled) != 2 || enabled[0].ID != "a" || enabled[1].ID != "c" {
		t.Errorf("enabled = %v", enabled)
	}
}

func TestSetEnabled(t *testing.T) {
	s, _ := newTestRuleStore(t)
	s.Upsert(Rule{ID: "r1", Enabled: true})

	r, err := s.SetEnabled("r1", false)
	if err != nil {
		t.Fatal(err)
	}
	if r.Enabled {
		t.Error("rule should be disabled")
	}
	if len(s.ListEnabled()) != 0 {
		t.Error("disabled rule still listed as enabled")
	}
	if len(s.List()) != 1 {
		t.Error("disabled rule should remain stored")
	}

	if _, err := s.SetEnabled("ghost", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignPlug_ReplacesNotAppends(t *testing.T) {
	s, _ := newTestRuleStore(t)
	s.Upsert(Rule{ID: "r1", Enabled: true})

	s.AssignPlug("r1", "plug:shelly:1", true)
	r, err := s.AssignPlug("r1", "plug:shelly:1", false)
	if err != nil {
		t.Fatal(err)
	}

	if len(r.Actions) != 1 {
		t.Fatalf("expected one action, got %d", len(r.Actions))
	}
	if r.Actions[0].On {
		t.Error("second assignment should replace the first")
	}
}

func TestRemovePlugFromRule(t *testing.T) {
	s, _ := newTestRuleStore(t)
	s.Upsert(Rule{ID: "r1", Enabled: true, Actions: []Action{
		{PlugID: "plug:shelly:1", On: true},
		{PlugID: "plug:kasa:2", On: true},
	}})

	r, err := s.RemovePlugFromRule("r1", "plug:shelly:1")
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Actions) != 1 || r.Actions[0].PlugID != "plug:kasa:2" {
		t.Errorf("actions = %v", r.Actions)
	}

	// Removing a plug that is not assigned is a no-op, not an error.
	if _, err := s.RemovePlugFromRule("r1", "plug:shelly:1"); err != nil {
		t.Errorf("idempotent removal failed: %v", err)
	}
}

func TestFindByScope(t *testing.T) {
	s, _ := newTestRuleStore(t)
	s.Upsert(Rule{ID: "veg-rule", Scope: RuleScope{Room: "veg"}, Enabled: true})
	s.Upsert(Rule{ID: "zone-rule", Scope: RuleScope{Zone: "flower"}, Enabled: true})

	if got := s.FindByScope("veg"); len(got) != 1 || got[0].ID != "veg-rule" {
		t.Errorf("veg scope = %v", got)
	}
	if got := s.FindByScope("flower"); len(got) != 1 || got[0].ID != "zone-rule" {
		t.Errorf("flower scope = %v", got)
	}
	// An empty scope id matches everything.
	if got := s.FindByScope(""); len(got) != 2 {
		t.Errorf("unscoped lookup = %v", got)
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestRuleStore(t)
	s.Upsert(Rule{ID: "r1", Enabled: true})

	if !s.Remove("r1") {
		t.Error("expected removal to succeed")
	}
	if s.Remove("r1") {
		t.Error("expected second removal to report false")
	}
}

func TestStore_ReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	s.Upsert(Rule{ID: "r1", Name: "persisted", When: map[string]Condition{"rh": gt(70)}, Enabled: true})

	reloaded := NewStore(dir)
	r, err := reloaded.Find("r1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "persisted" {
		t.Errorf("name = %q", r.Name)
	}
	if !r.When["rh"].Matches(71) || r.When["rh"].Matches(70) {
		t.Error("condition semantics lost across reload")
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	s, _ := newTestRuleStore(t)
	s.Upsert(Rule{ID: "r1", Enabled: true, Actions: []Action{{PlugID: "plug:shelly:1", On: true}}})

	list := s.List()
	list[0].Actions[0].On = false

	r, _ := s.Find("r1")
	if !r.Actions[0].On {
		t.Error("store state mutated through listed copy")
	}
}
