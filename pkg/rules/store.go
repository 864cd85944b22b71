package rules

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/preauto/preauto/pkg/storage"
)

// ErrNotFound indicates the referenced rule does not exist.
var ErrNotFound = errors.New("rule not found")

// Store holds automation rules in declaration order, persisted as a JSON
// document. Order is load-bearing: the engine applies first-match-wins.
// Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	rules []Rule
	now   func() time.Time
}

type document struct {
	Rules []Rule `json:"rules"`
}

// NewStore loads (or initializes) the rule store backed by rules.json under
// dataDir. Rules that fail validation on load are dropped with a warning
// rather than poisoning the whole store.
func NewStore(dataDir string) *Store {
	s := &Store{
		path: filepath.Join(dataDir, "rules.json"),
		now:  time.Now,
	}

	var doc document
	storage.ReadJSON(s.path, &doc)
	for _, r := range doc.Rules {
		if err := r.Validate(); err != nil {
			log.Warn().Err(err).Str("rule", r.ID).Msg("Dropping invalid rule on load")
			continue
		}
		s.rules = append(s.rules, r)
	}
	return s
}

// List returns deep copies of all rules in declaration order.
func (s *Store) List() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRules(s.rules)
}

// ListEnabled returns deep copies of the enabled rules, preserving order.
func (s *Store) ListEnabled() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Rule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Find returns a copy of the rule with the given id.
func (s *Store) Find(ruleID string) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == ruleID {
			return r.Clone(), nil
		}
	}
	return Rule{}, ErrNotFound
}

// Upsert stores a rule, replacing any existing rule with the same id.
// A blank id gets a generated one; a rule whose document omitted the scope
// defaults to room "default" while an explicit empty scope stays match-all;
// CreatedAt is preserved across updates while UpdatedAt always advances.
// Invalid rules are rejected before anything is stored.
func (s *Store) Upsert(r Rule) (Rule, error) {
	if err := r.Validate(); err != nil {
		return Rule{}, fmt.Errorf("invalid rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if r.ID == "" {
		r.ID = "rule-" + uuid.NewString()
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	if !r.scopeExplicit && r.Scope == (RuleScope{}) {
		r.Scope = RuleScope{Room: "default"}
	}
	r.UpdatedAt = now

	for i, existing := range s.rules {
		if existing.ID == r.ID {
			r.CreatedAt = existing.CreatedAt
			s.rules[i] = r.Clone()
			s.persist()
			return r, nil
		}
	}

	r.CreatedAt = now
	s.rules = append(s.rules, r.Clone())
	s.persist()
	return r, nil
}

// Remove deletes a rule by id. Returns false if the rule was unknown.
func (s *Store) Remove(ruleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == ruleID {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			s.persist()
			return true
		}
	}
	return false
}

// SetEnabled flips a rule's enablement. Disabled rules stay stored and keep
// their position; they are merely skipped at tick time.
func (s *Store) SetEnabled(ruleID string, enabled bool) (Rule, error) {
	return s.update(ruleID, func(r *Rule) error {
		r.Enabled = enabled
		return nil
	})
}

// AssignPlug attaches (or replaces) the action entry for plugID within a
// rule. Actions are keyed by plug id: a second assignment for the same plug
// replaces the first instead of appending a duplicate.
func (s *Store) AssignPlug(ruleID, plugID string, on bool) (Rule, error) {
	if plugID == "" {
		return Rule{}, fmt.Errorf("plug id is required")
	}
	return s.update(ruleID, func(r *Rule) error {
		filtered := make([]Action, 0, len(r.Actions)+1)
		for _, a := range r.Actions {
			if a.PlugID != plugID {
				filtered = append(filtered, a)
			}
		}
		r.Actions = append(filtered, Action{PlugID: plugID, On: on})
		return nil
	})
}

// RemovePlugFromRule removes any action entry for plugID from the rule.
func (s *Store) RemovePlugFromRule(ruleID, plugID string) (Rule, error) {
	return s.update(ruleID, func(r *Rule) error {
		filtered := r.Actions[:0:0]
		for _, a := range r.Actions {
			if a.PlugID != plugID {
				filtered = append(filtered, a)
			}
		}
		r.Actions = filtered
		return nil
	})
}

// FindByScope returns the rules whose scope matcher names scopeID.
// An empty scopeID matches every rule, which is how unscoped global
// evaluation contexts enumerate the full rule set.
func (s *Store) FindByScope(scopeID string) []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Rule
	for _, r := range s.rules {
		if scopeID == "" || r.Scope.Room == scopeID || r.Scope.Zone == scopeID || r.Scope.ID == scopeID {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (s *Store) update(ruleID string, fn func(*Rule) error) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == ruleID {
			next := s.rules[i].Clone()
			if err := fn(&next); err != nil {
				return Rule{}, err
			}
			next.UpdatedAt = s.now()
			s.rules[i] = next
			s.persist()
			return next.Clone(), nil
		}
	}
	return Rule{}, ErrNotFound
}

func (s *Store) persist() {
	if err := storage.WriteJSON(s.path, document{Rules: s.rules}); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Failed to persist rules")
	}
}

func cloneRules(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = r.Clone()
	}
	return out
}
