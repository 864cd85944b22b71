// Package automation runs the pre-automation control loop: each tick polls
// every scope's sensor state, evaluates rules in stored order, applies
// guardrails and actuates plugs, writing one audit entry per decision.
package automation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/preauto/preauto/pkg/audit"
	"github.com/preauto/preauto/pkg/env"
	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/rules"
)

// Config sets the loop cadence and the sensor freshness requirement.
// A zero Freshness means scope data is always trusted.
type Config struct {
	Interval  time.Duration
	Freshness time.Duration
}

const defaultInterval = 15 * time.Second

// ActiveRule marks the rule most recently actuated for a scope. It exists
// for status introspection only; the tick loop never reads it back.
type ActiveRule struct {
	RuleID     string              `json:"ruleId"`
	ExecutedAt time.Time           `json:"executedAt"`
	Actions    []plug.ActionResult `json:"actions"`
}

// Engine is the pre-automation engine. All mutable decision state (guard
// history, active-rule markers) is engine-owned and survives only for the
// lifetime of the process.
type Engine struct {
	cfg      Config
	env      *env.Store
	rules    *rules.Store
	registry *plug.Registry
	plugs    *plug.Manager
	audit    *audit.Logger

	guards *guardBook

	activeMu sync.Mutex
	active   map[string]ActiveRule

	// tickMu serializes ticks; an overlapping tick is skipped, not queued.
	tickMu sync.Mutex

	runMu sync.Mutex
	stop  chan struct{}

	now func() time.Time
}

// New wires an engine from its collaborators.
func New(cfg Config, envStore *env.Store, ruleStore *rules.Store, registry *plug.Registry, manager *plug.Manager, auditLog *audit.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Engine{
		cfg:      cfg,
		env:      envStore,
		rules:    ruleStore,
		registry: registry,
		plugs:    manager,
		audit:    auditLog,
		guards:   newGuardBook(),
		active:   map[string]ActiveRule{},
		now:      time.Now,
	}
}

// Start launches the tick loop. Safe to call once; a second call while
// running is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stop != nil {
		return
	}
	stop := make(chan struct{})
	e.stop = stop
	go e.run(ctx, stop)
	log.Info().Dur("interval", e.cfg.Interval).Msg("Automation engine started")
}

// Stop prevents future ticks. A tick already in flight runs to completion.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stop == nil {
		return
	}
	close(e.stop)
	e.stop = nil
	log.Info().Msg("Automation engine stopped")
}

func (e *Engine) run(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass across all scopes. If a previous tick is
// still in flight the call is skipped outright; two ticks never mutate
// guard state concurrently.
func (e *Engine) Tick(ctx context.Context) {
	if !e.tickMu.TryLock() {
		log.Warn().Msg("Previous tick still running, skipping")
		return
	}
	defer e.tickMu.Unlock()

	for _, scopeID := range e.env.ScopeIDs() {
		e.tickScope(ctx, scopeID)
	}
}

// tickScope evaluates and actuates one scope. Stale scopes produce no side
// effects at all, not even a log entry.
func (e *Engine) tickScope(ctx context.Context, scopeID string) {
	before := e.env.GetScope(scopeID)
	if !e.fresh(before) {
		return
	}

	matched, ok := e.matchRule(scopeID, before)
	if !ok || len(matched.Actions) == 0 {
		return
	}

	commands := commandsFor(matched.Actions)
	pre := e.plugs.Snapshot(ctx, commands)

	actionable := make([]rules.Action, 0, len(matched.Actions))
	skipped := make([]audit.SkippedAction, 0)
	for _, action := range matched.Actions {
		verdict := e.guards.allows(action.PlugID, action.On, matched.Guardrails)
		if verdict.Allowed {
			actionable = append(actionable, action)
			continue
		}
		log.Debug().Str("scope", scopeID).Str("rule", matched.ID).
			Str("plug", action.PlugID).Str("reason", verdict.Reason).
			Msg("Guardrail blocked action")
		skipped = append(skipped, audit.SkippedAction{
			PlugID: action.PlugID,
			On:     action.On,
			Reason: verdict.Reason,
		})
	}

	results := e.plugs.Apply(ctx, commandsFor(actionable))
	// Guard state reflects every attempted change, whether or not the
	// device accepted it. Only the active-rule marker depends on success.
	for _, action := range actionable {
		e.guards.record(action.PlugID, action.On)
	}

	post := e.plugs.Snapshot(ctx, commands)

	anySuccess := false
	for _, result := range results {
		if result.Success {
			anySuccess = true
			break
		}
	}

	e.activeMu.Lock()
	if anySuccess {
		e.active[scopeID] = ActiveRule{
			RuleID:     matched.ID,
			ExecutedAt: e.now(),
			Actions:    results,
		}
	} else {
		delete(e.active, scopeID)
	}
	e.activeMu.Unlock()

	e.audit.Record(audit.Entry{
		TS:        e.now(),
		Scope:     scopeID,
		RuleID:    matched.ID,
		Actions:   matched.Actions,
		Executed:  results,
		Skipped:   skipped,
		EnvBefore: before,
		EnvAfter:  e.env.GetScope(scopeID),
		Pre:       pre,
		Post:      post,
	})
}

// matchRule returns the first enabled rule, in store order, whose scope
// and when-clause match.
func (e *Engine) matchRule(scopeID string, scope env.Scope) (rules.Rule, bool) {
	for _, rule := range e.rules.ListEnabled() {
		if !rule.Scope.Matches(scopeID) {
			continue
		}
		if e.whenMatches(rule, scope) {
			return rule, true
		}
	}
	return rules.Rule{}, false
}

// whenMatches evaluates the rule's when-clause conjunctively. A referenced
// sensor without a usable value fails the whole clause.
func (e *Engine) whenMatches(rule rules.Rule, scope env.Scope) bool {
	for sensorType, condition := range rule.When {
		sensor, ok := scope.Sensors[sensorType]
		if !ok || !sensor.HasValue {
			return false
		}
		if !condition.Matches(sensor.Value) {
			return false
		}
	}
	return true
}

// fresh reports whether the scope's data is recent enough to act on.
// Without a timestamp the scope is stale.
func (e *Engine) fresh(scope env.Scope) bool {
	if e.cfg.Freshness <= 0 {
		return true
	}
	if scope.UpdatedAt.IsZero() {
		return false
	}
	return e.now().Sub(scope.UpdatedAt) <= e.cfg.Freshness
}

func commandsFor(actions []rules.Action) []plug.Command {
	commands := make([]plug.Command, 0, len(actions))
	for _, action := range actions {
		commands = append(commands, plug.Command{PlugID: action.PlugID, On: action.On})
	}
	return commands
}

// IngestSensor folds a reading into the scope's environment state.
func (e *Engine) IngestSensor(scopeID, sensorType string, reading env.Reading) env.Scope {
	return e.env.UpdateSensor(scopeID, sensorType, reading)
}

// SetTargets merges desired setpoints for a scope.
func (e *Engine) SetTargets(scopeID string, targets map[string]float64) map[string]float64 {
	return e.env.SetTargets(scopeID, targets)
}

// Targets returns the setpoints configured for a scope.
func (e *Engine) Targets(scopeID string) map[string]float64 {
	return e.env.GetTargets(scopeID)
}

// EnvSnapshot returns every scope's current sensor state.
func (e *Engine) EnvSnapshot() map[string]env.Scope {
	return e.env.Snapshot()
}

// EnvScope returns one scope's current sensor state.
func (e *Engine) EnvScope(scopeID string) env.Scope {
	return e.env.GetScope(scopeID)
}

// ListRooms returns every room record.
func (e *Engine) ListRooms() []env.Room {
	return e.env.ListRooms()
}

// GetRoom looks up one room record.
func (e *Engine) GetRoom(roomID string) (env.Room, bool) {
	return e.env.GetRoom(roomID)
}

// UpsertRoom merges a room description into the environment state.
func (e *Engine) UpsertRoom(roomID string, payload env.Room) (env.Room, bool) {
	return e.env.UpsertRoom(roomID, payload)
}

// RemoveRoom deletes a room record.
func (e *Engine) RemoveRoom(roomID string) bool {
	return e.env.RemoveRoom(roomID)
}

// ListRules returns all stored rules in evaluation order.
func (e *Engine) ListRules() []rules.Rule {
	return e.rules.List()
}

// FindRule looks up one rule by id.
func (e *Engine) FindRule(ruleID string) (rules.Rule, error) {
	return e.rules.Find(ruleID)
}

// UpsertRule validates and stores a rule.
func (e *Engine) UpsertRule(rule rules.Rule) (rules.Rule, error) {
	return e.rules.Upsert(rule)
}

// RemoveRule deletes a rule, reporting whether it existed.
func (e *Engine) RemoveRule(ruleID string) bool {
	return e.rules.Remove(ruleID)
}

// SetRuleEnabled flips a rule's enabled flag.
func (e *Engine) SetRuleEnabled(ruleID string, enabled bool) (rules.Rule, error) {
	return e.rules.SetEnabled(ruleID, enabled)
}

// AssignPlug attaches a plug action to a rule.
func (e *Engine) AssignPlug(ruleID, plugID string, on bool) (rules.Rule, error) {
	return e.rules.AssignPlug(ruleID, plugID, on)
}

// RemovePlugAssignment detaches a plug from a rule.
func (e *Engine) RemovePlugAssignment(ruleID, plugID string) (rules.Rule, error) {
	return e.rules.RemovePlugFromRule(ruleID, plugID)
}

// ListPlugs discovers plugs across all drivers, merged with registry-only
// manual entries.
func (e *Engine) ListPlugs(ctx context.Context) []plug.Plug {
	return e.plugs.DiscoverAll(ctx)
}

// RegisterPlug stores a manual plug definition and pushes the updated
// assignments to its driver.
func (e *Engine) RegisterPlug(def plug.Definition) (plug.Definition, error) {
	stored, err := e.registry.Upsert(def)
	if err != nil {
		return plug.Definition{}, err
	}
	e.plugs.RefreshManualAssignments()
	return stored, nil
}

// UnregisterPlug removes a manual plug definition.
func (e *Engine) UnregisterPlug(plugID string) bool {
	removed := e.registry.Remove(plugID)
	if removed {
		e.plugs.RefreshManualAssignments()
	}
	return removed
}

// PlugState reads one plug's live state.
func (e *Engine) PlugState(ctx context.Context, plugID string) (plug.State, error) {
	return e.plugs.GetState(ctx, plugID)
}

// SetPlugState switches a plug directly, bypassing rules and guardrails.
// Manual overrides do not touch guard history.
func (e *Engine) SetPlugState(ctx context.Context, plugID string, on bool) (plug.State, error) {
	return e.plugs.SetPowerState(ctx, plugID, on)
}

// ActiveRule returns the scope's active-rule marker, if any.
func (e *Engine) ActiveRule(scopeID string) (ActiveRule, bool) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	active, ok := e.active[scopeID]
	return active, ok
}

// ActiveRules returns the active-rule marker for every scope that has one.
func (e *Engine) ActiveRules() map[string]ActiveRule {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	out := make(map[string]ActiveRule, len(e.active))
	for scopeID, active := range e.active {
		out[scopeID] = active
	}
	return out
}

// AuditTail returns the most recent automation decisions.
func (e *Engine) AuditTail(n int) []audit.Entry {
	return e.audit.Tail(n)
}
