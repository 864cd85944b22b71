// Package rules holds the declarative automation rule model and its store.
//
// Rule documents arrive as loose JSON; the duck-typed condition and action
// shapes are discriminated into tagged variants here, at parse time, so a
// malformed rule is rejected at upsert instead of silently misfiring during
// a tick.
package rules

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operator is a comparison operator usable in a condition clause.
type Operator string

const (
	OpGT      Operator = "gt"
	OpGTE     Operator = "gte"
	OpLT      Operator = "lt"
	OpLTE     Operator = "lte"
	OpEQ      Operator = "eq"
	OpNEQ     Operator = "neq"
	OpBetween Operator = "between"
)

// Comparison is one operator applied to a sensor value. Between carries an
// inclusive [min,max] range; every other operator carries a single operand.
type Comparison struct {
	Op      Operator
	Operand float64
	Range   [2]float64
}

// Matches reports whether value satisfies the comparison.
func (c Comparison) Matches(value float64) bool {
	switch c.Op {
	case OpGT:
		return value > c.Operand
	case OpGTE:
		return value >= c.Operand
	case OpLT:
		return value < c.Operand
	case OpLTE:
		return value <= c.Operand
	case OpEQ:
		return value == c.Operand
	case OpNEQ:
		return value != c.Operand
	case OpBetween:
		return value >= c.Range[0] && value <= c.Range[1]
	default:
		return false
	}
}

// Condition is one entry of a rule's when-clause, keyed by sensor type.
// Exactly one variant applies:
//   - Presence: the sensor only needs a current reading (wire form: null)
//   - Equality: the reading must equal Equals (wire form: bare number)
//   - Comparisons: every comparison must hold (wire form: {"gt": 70, ...})
type Condition struct {
	Presence    bool
	Equals      *float64
	Comparisons []Comparison
}

// Matches evaluates the condition against a sensor reading.
func (c Condition) Matches(value float64) bool {
	switch {
	case c.Presence:
		return true
	case c.Equals != nil:
		return value == *c.Equals
	default:
		for _, cmp := range c.Comparisons {
			if !cmp.Matches(value) {
				return false
			}
		}
		return true
	}
}

// comparison operators in wire order, for deterministic marshalling.
var operatorOrder = []Operator{OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNEQ, OpBetween}

// UnmarshalJSON discriminates the wire forms of a condition. Unknown
// operators and malformed between ranges are errors, not permissive passes.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*c = Condition{Presence: true}
		return nil
	case float64:
		*c = Condition{Equals: &v}
		return nil
	case map[string]any:
		if len(v) == 0 {
			return fmt.Errorf("condition object must name at least one operator")
		}
		var cmps []Comparison
		for _, op := range operatorOrder {
			operand, ok := v[string(op)]
			if !ok {
				continue
			}
			cmp, err := parseComparison(op, operand)
			if err != nil {
				return err
			}
			cmps = append(cmps, cmp)
		}
		if len(cmps) != len(v) {
			for key := range v {
				if !knownOperator(Operator(key)) {
					return fmt.Errorf("unknown condition operator %q", key)
				}
			}
		}
		*c = Condition{Comparisons: cmps}
		return nil
	default:
		return fmt.Errorf("condition must be null, a number or an operator map, got %T", raw)
	}
}

// MarshalJSON emits the wire form the condition was parsed from.
func (c Condition) MarshalJSON() ([]byte, error) {
	switch {
	case c.Presence:
		return []byte("null"), nil
	case c.Equals != nil:
		return json.Marshal(*c.Equals)
	default:
		out := make(map[string]any, len(c.Comparisons))
		for _, cmp := range c.Comparisons {
			if cmp.Op == OpBetween {
				out[string(cmp.Op)] = []float64{cmp.Range[0], cmp.Range[1]}
			} else {
				out[string(cmp.Op)] = cmp.Operand
			}
		}
		return json.Marshal(out)
	}
}

func parseComparison(op Operator, operand any) (Comparison, error) {
	if op == OpBetween {
		list, ok := operand.([]any)
		if !ok || len(list) != 2 {
			return Comparison{}, fmt.Errorf("between expects a [min,max] pair")
		}
		min, okMin := list[0].(float64)
		max, okMax := list[1].(float64)
		if !okMin || !okMax {
			return Comparison{}, fmt.Errorf("between bounds must be numbers")
		}
		if min > max {
			return Comparison{}, fmt.Errorf("between range is inverted: [%v,%v]", min, max)
		}
		return Comparison{Op: op, Range: [2]float64{min, max}}, nil
	}

	num, ok := operand.(float64)
	if !ok {
		return Comparison{}, fmt.Errorf("operator %q expects a numeric operand", op)
	}
	return Comparison{Op: op, Operand: num}, nil
}

func knownOperator(op Operator) bool {
	for _, known := range operatorOrder {
		if op == known {
			return true
		}
	}
	return false
}

// Action is a normalized desired plug state. The overlapping wire fields
// (set/on) collapse into a single boolean at parse time.
type Action struct {
	PlugID string
	On     bool
}

type actionWire struct {
	PlugID string `json:"plugId"`
	Set    string `json:"set,omitempty"`
	On     *bool  `json:"on,omitempty"`
}

// UnmarshalJSON accepts both action wire forms ({plugId, set:"on"|"off"} and
// {plugId, on:bool}) and rejects ambiguous or contradictory combinations.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionWire
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := normalizeAction(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON emits the canonical {plugId, set} form.
func (a Action) MarshalJSON() ([]byte, error) {
	set := "off"
	if a.On {
		set = "on"
	}
	return json.Marshal(actionWire{PlugID: a.PlugID, Set: set})
}

func normalizeAction(raw actionWire) (Action, error) {
	if raw.PlugID == "" {
		return Action{}, fmt.Errorf("action is missing plugId")
	}

	switch raw.Set {
	case "":
		if raw.On == nil {
			return Action{}, fmt.Errorf("action for %s must carry set or on", raw.PlugID)
		}
		return Action{PlugID: raw.PlugID, On: *raw.On}, nil
	case "on", "off":
		desired := raw.Set == "on"
		if raw.On != nil && *raw.On != desired {
			return Action{}, fmt.Errorf("action for %s has contradictory set=%q and on=%v", raw.PlugID, raw.Set, *raw.On)
		}
		return Action{PlugID: raw.PlugID, On: desired}, nil
	default:
		return Action{}, fmt.Errorf("action for %s has invalid set value %q", raw.PlugID, raw.Set)
	}
}

// RuleScope restricts a rule to one scope. An empty matcher applies the rule
// to every scope.
type RuleScope struct {
	Room string `json:"room,omitempty"`
	Zone string `json:"zone,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Matches reports whether the rule applies to scopeID.
func (s RuleScope) Matches(scopeID string) bool {
	if s.Room == "" && s.Zone == "" && s.ID == "" {
		return true
	}
	return s.Room == scopeID || s.Zone == scopeID || s.ID == scopeID
}

// Guardrails are the safety constraints applied before actuation,
// independent of the rule's condition logic.
type Guardrails struct {
	// MinHoldSec blocks any further state change of a plug for this many
	// seconds after its last change, in either direction.
	MinHoldSec int `json:"minHoldSec,omitempty"`
	// MaxOnPerHour caps how many times a plug may be switched on within the
	// trailing hour. Off requests are never blocked by this limit.
	MaxOnPerHour int `json:"maxOnPerHour,omitempty"`
}

// Rule is a stored automation policy. Rules are evaluated in store order;
// per scope per tick, the first enabled rule whose when-clause matches wins.
type Rule struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Scope       RuleScope            `json:"scope"`
	When        map[string]Condition `json:"when"`
	Actions     []Action             `json:"actions"`
	Guardrails  Guardrails           `json:"guardrails"`
	Enabled     bool                 `json:"enabled"`
	Description string               `json:"description,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`

	// scopeExplicit records whether the document carried a scope field.
	// An explicit empty scope is a match-all rule; an omitted scope gets
	// the store's default room.
	scopeExplicit bool
}

// UnmarshalJSON parses a rule document, defaulting enabled to true when the
// field is absent and remembering whether a scope was given at all.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias Rule
	wire := struct {
		*alias
		Scope   *RuleScope `json:"scope"`
		Enabled *bool      `json:"enabled"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Scope != nil {
		r.Scope = *wire.Scope
	}
	r.scopeExplicit = wire.Scope != nil
	r.Enabled = wire.Enabled == nil || *wire.Enabled
	return nil
}

// Validate checks constraints that the wire parser cannot (rules constructed
// in code skip UnmarshalJSON entirely).
func (r *Rule) Validate() error {
	for i, action := range r.Actions {
		if action.PlugID == "" {
			return fmt.Errorf("action %d is missing plugId", i)
		}
	}
	for sensorType, cond := range r.When {
		if sensorType == "" {
			return fmt.Errorf("when-clause has an empty sensor type")
		}
		for _, cmp := range cond.Comparisons {
			if !knownOperator(cmp.Op) {
				return fmt.Errorf("when.%s uses unknown operator %q", sensorType, cmp.Op)
			}
			if cmp.Op == OpBetween && cmp.Range[0] > cmp.Range[1] {
				return fmt.Errorf("when.%s between range is inverted", sensorType)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	out := r
	if r.When != nil {
		out.When = make(map[string]Condition, len(r.When))
		for k, cond := range r.When {
			c := cond
			c.Comparisons = append([]Comparison(nil), cond.Comparisons...)
			if cond.Equals != nil {
				v := *cond.Equals
				c.Equals = &v
			}
			out.When[k] = c
		}
	}
	out.Actions = append([]Action(nil), r.Actions...)
	return out
}
