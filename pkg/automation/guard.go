package automation

import (
	"sync"
	"time"

	"github.com/preauto/preauto/pkg/rules"
)

// Guardrail rejection reasons, recorded verbatim in the audit log.
const (
	ReasonMinHold      = "minHoldSec"
	ReasonMaxOnPerHour = "maxOnPerHour"
)

const onEventWindow = time.Hour

// guardState tracks one plug's actuation history: when it last changed
// state and every "on" activation inside the trailing hour.
type guardState struct {
	lastChange time.Time
	onEvents   []time.Time
}

// guardBook owns all per-plug guard state. It is initialized empty at
// engine construction and mutated only by the tick loop.
type guardBook struct {
	mu    sync.Mutex
	plugs map[string]*guardState
	now   func() time.Time
}

func newGuardBook() *guardBook {
	return &guardBook{
		plugs: map[string]*guardState{},
		now:   time.Now,
	}
}

// decision is the outcome of a guard check for a single action.
type decision struct {
	Allowed bool
	Reason  string
}

// allows checks the requested change against the rule's guardrails.
// minHoldSec is checked first and blocks either direction; maxOnPerHour
// only constrains energization.
func (g *guardBook) allows(plugID string, on bool, rails rules.Guardrails) decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.plugs[plugID]
	if !ok {
		return decision{Allowed: true}
	}
	now := g.now()

	if rails.MinHoldSec > 0 && !state.lastChange.IsZero() {
		hold := time.Duration(rails.MinHoldSec) * time.Second
		if now.Sub(state.lastChange) < hold {
			return decision{Reason: ReasonMinHold}
		}
	}

	if on && rails.MaxOnPerHour > 0 {
		state.prune(now)
		if len(state.onEvents) >= rails.MaxOnPerHour {
			return decision{Reason: ReasonMaxOnPerHour}
		}
	}

	return decision{Allowed: true}
}

// record notes an attempted state change for plugID.
func (g *guardBook) record(plugID string, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.plugs[plugID]
	if !ok {
		state = &guardState{}
		g.plugs[plugID] = state
	}
	now := g.now()
	state.lastChange = now
	if on {
		state.onEvents = append(state.onEvents, now)
	}
	state.prune(now)
}

// onEventCount reports the pruned trailing-hour "on" count for plugID.
func (g *guardBook) onEventCount(plugID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.plugs[plugID]
	if !ok {
		return 0
	}
	state.prune(g.now())
	return len(state.onEvents)
}

func (s *guardState) prune(now time.Time) {
	cutoff := now.Add(-onEventWindow)
	kept := s.onEvents[:0]
	for _, ts := range s.onEvents {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.onEvents = kept
}
