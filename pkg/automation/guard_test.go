package automation

import (
	"testing"
	"time"

	"github.com/preauto/preauto/pkg/rules"
)

func TestGuardAllowsUnknownPlug(t *testing.T) {
	guards := newGuardBook()
	verdict := guards.allows("plug:fake:new", true, rules.Guardrails{MinHoldSec: 600, MaxOnPerHour: 1})
	if !verdict.Allowed {
		t.Fatalf("verdict = %+v, want allowed for plug with no history", verdict)
	}
}

func TestGuardMinHoldWinsWhenBothBlock(t *testing.T) {
	guards := newGuardBook()
	base := time.Now()
	guards.now = func() time.Time { return base }
	guards.record("plug:fake:1", true)
	guards.now = func() time.Time { return base.Add(10 * time.Second) }

	verdict := guards.allows("plug:fake:1", true, rules.Guardrails{MinHoldSec: 60, MaxOnPerHour: 1})
	if verdict.Allowed || verdict.Reason != ReasonMinHold {
		t.Fatalf("verdict = %+v, want minHoldSec", verdict)
	}
}

func TestGuardMinHoldExpires(t *testing.T) {
	guards := newGuardBook()
	base := time.Now()
	guards.now = func() time.Time { return base }
	guards.record("plug:fake:1", false)

	guards.now = func() time.Time { return base.Add(59 * time.Second) }
	if verdict := guards.allows("plug:fake:1", false, rules.Guardrails{MinHoldSec: 60}); verdict.Allowed {
		t.Fatal("change allowed inside hold window")
	}

	guards.now = func() time.Time { return base.Add(61 * time.Second) }
	if verdict := guards.allows("plug:fake:1", false, rules.Guardrails{MinHoldSec: 60}); !verdict.Allowed {
		t.Fatalf("verdict = %+v, want allowed after hold expires", verdict)
	}
}

func TestGuardOnEventsPrunedToTrailingHour(t *testing.T) {
	guards := newGuardBook()
	base := time.Now()

	guards.now = func() time.Time { return base.Add(-90 * time.Minute) }
	guards.record("plug:fake:1", true)
	guards.now = func() time.Time { return base.Add(-30 * time.Minute) }
	guards.record("plug:fake:1", true)

	guards.now = func() time.Time { return base }
	if got := guards.onEventCount("plug:fake:1"); got != 1 {
		t.Fatalf("onEventCount = %d, want 1 after pruning", got)
	}

	// With the stale event pruned only one on remains, so a limit of 2
	// permits another energization.
	verdict := guards.allows("plug:fake:1", true, rules.Guardrails{MaxOnPerHour: 2})
	if !verdict.Allowed {
		t.Fatalf("verdict = %+v, want allowed", verdict)
	}
}

func TestGuardOffNeverCountsTowardRate(t *testing.T) {
	guards := newGuardBook()
	guards.record("plug:fake:1", false)
	guards.record("plug:fake:1", false)
	if got := guards.onEventCount("plug:fake:1"); got != 0 {
		t.Fatalf("onEventCount = %d, want 0", got)
	}
}

func TestGuardZeroRailsAlwaysAllow(t *testing.T) {
	guards := newGuardBook()
	guards.record("plug:fake:1", true)
	verdict := guards.allows("plug:fake:1", true, rules.Guardrails{})
	if !verdict.Allowed {
		t.Fatalf("verdict = %+v, want allowed with no guardrails", verdict)
	}
}
