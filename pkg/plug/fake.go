package plug

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeDriver is an in-memory driver for tests and for running the service
// without real hardware. Plug states are scripted via SetInitial and
// individual calls can be forced to fail via FailWith.
type FakeDriver struct {
	mu       sync.Mutex
	vendor   string
	states   map[string]State
	failures map[string]error
	defs     []Definition

	// SetOnCalls records every SetOn invocation in order.
	SetOnCalls []Command
}

// NewFakeDriver creates a fake driver for the given vendor.
func NewFakeDriver(vendor string) *FakeDriver {
	return &FakeDriver{
		vendor:   vendor,
		states:   map[string]State{},
		failures: map[string]error{},
	}
}

// SetInitial seeds the state for one plug id.
func (d *FakeDriver) SetInitial(plugID string, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[plugID] = State{Online: true, On: on, LastSeen: time.Now()}
}

// FailWith makes every call for plugID return err until cleared with nil.
func (d *FakeDriver) FailWith(plugID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, plugID)
		return
	}
	d.failures[plugID] = err
}

func (d *FakeDriver) Vendor() string { return d.vendor }

func (d *FakeDriver) Discover(ctx context.Context) ([]Plug, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Plug
	for id, state := range d.states {
		s := state
		out = append(out, Plug{
			ID:     id,
			Vendor: d.vendor,
			Name:   id,
			Source: SourceDiscovered,
			State:  s,
		})
	}
	return out, nil
}

func (d *FakeDriver) GetState(ctx context.Context, plugID string) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failures[plugID]; err != nil {
		return State{}, err
	}
	state, ok := d.states[plugID]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrNotFound, plugID)
	}
	return state, nil
}

func (d *FakeDriver) SetOn(ctx context.Context, plugID string, on bool) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SetOnCalls = append(d.SetOnCalls, Command{PlugID: plugID, On: on})
	if err := d.failures[plugID]; err != nil {
		return State{}, err
	}
	state, ok := d.states[plugID]
	if !ok {
		state = State{Online: true}
	}
	state.On = on
	state.Online = true
	state.LastSeen = time.Now()
	d.states[plugID] = state
	return state, nil
}

func (d *FakeDriver) ReadPower(ctx context.Context, plugID string) (float64, error) {
	return 0, ErrUnsupported
}

func (d *FakeDriver) SyncManualDefinitions(defs []Definition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defs = defs
}

// ManualDefinitions returns the definitions last pushed by the manager.
func (d *FakeDriver) ManualDefinitions() []Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Definition(nil), d.defs...)
}
