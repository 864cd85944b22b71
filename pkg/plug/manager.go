package plug

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Manager routes control and state requests to the correct vendor driver by
// plug id and merges discovered plugs with registry-only manual entries.
type Manager struct {
	registry *Registry
	drivers  map[string]Driver
	order    []string
}

// NewManager creates a manager over the given registry and drivers.
// Drivers are consulted in registration order during discovery.
func NewManager(registry *Registry, drivers ...Driver) *Manager {
	m := &Manager{
		registry: registry,
		drivers:  map[string]Driver{},
	}
	for _, d := range drivers {
		m.RegisterDriver(d)
	}
	m.RefreshManualAssignments()
	return m
}

// RegisterDriver adds (or replaces) the driver for its vendor.
func (m *Manager) RegisterDriver(d Driver) {
	if d == nil {
		return
	}
	vendor := d.Vendor()
	if _, exists := m.drivers[vendor]; !exists {
		m.order = append(m.order, vendor)
	}
	m.drivers[vendor] = d
}

// RefreshManualAssignments pushes the registry's manual definitions down to
// each vendor driver. Called after every registry change.
func (m *Manager) RefreshManualAssignments() {
	if m.registry == nil {
		return
	}
	byVendor := map[string][]Definition{}
	for _, def := range m.registry.List() {
		byVendor[def.Vendor] = append(byVendor[def.Vendor], def)
	}
	for _, vendor := range m.order {
		m.drivers[vendor].SyncManualDefinitions(byVendor[vendor])
	}
}

// DiscoverAll returns every plug any driver can account for, unioned with
// registry entries no driver reported. A discovered plug always wins over
// its registry shadow; registry entries only fill gaps, flagged offline.
func (m *Manager) DiscoverAll(ctx context.Context) []Plug {
	var discovered []Plug
	for _, vendor := range m.order {
		plugs, err := m.drivers[vendor].Discover(ctx)
		if err != nil {
			log.Warn().Err(err).Str("vendor", vendor).Msg("Plug discovery failed")
			continue
		}
		discovered = append(discovered, plugs...)
	}
	return m.mergeWithRegistry(discovered)
}

func (m *Manager) mergeWithRegistry(discovered []Plug) []Plug {
	combined := make([]Plug, 0, len(discovered))
	seen := map[string]bool{}
	for _, p := range discovered {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		combined = append(combined, p)
	}

	if m.registry == nil {
		return combined
	}
	for _, def := range m.registry.List() {
		if seen[def.ID] {
			continue
		}
		seen[def.ID] = true
		combined = append(combined, Plug{
			ID:         def.ID,
			Vendor:     def.Vendor,
			Name:       def.Name,
			Model:      def.Model,
			Source:     SourceManual,
			Connection: def.Connection,
			State:      State{Online: false, On: false},
		})
	}
	return combined
}

// GetState reads the current state of one plug via its vendor driver.
func (m *Manager) GetState(ctx context.Context, plugID string) (State, error) {
	driver, err := m.driverFor(plugID)
	if err != nil {
		return State{}, err
	}
	return driver.GetState(ctx, plugID)
}

// SetPowerState switches one plug via its vendor driver.
func (m *Manager) SetPowerState(ctx context.Context, plugID string, on bool) (State, error) {
	driver, err := m.driverFor(plugID)
	if err != nil {
		return State{}, err
	}
	return driver.SetOn(ctx, plugID, on)
}

// ReadPower reads the instantaneous power draw of one plug.
// Returns ErrUnsupported for vendors without power metering.
func (m *Manager) ReadPower(ctx context.Context, plugID string) (float64, error) {
	driver, err := m.driverFor(plugID)
	if err != nil {
		return 0, err
	}
	return driver.ReadPower(ctx, plugID)
}

// Apply executes a batch of commands sequentially. A failing plug yields a
// failed result entry and never aborts the rest of the batch.
func (m *Manager) Apply(ctx context.Context, commands []Command) []ActionResult {
	results := make([]ActionResult, 0, len(commands))
	for _, cmd := range commands {
		if cmd.PlugID == "" {
			continue
		}
		state, err := m.SetPowerState(ctx, cmd.PlugID, cmd.On)
		if err != nil {
			log.Warn().Err(err).Str("plug", cmd.PlugID).Bool("on", cmd.On).Msg("Failed to set plug state")
			results = append(results, ActionResult{PlugID: cmd.PlugID, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, ActionResult{PlugID: cmd.PlugID, Success: true, State: &state})
	}
	return results
}

// Snapshot captures the current state of every plug referenced by the
// command batch, tolerating per-plug failures individually.
func (m *Manager) Snapshot(ctx context.Context, commands []Command) Snapshot {
	snapshot := Snapshot{}
	for _, cmd := range commands {
		if cmd.PlugID == "" {
			continue
		}
		if _, done := snapshot[cmd.PlugID]; done {
			continue
		}
		state, err := m.GetState(ctx, cmd.PlugID)
		if err != nil {
			snapshot[cmd.PlugID] = SnapshotEntry{Online: false, Error: err.Error()}
			continue
		}
		snapshot[cmd.PlugID] = SnapshotEntry{Online: state.Online, State: &state}
	}
	return snapshot
}

func (m *Manager) driverFor(plugID string) (Driver, error) {
	vendor, ok := VendorFromID(plugID)
	if !ok {
		return nil, fmt.Errorf("%w: malformed plug id %q", ErrDriverNotFound, plugID)
	}
	driver, ok := m.drivers[vendor]
	if !ok {
		return nil, fmt.Errorf("%w for vendor %q (plug %s)", ErrDriverNotFound, vendor, plugID)
	}
	return driver, nil
}
