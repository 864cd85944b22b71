package plug

import (
	"context"
	"errors"
	"testing"
)

func TestManager_ApplyPartialFailureIsolation(t *testing.T) {
	driver := NewFakeDriver(VendorShelly)
	driver.SetInitial("plug:shelly:1", false)
	driver.SetInitial("plug:shelly:2", false)
	driver.FailWith("plug:shelly:1", errors.New("connection refused"))

	m := NewManager(NewRegistry(t.TempDir()), driver)

	results := m.Apply(context.Background(), []Command{
		{PlugID: "plug:shelly:1", On: true},
		{PlugID: "plug:shelly:2", On: true},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Success || results[0].Error == "" {
		t.Errorf("first result should fail: %+v", results[0])
	}
	if !results[1].Success || results[1].State == nil || !results[1].State.On {
		t.Errorf("second result should succeed: %+v", results[1])
	}
}

func TestManager_ApplySkipsBlankPlugIDs(t *testing.T) {
	m := NewManager(NewRegistry(t.TempDir()), NewFakeDriver(VendorShelly))
	results := m.Apply(context.Background(), []Command{{PlugID: ""}})
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestManager_UnknownVendor(t *testing.T) {
	m := NewManager(NewRegistry(t.TempDir()), NewFakeDriver(VendorShelly))

	_, err := m.GetState(context.Background(), "plug:hue:1")
	if !errors.Is(err, ErrDriverNotFound) {
		t.Errorf("expected ErrDriverNotFound, got %v", err)
	}
	_, err = m.SetPowerState(context.Background(), "not-a-plug-id", true)
	if !errors.Is(err, ErrDriverNotFound) {
		t.Errorf("expected ErrDriverNotFound for malformed id, got %v", err)
	}
}

func TestManager_DiscoverAllMergesRegistryGaps(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	registry.Upsert(Definition{Vendor: VendorShelly, Name: "from registry", Connection: Connection{DeviceID: "manual1"}})
	registry.Upsert(Definition{Vendor: VendorShelly, Connection: Connection{DeviceID: "live1"}})

	driver := NewFakeDriver(VendorShelly)
	driver.SetInitial("plug:shelly:live1", true)

	m := NewManager(registry, driver)
	plugs := m.DiscoverAll(context.Background())

	byID := map[string]Plug{}
	for _, p := range plugs {
		byID[p.ID] = p
	}
	if len(byID) != 2 {
		t.Fatalf("expected 2 plugs, got %v", byID)
	}

	live := byID["plug:shelly:live1"]
	if live.Source != SourceDiscovered || !live.State.On {
		t.Errorf("live discovery should win over its registry shadow: %+v", live)
	}

	manual := byID["plug:shelly:manual1"]
	if manual.Source != SourceManual || manual.State.Online {
		t.Errorf("registry gap-fill should be offline manual: %+v", manual)
	}
}

func TestManager_SnapshotToleratesFailures(t *testing.T) {
	driver := NewFakeDriver(VendorShelly)
	driver.SetInitial("plug:shelly:ok", true)
	driver.FailWith("plug:shelly:bad", errors.New("timeout"))
	driver.SetInitial("plug:shelly:bad", false)

	m := NewManager(NewRegistry(t.TempDir()), driver)

	snap := m.Snapshot(context.Background(), []Command{
		{PlugID: "plug:shelly:ok", On: true},
		{PlugID: "plug:shelly:bad", On: true},
		{PlugID: "plug:shelly:ok", On: false}, // duplicate, captured once
	})

	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	ok := snap["plug:shelly:ok"]
	if !ok.Online || ok.State == nil || !ok.State.On {
		t.Errorf("ok entry = %+v", ok)
	}
	bad := snap["plug:shelly:bad"]
	if bad.Online || bad.Error == "" || bad.State != nil {
		t.Errorf("bad entry = %+v", bad)
	}
}

func TestManager_RefreshManualAssignments(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	driver := NewFakeDriver(VendorShelly)
	m := NewManager(registry, driver)

	registry.Upsert(Definition{Vendor: VendorShelly, Connection: Connection{DeviceID: "abc"}})
	m.RefreshManualAssignments()

	defs := driver.ManualDefinitions()
	if len(defs) != 1 || defs[0].ID != "plug:shelly:abc" {
		t.Errorf("driver definitions = %v", defs)
	}
}

func TestManager_ReadPowerUnsupported(t *testing.T) {
	m := NewManager(NewRegistry(t.TempDir()), NewFakeDriver(VendorShelly))
	if _, err := m.ReadPower(context.Background(), "plug:shelly:1"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
