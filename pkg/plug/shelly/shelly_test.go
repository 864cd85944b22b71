package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/preauto/preauto/pkg/plug"
)

// fakeShelly emulates the Gen2 RPC endpoints used by the driver.
type fakeShelly struct {
	on     bool
	apower float64
}

func (f *fakeShelly) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc/Switch.GetStatus", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"output": f.on, "apower": f.apower})
	})
	mux.HandleFunc("/rpc/Switch.Set", func(w http.ResponseWriter, r *http.Request) {
		f.on = r.URL.Query().Get("on") == "true"
		_ = json.NewEncoder(w).Encode(map[string]any{"was_on": !f.on})
	})
	return mux
}

func newTestDriver(t *testing.T, fake *fakeShelly) *Driver {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	d := NewDriver()
	d.baseURL = func(host string) string { return server.URL }
	d.SyncManualDefinitions([]plug.Definition{{
		ID:         "plug:shelly:test",
		Vendor:     plug.VendorShelly,
		Name:       "test plug",
		Manual:     true,
		Connection: plug.Connection{Host: "device.local"},
	}})
	return d
}

func TestGetState(t *testing.T) {
	fake := &fakeShelly{on: true, apower: 42.5}
	d := newTestDriver(t, fake)

	state, err := d.GetState(context.Background(), "plug:shelly:test")
	if err != nil {
		t.Fatal(err)
	}
	if !state.Online || !state.On {
		t.Errorf("state = %+v", state)
	}
	if state.PowerW == nil || *state.PowerW != 42.5 {
		t.Errorf("powerW = %v", state.PowerW)
	}
}

func TestSetOn_RoundTripsThroughStatus(t *testing.T) {
	fake := &fakeShelly{}
	d := newTestDriver(t, fake)

	state, err := d.SetOn(context.Background(), "plug:shelly:test", true)
	if err != nil {
		t.Fatal(err)
	}
	if !state.On {
		t.Error("expected returned state to reflect the switch")
	}
	if !fake.on {
		t.Error("device was not switched")
	}
}

func TestReadPower(t *testing.T) {
	d := newTestDriver(t, &fakeShelly{apower: 17})

	watts, err := d.ReadPower(context.Background(), "plug:shelly:test")
	if err != nil {
		t.Fatal(err)
	}
	if watts != 17 {
		t.Errorf("watts = %v", watts)
	}
}

func TestGetState_UnregisteredPlug(t *testing.T) {
	d := newTestDriver(t, &fakeShelly{})

	_, err := d.GetState(context.Background(), "plug:shelly:ghost")
	if !errors.Is(err, plug.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetState_MissingHost(t *testing.T) {
	d := NewDriver()
	d.SyncManualDefinitions([]plug.Definition{{ID: "plug:shelly:nohost", Vendor: plug.VendorShelly}})

	if _, err := d.GetState(context.Background(), "plug:shelly:nohost"); err == nil {
		t.Error("expected error for definition without host")
	}
}

func TestDiscover_UnreachableDeviceReportedOffline(t *testing.T) {
	d := NewDriver()
	d.SyncManualDefinitions([]plug.Definition{{
		ID:         "plug:shelly:dead",
		Vendor:     plug.VendorShelly,
		Name:       "dead plug",
		Manual:     true,
		Connection: plug.Connection{Host: "127.0.0.1:1"},
	}})

	plugs, err := d.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(plugs) != 1 {
		t.Fatalf("expected 1 plug, got %d", len(plugs))
	}
	if plugs[0].State.Online {
		t.Error("unreachable device should be offline")
	}
	if plugs[0].Source != plug.SourceManual {
		t.Errorf("source = %q", plugs[0].Source)
	}
}
