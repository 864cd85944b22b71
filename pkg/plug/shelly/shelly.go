// Package shelly drives Shelly Gen2 smart plugs over their local HTTP RPC.
package shelly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/preauto/preauto/pkg/plug"
)

const defaultTimeout = 2 * time.Second

// Driver controls manually registered Shelly plugs. Devices are addressed by
// host from the registry definition; there is no LAN discovery, Discover
// probes each known device for live state.
type Driver struct {
	mu      sync.Mutex
	devices map[string]plug.Definition
	client  *http.Client
	baseURL func(host string) string
}

// Option configures the driver.
type Option func(*Driver)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(drv *Driver) {
		drv.client.Timeout = d
	}
}

// NewDriver creates a Shelly driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		devices: map[string]plug.Definition{},
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: func(host string) string { return "http://" + host },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Vendor implements plug.Driver.
func (d *Driver) Vendor() string { return plug.VendorShelly }

// SyncManualDefinitions implements plug.Driver.
func (d *Driver) SyncManualDefinitions(defs []plug.Definition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = make(map[string]plug.Definition, len(defs))
	for _, def := range defs {
		d.devices[def.ID] = def
	}
}

// Discover implements plug.Driver. Each known device is probed for live
// state; unreachable devices are reported offline rather than omitted.
func (d *Driver) Discover(ctx context.Context) ([]plug.Plug, error) {
	defs := d.definitions()
	plugs := make([]plug.Plug, 0, len(defs))
	for _, def := range defs {
		state, err := d.GetState(ctx, def.ID)
		if err != nil {
			state = plug.State{Online: false}
		}
		plugs = append(plugs, normalize(def, state))
	}
	return plugs, nil
}

// GetState implements plug.Driver.
func (d *Driver) GetState(ctx context.Context, plugID string) (plug.State, error) {
	def, err := d.definition(plugID)
	if err != nil {
		return plug.State{}, err
	}

	var status struct {
		Output bool     `json:"output"`
		APower *float64 `json:"apower"`
	}
	params := url.Values{"id": {fmt.Sprint(def.Connection.Channel)}}
	if err := d.rpc(ctx, def, "Switch.GetStatus", params, &status); err != nil {
		return plug.State{}, err
	}

	return plug.State{
		Online:   true,
		On:       status.Output,
		PowerW:   status.APower,
		LastSeen: time.Now(),
	}, nil
}

// SetOn implements plug.Driver.
func (d *Driver) SetOn(ctx context.Context, plugID string, on bool) (plug.State, error) {
	def, err := d.definition(plugID)
	if err != nil {
		return plug.State{}, err
	}

	params := url.Values{
		"id": {fmt.Sprint(def.Connection.Channel)},
		"on": {fmt.Sprint(on)},
	}
	if err := d.rpc(ctx, def, "Switch.Set", params, &struct{}{}); err != nil {
		return plug.State{}, err
	}
	return d.GetState(ctx, plugID)
}

// ReadPower implements plug.Driver. Shelly plugs have power metering.
func (d *Driver) ReadPower(ctx context.Context, plugID string) (float64, error) {
	state, err := d.GetState(ctx, plugID)
	if err != nil {
		return 0, err
	}
	if state.PowerW == nil {
		return 0, plug.ErrUnsupported
	}
	return *state.PowerW, nil
}

func (d *Driver) rpc(ctx context.Context, def plug.Definition, method string, params url.Values, out any) error {
	if def.Connection.Host == "" {
		return fmt.Errorf("shelly plug %s has no host configured", def.ID)
	}
	if def.Connection.Token != "" {
		params.Set("auth_key", def.Connection.Token)
	}

	reqURL := fmt.Sprintf("%s/rpc/%s?%s", d.baseURL(def.Connection.Host), method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("shelly request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("shelly request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("shelly rpc %s failed (%d)", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("shelly rpc %s: decode: %w", method, err)
	}
	return nil
}

func (d *Driver) definition(plugID string) (plug.Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.devices[plugID]
	if !ok {
		return plug.Definition{}, fmt.Errorf("%w: shelly plug %s not registered", plug.ErrNotFound, plugID)
	}
	return def, nil
}

func (d *Driver) definitions() []plug.Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]plug.Definition, 0, len(d.devices))
	for _, def := range d.devices {
		out = append(out, def)
	}
	return out
}

func normalize(def plug.Definition, state plug.State) plug.Plug {
	source := plug.SourceDiscovered
	if def.Manual {
		source = plug.SourceManual
	}
	model := def.Model
	if model == "" {
		model = "Shelly Plug"
	}
	return plug.Plug{
		ID:         def.ID,
		Vendor:     plug.VendorShelly,
		Name:       def.Name,
		Model:      model,
		Source:     source,
		Connection: def.Connection,
		State:      state,
		Capabilities: plug.Capabilities{
			PowerMonitoring: true,
		},
	}
}
