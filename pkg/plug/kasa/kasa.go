// Package kasa drives TP-Link Kasa smart plugs over the local network.
//
// Kasa devices speak a JSON command protocol on TCP port 9999, obfuscated
// with the well-known XOR autokey cipher and framed with a 4-byte big-endian
// length prefix.
package kasa

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/preauto/preauto/pkg/plug"
)

const (
	defaultPort    = "9999"
	defaultTimeout = 2 * time.Second
	cipherKey      = 171
)

// Driver controls manually registered Kasa plugs by host.
type Driver struct {
	mu      sync.Mutex
	devices map[string]plug.Definition
	timeout time.Duration
	dial    func(ctx context.Context, addr string) (net.Conn, error)
}

// Option configures the driver.
type Option func(*Driver)

// WithTimeout overrides the per-exchange deadline.
func WithTimeout(d time.Duration) Option {
	return func(drv *Driver) {
		drv.timeout = d
	}
}

// NewDriver creates a Kasa driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		devices: map[string]plug.Definition{},
		timeout: defaultTimeout,
	}
	d.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		var dialer net.Dialer
		return dialer.DialContext(ctx, "tcp", addr)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Vendor implements plug.Driver.
func (d *Driver) Vendor() string { return plug.VendorKasa }

// SyncManualDefinitions implements plug.Driver.
func (d *Driver) SyncManualDefinitions(defs []plug.Definition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = make(map[string]plug.Definition, len(defs))
	for _, def := range defs {
		d.devices[def.ID] = def
	}
}

type sysInfo struct {
	Alias      string `json:"alias"`
	Model      string `json:"model"`
	RelayState int    `json:"relay_state"`
	ErrCode    int    `json:"err_code"`
}

type realtime struct {
	Power   *float64 `json:"power"`
	PowerMW *float64 `json:"power_mw"`
	ErrCode int      `json:"err_code"`
}

// Discover implements plug.Driver by probing each registered device.
func (d *Driver) Discover(ctx context.Context) ([]plug.Plug, error) {
	defs := d.definitions()
	plugs := make([]plug.Plug, 0, len(defs))
	for _, def := range defs {
		info, err := d.sysInfo(ctx, def)
		if err != nil {
			plugs = append(plugs, normalize(def, sysInfo{}, nil, false))
			continue
		}
		power := d.power(ctx, def)
		plugs = append(plugs, normalize(def, info, power, true))
	}
	return plugs, nil
}

// GetState implements plug.Driver.
func (d *Driver) GetState(ctx context.Context, plugID string) (plug.State, error) {
	def, err := d.definition(plugID)
	if err != nil {
		return plug.State{}, err
	}
	info, err := d.sysInfo(ctx, def)
	if err != nil {
		return plug.State{}, err
	}
	return plug.State{
		Online:   true,
		On:       info.RelayState == 1,
		PowerW:   d.power(ctx, def),
		LastSeen: time.Now(),
	}, nil
}

// SetOn implements plug.Driver.
func (d *Driver) SetOn(ctx context.Context, plugID string, on bool) (plug.State, error) {
	def, err := d.definition(plugID)
	if err != nil {
		return plug.State{}, err
	}

	state := 0
	if on {
		state = 1
	}
	cmd := fmt.Sprintf(`{"system":{"set_relay_state":{"state":%d}}}`, state)
	var resp struct {
		System struct {
			SetRelayState struct {
				ErrCode int `json:"err_code"`
			} `json:"set_relay_state"`
		} `json:"system"`
	}
	if err := d.exchange(ctx, def, cmd, &resp); err != nil {
		return plug.State{}, err
	}
	if code := resp.System.SetRelayState.ErrCode; code != 0 {
		return plug.State{}, fmt.Errorf("kasa set_relay_state failed (err_code %d)", code)
	}
	return d.GetState(ctx, plugID)
}

// ReadPower implements plug.Driver. Only emeter-equipped models report
// power; the rest return ErrUnsupported.
func (d *Driver) ReadPower(ctx context.Context, plugID string) (float64, error) {
	def, err := d.definition(plugID)
	if err != nil {
		return 0, err
	}
	power := d.power(ctx, def)
	if power == nil {
		return 0, plug.ErrUnsupported
	}
	return *power, nil
}

func (d *Driver) sysInfo(ctx context.Context, def plug.Definition) (sysInfo, error) {
	var resp struct {
		System struct {
			GetSysInfo sysInfo `json:"get_sysinfo"`
		} `json:"system"`
	}
	if err := d.exchange(ctx, def, `{"system":{"get_sysinfo":{}}}`, &resp); err != nil {
		return sysInfo{}, err
	}
	return resp.System.GetSysInfo, nil
}

// power reads the emeter, returning nil when the device has none.
func (d *Driver) power(ctx context.Context, def plug.Definition) *float64 {
	var resp struct {
		Emeter struct {
			GetRealtime realtime `json:"get_realtime"`
		} `json:"emeter"`
	}
	if err := d.exchange(ctx, def, `{"emeter":{"get_realtime":{}}}`, &resp); err != nil {
		return nil
	}
	rt := resp.Emeter.GetRealtime
	if rt.ErrCode != 0 {
		return nil
	}
	if rt.Power != nil {
		return rt.Power
	}
	if rt.PowerMW != nil {
		w := *rt.PowerMW / 1000
		return &w
	}
	return nil
}

func (d *Driver) exchange(ctx context.Context, def plug.Definition, command string, out any) error {
	if def.Connection.Host == "" {
		return fmt.Errorf("kasa plug %s has no host configured", def.ID)
	}
	addr := def.Connection.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultPort)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, err := d.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("kasa dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(Frame([]byte(command))); err != nil {
		return fmt.Errorf("kasa write: %w", err)
	}

	var lengthPrefix [4]byte
	if _, err := io.ReadFull(conn, lengthPrefix[:]); err != nil {
		return fmt.Errorf("kasa read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > 1<<20 {
		return fmt.Errorf("kasa response too large (%d bytes)", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return fmt.Errorf("kasa read payload: %w", err)
	}

	if err := json.Unmarshal(Decrypt(payload), out); err != nil {
		return fmt.Errorf("kasa decode: %w", err)
	}
	return nil
}

func (d *Driver) definition(plugID string) (plug.Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.devices[plugID]
	if !ok {
		return plug.Definition{}, fmt.Errorf("%w: kasa plug %s not registered", plug.ErrNotFound, plugID)
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

func normalize(def plug.Definition, info sysInfo, power *float64, online bool) plug.Plug {
	source := plug.SourceDiscovered
	if def.Manual {
		source = plug.SourceManual
	}
	name := def.Name
	if name == "" {
		name = info.Alias
	}
	model := info.Model
	if model == "" {
		model = def.Model
	}
	if model == "" {
		model = "Kasa Plug"
	}
	return plug.Plug{
		ID:         def.ID,
		Vendor:     plug.VendorKasa,
		Name:       name,
		Model:      model,
		Source:     source,
		Connection: def.Connection,
		State: plug.State{
			Online:   online,
			On:       info.RelayState == 1,
			PowerW:   power,
			LastSeen: time.Now(),
		},
		Capabilities: plug.Capabilities{
			PowerMonitoring: power != nil,
		},
	}
}

// Encrypt applies the Kasa XOR autokey cipher to plaintext.
func Encrypt(plaintext []byte) []byte {
	out := make([]byte, len(plaintext))
	key := byte(cipherKey)
	for i, b := range plaintext {
		out[i] = b ^ key
		key = out[i]
	}
	return out
}

// Decrypt reverses the XOR autokey cipher.
func Decrypt(ciphertext []byte) []byte {
	out := make([]byte, len(ciphertext))
	key := byte(cipherKey)
	for i, b := range ciphertext {
		out[i] = b ^ key
		key = b
	}
	return out
}

// Frame encrypts payload and prepends the 4-byte big-endian length prefix.
func Frame(payload []byte) []byte {
	encrypted := Encrypt(payload)
	out := make([]byte, 4+len(encrypted))
	binary.BigEndian.PutUint32(out, uint32(len(encrypted)))
	copy(out[4:], encrypted)
	return out
}
