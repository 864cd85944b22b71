// Package switchbot drives SwitchBot plugs through the vendor cloud API.
//
// Requests are signed per API v1.1: sign = base64(HMAC-SHA256(secret,
// token + t + nonce)) carried in the Authorization/t/sign/nonce headers.
package switchbot

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/preauto/preauto/pkg/plug"
)

const (
	defaultBaseURL = "https://api.switch-bot.com/v1.1"
	defaultTimeout = 5 * time.Second
)

// Driver controls SwitchBot plugs registered with cloud credentials.
type Driver struct {
	mu      sync.Mutex
	devices map[string]plug.Definition
	client  *http.Client
	baseURL string
	now     func() time.Time
	nonce   func() string
}

// Option configures the driver.
type Option func(*Driver)

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(drv *Driver) {
		drv.client.Timeout = d
	}
}

// WithBaseURL points the driver at a different API endpoint.
func WithBaseURL(url string) Option {
	return func(drv *Driver) {
		drv.baseURL = strings.TrimRight(url, "/")
	}
}

// NewDriver creates a SwitchBot driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		devices: map[string]plug.Definition{},
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: defaultBaseURL,
		now:     time.Now,
		nonce:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Vendor implements plug.Driver.
func (d *Driver) Vendor() string { return plug.VendorSwitchBot }

// SyncManualDefinitions implements plug.Driver.
func (d *Driver) SyncManualDefinitions(defs []plug.Definition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = make(map[string]plug.Definition, len(defs))
	for _, def := range defs {
		d.devices[def.ID] = def
	}
}

// Sign computes the API v1.1 request signature for the given credentials
// and timestamp.
func Sign(token, secret, timestamp, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token + timestamp + nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type apiEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Body       json.RawMessage `json:"body"`
}

type deviceStatus struct {
	DeviceID string   `json:"deviceId"`
	Power    string   `json:"power"`
	Weight   *float64 `json:"weight"`
	Watts    *float64 `json:"watts"`
}

// Discover implements plug.Driver by polling the status of each registered
// device. The cloud device list is intentionally not enumerated; only plugs
// someone registered are touched.
func (d *Driver) Discover(ctx context.Context) ([]plug.Plug, error) {
	defs := d.definitions()
	plugs := make([]plug.Plug, 0, len(defs))
	for _, def := range defs {
		status, err := d.status(ctx, def)
		if err != nil {
			plugs = append(plugs, normalize(def, deviceStatus{}, false))
			continue
		}
		plugs = append(plugs, normalize(def, status, true))
	}
	return plugs, nil
}

// GetState implements plug.Driver.
func (d *Driver) GetState(ctx context.Context, plugID string) (plug.State, error) {
	def, err := d.definition(plugID)
	if err != nil {
		return plug.State{}, err
	}
	status, err := d.status(ctx, def)
	if err != nil {
		return plug.State{}, err
	}
	return stateFrom(status), nil
}

// SetOn implements plug.Driver.
func (d *Driver) SetOn(ctx context.Context, plugID string, on bool) (plug.State, error) {
	def, err := d.definition(plugID)
	if err != nil {
		return plug.State{}, err
	}

	command := "turnOff"
	if on {
		command = "turnOn"
	}
	body := map[string]string{
		"command":     command,
		"parameter":   "default",
		"commandType": "command",
	}
	path := fmt.Sprintf("/devices/%s/commands", def.Connection.DeviceID)
	if _, err := d.request(ctx, def, http.MethodPost, path, body); err != nil {
		return plug.State{}, err
	}
	return d.GetState(ctx, plugID)
}

// ReadPower implements plug.Driver. Plug Mini models report watts; others
// return ErrUnsupported.
func (d *Driver) ReadPower(ctx context.Context, plugID string) (float64, error) {
	def, err := d.definition(plugID)
	if err != nil {
		return 0, err
	}
	status, err := d.status(ctx, def)
	if err != nil {
		return 0, err
	}
	power := watts(status)
	if power == nil {
		return 0, plug.ErrUnsupported
	}
	return *power, nil
}

func (d *Driver) status(ctx context.Context, def plug.Definition) (deviceStatus, error) {
	path := fmt.Sprintf("/devices/%s/status", def.Connection.DeviceID)
	body, err := d.request(ctx, def, http.MethodGet, path, nil)
	if err != nil {
		return deviceStatus{}, err
	}
	var status deviceStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return deviceStatus{}, fmt.Errorf("switchbot decode status: %w", err)
	}
	return status, nil
}

func (d *Driver) request(ctx context.Context, def plug.Definition, method, path string, payload any) (json.RawMessage, error) {
	if def.Connection.Token == "" || def.Connection.Secret == "" {
		return nil, fmt.Errorf("switchbot plug %s is missing cloud credentials", def.ID)
	}
	if def.Connection.DeviceID == "" {
		return nil, fmt.Errorf("switchbot plug %s has no deviceId configured", def.ID)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("switchbot encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("switchbot build request: %w", err)
	}

	timestamp := strconv.FormatInt(d.now().UnixMilli(), 10)
	nonce := d.nonce()
	req.Header.Set("Authorization", def.Connection.Token)
	req.Header.Set("t", timestamp)
	req.Header.Set("sign", Sign(def.Connection.Token, def.Connection.Secret, timestamp, nonce))
	req.Header.Set("nonce", nonce)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("switchbot %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("switchbot %s %s: HTTP %d", method, path, resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("switchbot decode response: %w", err)
	}
	if envelope.StatusCode != 100 {
		return nil, fmt.Errorf("switchbot API error %d: %s", envelope.StatusCode, envelope.Message)
	}
	return envelope.Body, nil
}

func (d *Driver) definition(plugID string) (plug.Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.devices[plugID]
	if !ok {
		return plug.Definition{}, fmt.Errorf("%w: switchbot plug %s not registered", plug.ErrNotFound, plugID)
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

func watts(status deviceStatus) *float64 {
	if status.Watts != nil {
		return status.Watts
	}
	return status.Weight
}

func stateFrom(status deviceStatus) plug.State {
	return plug.State{
		Online:   true,
		On:       strings.EqualFold(status.Power, "on"),
		PowerW:   watts(status),
		LastSeen: time.Now(),
	}
}

func normalize(def plug.Definition, status deviceStatus, online bool) plug.Plug {
	source := plug.SourceDiscovered
	if def.Manual {
		source = plug.SourceManual
	}
	model := def.Model
	if model == "" {
		model = "SwitchBot Plug"
	}
	state := stateFrom(status)
	state.Online = online
	return plug.Plug{
		ID:         def.ID,
		Vendor:     plug.VendorSwitchBot,
		Name:       def.Name,
		Model:      model,
		Source:     source,
		Connection: def.Connection,
		State:      state,
		Capabilities: plug.Capabilities{
			PowerMonitoring: watts(status) != nil,
		},
	}
}
