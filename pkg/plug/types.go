// Package plug provides the smart plug registry, the vendor driver contract
// and the manager that routes control and state requests to drivers.
package plug

import (
	"fmt"
	"strings"
	"time"
)

// Vendor constants for the bundled drivers.
const (
	VendorShelly    = "shelly"
	VendorKasa      = "kasa"
	VendorSwitchBot = "switchbot"
)

// Source values for normalized plugs.
const (
	SourceManual     = "manual"
	SourceDiscovered = "discovered"
)

// State is the runtime power state of a plug. PowerW is nil for plugs
// without power monitoring.
type State struct {
	Online   bool      `json:"online"`
	On       bool      `json:"on"`
	PowerW   *float64  `json:"powerW"`
	LastSeen time.Time `json:"lastSeen"`
}

// Capabilities describes what a plug can do beyond switching.
type Capabilities struct {
	Dimmable        bool `json:"dimmable"`
	PowerMonitoring bool `json:"powerMonitoring"`
}

// Connection carries the vendor-specific coordinates needed to reach a plug.
type Connection struct {
	Host     string `json:"host,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
	Token    string `json:"token,omitempty"`
	Secret   string `json:"secret,omitempty"`
	Channel  int    `json:"channel,omitempty"`
}

// Definition is a manually registered plug as held by the registry.
type Definition struct {
	ID         string         `json:"id"`
	Vendor     string         `json:"vendor"`
	ShortID    string         `json:"shortId,omitempty"`
	Name       string         `json:"name"`
	Model      string         `json:"model,omitempty"`
	Manual     bool           `json:"manual"`
	Connection Connection     `json:"connection"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Plug is the normalized runtime view of a plug, whether discovered by a
// driver or gap-filled from the registry.
type Plug struct {
	ID           string       `json:"id"`
	Vendor       string       `json:"vendor"`
	Name         string       `json:"name"`
	Model        string       `json:"model,omitempty"`
	Source       string       `json:"source"`
	Connection   Connection   `json:"connection"`
	State        State        `json:"state"`
	Capabilities Capabilities `json:"capabilities"`
}

// Command is a desired power state for one plug.
type Command struct {
	PlugID string `json:"plugId"`
	On     bool   `json:"on"`
}

// ActionResult is the outcome of applying one command. Exactly one of State
// and Error is populated.
type ActionResult struct {
	PlugID  string `json:"plugId"`
	Success bool   `json:"success"`
	State   *State `json:"state,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SnapshotEntry is one plug's captured state within a pre/post snapshot.
// A failed capture carries the error and reports offline.
type SnapshotEntry struct {
	Online bool   `json:"online"`
	State  *State `json:"state,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Snapshot maps plug id to captured state for a batch of commands.
type Snapshot map[string]SnapshotEntry

// MakeID builds the canonical plug id `plug:<vendor>:<shortId>`.
func MakeID(vendor, shortID string) string {
	return fmt.Sprintf("plug:%s:%s", vendor, shortID)
}

// VendorFromID extracts the vendor from a canonical plug id.
func VendorFromID(plugID string) (string, bool) {
	parts := strings.SplitN(plugID, ":", 3)
	if len(parts) != 3 || parts[0] != "plug" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
