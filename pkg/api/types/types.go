package types

import (
	"encoding/json"
	"time"

	"github.com/preauto/preauto/pkg/audit"
	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/env"
	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/rules"
)

// --- Request DTOs ---

// IngestSensorRequest is the request body for POST /env/:scope/sensors/:type
type IngestSensorRequest struct {
	Value      *float64       `json:"value" binding:"required"`
	Unit       string         `json:"unit"`
	ObservedAt *time.Time     `json:"observed_at"`
	Source     string         `json:"source"`
	Weight     float64        `json:"weight"`
	Meta       map[string]any `json:"meta"`
}

// SetTargetsRequest is the request body for PUT /env/:scope/targets
type SetTargetsRequest struct {
	Targets map[string]float64 `json:"targets" binding:"required"`
}

// SetRuleEnabledRequest is the request body for POST /rules/:id/enable
type SetRuleEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// AssignPlugRequest is the request body for POST /rules/:id/plugs
type AssignPlugRequest struct {
	PlugID string `json:"plugId" binding:"required"`
	On     bool   `json:"on"`
}

// SetPlugStateRequest is the request body for POST /plugs/:id/state
type SetPlugStateRequest struct {
	On *bool `json:"on" binding:"required"`
}

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Scopes    int       `json:"scopes"`
	Rules     int       `json:"rules"`
	Timestamp time.Time `json:"timestamp"`
}

// EnvResponse is returned from GET /env
type EnvResponse struct {
	Scopes map[string]env.Scope `json:"scopes"`
	Count  int                  `json:"count"`
}

// ScopeResponse is returned after a sensor ingest
type ScopeResponse struct {
	Scope string    `json:"scope"`
	Env   env.Scope `json:"env"`
}

// TargetsResponse is returned from GET/PUT /env/:scope/targets
type TargetsResponse struct {
	Scope   string             `json:"scope"`
	Targets map[string]float64 `json:"targets"`
}

// ListRoomsResponse is returned from GET /env/rooms
type ListRoomsResponse struct {
	Rooms []env.Room `json:"rooms"`
	Count int        `json:"count"`
}

// RoomResponse is returned from room lookups and updates
type RoomResponse struct {
	Room env.Room `json:"room"`
}

// ListRulesResponse is returned from GET /rules
type ListRulesResponse struct {
	Rules []rules.Rule `json:"rules"`
	Count int          `json:"count"`
}

// RuleResponse wraps a single rule
type RuleResponse struct {
	Rule rules.Rule `json:"rule"`
}

// RuleDocument is a raw rule payload; it is schema-validated before parsing
type RuleDocument = json.RawMessage

// ListPlugsResponse is returned from GET /plugs
type ListPlugsResponse struct {
	Plugs []plug.Plug `json:"plugs"`
	Count int         `json:"count"`
}

// PlugDefinitionResponse wraps a registered plug definition
type PlugDefinitionResponse struct {
	Plug plug.Definition `json:"plug"`
}

// PlugStateResponse is returned from GET/POST /plugs/:id/state
type PlugStateResponse struct {
	PlugID string     `json:"plugId"`
	State  plug.State `json:"state"`
}

// ActiveRulesResponse is returned from GET /automation/active
type ActiveRulesResponse struct {
	Active map[string]automation.ActiveRule `json:"active"`
}

// AuditLogResponse is returned from GET /automation/log
type AuditLogResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}
