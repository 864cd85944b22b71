package mcp

import (
	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/env"
	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/rules"
)

// --- Health Tool ---

// GetHealthOutput is the output for the get_health tool
type GetHealthOutput struct {
	Status    string `json:"status" jsonschema:"description=Overall health status"`
	Scopes    int    `json:"scopes" jsonschema:"description=Number of scopes with sensor data"`
	Rules     int    `json:"rules" jsonschema:"description=Number of stored rules"`
	Timestamp string `json:"timestamp" jsonschema:"description=ISO8601 timestamp"`
}

// --- Environment Tools ---

// GetEnvOutput is the output for the get_env tool
type GetEnvOutput struct {
	Scopes map[string]env.Scope `json:"scopes" jsonschema:"description=Aggregated sensor state per scope"`
	Count  int                  `json:"count" jsonschema:"description=Number of scopes returned"`
}

// IngestSensorOutput is the output for the ingest_sensor tool
type IngestSensorOutput struct {
	Scope string    `json:"scope" jsonschema:"description=Scope the reading was folded into"`
	Env   env.Scope `json:"env" jsonschema:"description=The scope's aggregated state after the update"`
}

// --- Rule Tools ---

// ListRulesOutput is the output for the list_rules tool
type ListRulesOutput struct {
	Rules []rules.Rule `json:"rules" jsonschema:"description=Stored rules in evaluation order"`
	Count int          `json:"count" jsonschema:"description=Total number of rules"`
}

// UpsertRuleOutput is the output for the upsert_rule tool
type UpsertRuleOutput struct {
	Rule rules.Rule `json:"rule" jsonschema:"description=The stored rule after validation and defaulting"`
}

// RemoveRuleOutput is the output for the remove_rule tool
type RemoveRuleOutput struct {
	Success bool   `json:"success" jsonschema:"description=Whether the rule was removed"`
	Message string `json:"message" jsonschema:"description=Status message"`
}

// SetRuleEnabledOutput is the output for the set_rule_enabled tool
type SetRuleEnabledOutput struct {
	Rule rules.Rule `json:"rule" jsonschema:"description=The rule after the change"`
}

// --- Plug Tools ---

// ListPlugsOutput is the output for the list_plugs tool
type ListPlugsOutput struct {
	Plugs []plug.Plug `json:"plugs" jsonschema:"description=Discovered and manually registered plugs"`
	Count int         `json:"count" jsonschema:"description=Total number of plugs"`
}

// RegisterPlugOutput is the output for the register_plug tool
type RegisterPlugOutput struct {
	Plug plug.Definition `json:"plug" jsonschema:"description=The stored plug definition"`
}

// SetPlugStateOutput is the output for the set_plug_state tool
type SetPlugStateOutput struct {
	PlugID string     `json:"plugId" jsonschema:"description=Plug identifier"`
	State  plug.State `json:"state" jsonschema:"description=Plug state after the change"`
}

// --- Automation Tools ---

// GetActiveRulesOutput is the output for the get_active_rules tool
type GetActiveRulesOutput struct {
	Active map[string]automation.ActiveRule `json:"active" jsonschema:"description=Most recently actuated rule per scope"`
}
