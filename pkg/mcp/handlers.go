package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/env"
	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/rules"
)

func (s *Server) handleGetHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := GetHealthOutput{
		Status:    "healthy",
		Scopes:    len(s.engine.EnvSnapshot()),
		Rules:     len(s.engine.ListRules()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetEnv(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if scopeID, ok := request.GetArguments()["scope"].(string); ok && scopeID != "" {
		out := GetEnvOutput{
			Scopes: map[string]env.Scope{scopeID: s.engine.EnvScope(scopeID)},
			Count:  1,
		}
		return mcp.NewToolResultText(formatJSON(out)), nil
	}

	scopes := s.engine.EnvSnapshot()
	out := GetEnvOutput{
		Scopes: scopes,
		Count:  len(scopes),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleIngestSensor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scopeID, err := requiredString(request, "scope")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sensorType, err := requiredString(request, "type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	value, ok := args["value"].(float64)
	if !ok {
		return mcp.NewToolResultError(`required parameter "value" must be a number`), nil
	}

	reading := env.Reading{Value: value}
	if unit, ok := args["unit"].(string); ok {
		reading.Unit = unit
	}
	if source, ok := args["source"].(string); ok {
		reading.Source = source
	}

	scope := s.engine.IngestSensor(scopeID, sensorType, reading)
	out := IngestSensorOutput{
		Scope: scopeID,
		Env:   scope,
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stored := s.engine.ListRules()
	out := ListRulesOutput{
		Rules: stored,
		Count: len(stored),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleUpsertRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ruleRaw, ok := request.GetArguments()["rule"]
	if !ok {
		return mcp.NewToolResultError(`required parameter "rule" is missing`), nil
	}

	doc, err := json.Marshal(ruleRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unencodable rule document: %s", err)), nil
	}

	if s.validator != nil {
		if err := s.validator.ValidateRule(doc); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("validation error: %s", err)), nil
		}
	}

	var rule rules.Rule
	if err := json.Unmarshal(doc, &rule); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid rule: %s", err)), nil
	}

	stored, err := s.engine.UpsertRule(rule)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store rule: %s", err)), nil
	}

	out := UpsertRuleOutput{Rule: stored}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleRemoveRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if !s.engine.RemoveRule(id) {
		return mcp.NewToolResultError(fmt.Sprintf("rule %q not found", id)), nil
	}

	out := RemoveRuleOutput{
		Success: true,
		Message: fmt.Sprintf("Rule %q removed", id),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleSetRuleEnabled(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	enabled, ok := request.GetArguments()["enabled"].(bool)
	if !ok {
		return mcp.NewToolResultError(`required parameter "enabled" must be a boolean`), nil
	}

	rule, err := s.engine.SetRuleEnabled(id, enabled)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update rule: %s", err)), nil
	}

	out := SetRuleEnabledOutput{Rule: rule}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListPlugs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plugs := s.engine.ListPlugs(ctx)
	out := ListPlugsOutput{
		Plugs: plugs,
		Count: len(plugs),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleRegisterPlug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plugRaw, ok := request.GetArguments()["plug"]
	if !ok {
		return mcp.NewToolResultError(`required parameter "plug" is missing`), nil
	}

	doc, err := json.Marshal(plugRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unencodable plug definition: %s", err)), nil
	}

	var def plug.Definition
	if err := json.Unmarshal(doc, &def); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid plug definition: %s", err)), nil
	}

	stored, err := s.engine.RegisterPlug(def)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register plug: %s", err)), nil
	}

	out := RegisterPlugOutput{Plug: stored}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleSetPlugState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	on, ok := request.GetArguments()["on"].(bool)
	if !ok {
		return mcp.NewToolResultError(`required parameter "on" must be a boolean`), nil
	}

	state, err := s.engine.SetPlugState(ctx, id, on)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set plug state: %s", err)), nil
	}

	out := SetPlugStateOutput{
		PlugID: id,
		State:  state,
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetActiveRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if scopeID, ok := request.GetArguments()["scope"].(string); ok && scopeID != "" {
		active := map[string]automation.ActiveRule{}
		if rule, found := s.engine.ActiveRule(scopeID); found {
			active[scopeID] = rule
		}
		return mcp.NewToolResultText(formatJSON(GetActiveRulesOutput{Active: active})), nil
	}

	out := GetActiveRulesOutput{Active: s.engine.ActiveRules()}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- helpers ---

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	args := request.GetArguments()
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("required parameter %q is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}
