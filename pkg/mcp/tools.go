package mcp

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	// Health check
	s.mcpServer.AddTool(
		mcp.NewTool("get_health",
			mcp.WithDescription("Check the health status of the preauto service: scope and rule counts"),
		),
		s.handleGetHealth,
	)

	// Environment snapshot
	s.mcpServer.AddTool(
		mcp.NewTool("get_env",
			mcp.WithDescription("Get the aggregated sensor state of every scope, or one scope"),
			mcp.WithString("scope",
				mcp.Description("Scope id to restrict the snapshot to (optional)"),
			),
		),
		s.handleGetEnv,
	)

	// Ingest sensor
	s.mcpServer.AddTool(
		mcp.NewTool("ingest_sensor",
			mcp.WithDescription("Feed one sensor reading into a scope's environment state"),
			mcp.WithString("scope",
				mcp.Required(),
				mcp.Description("Scope id (e.g. grow-room)"),
			),
			mcp.WithString("type",
				mcp.Required(),
				mcp.Description("Sensor type (e.g. rh, temp, co2)"),
			),
			mcp.WithNumber("value",
				mcp.Required(),
				mcp.Description("Measured value"),
			),
			mcp.WithString("unit",
				mcp.Description("Unit of measure (optional)"),
			),
			mcp.WithString("source",
				mcp.Description("Physical sensor id contributing the reading (optional)"),
			),
		),
		s.handleIngestSensor,
	)

	// List rules
	s.mcpServer.AddTool(
		mcp.NewTool("list_rules",
			mcp.WithDescription("List all automation rules in evaluation order"),
		),
		s.handleListRules,
	)

	// Upsert rule
	s.mcpServer.AddTool(
		mcp.NewTool("upsert_rule",
			mcp.WithDescription("Create or update an automation rule. The rule document is validated; malformed conditions and ambiguous actions are rejected."),
			mcp.WithObject("rule",
				mcp.Required(),
				mcp.Description("Rule document (e.g. {\"id\":\"r1\",\"scope\":{\"room\":\"grow\"},\"when\":{\"rh\":{\"gt\":70}},\"actions\":[{\"plugId\":\"plug:kasa:desk\",\"set\":\"on\"}]})"),
			),
		),
		s.handleUpsertRule,
	)

	// Remove rule
	s.mcpServer.AddTool(
		mcp.NewTool("remove_rule",
			mcp.WithDescription("Delete an automation rule"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Rule id"),
			),
		),
		s.handleRemoveRule,
	)

	// Enable/disable rule
	s.mcpServer.AddTool(
		mcp.NewTool("set_rule_enabled",
			mcp.WithDescription("Enable or disable an automation rule"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Rule id"),
			),
			mcp.WithBoolean("enabled",
				mcp.Required(),
				mcp.Description("Whether the rule should be evaluated"),
			),
		),
		s.handleSetRuleEnabled,
	)

	// List plugs
	s.mcpServer.AddTool(
		mcp.NewTool("list_plugs",
			mcp.WithDescription("Discover smart plugs across all drivers, merged with manually registered entries"),
		),
		s.handleListPlugs,
	)

	// Register plug
	s.mcpServer.AddTool(
		mcp.NewTool("register_plug",
			mcp.WithDescription("Register a smart plug manually. The definition needs a stable short id (shortId, deviceId or host)."),
			mcp.WithObject("plug",
				mcp.Required(),
				mcp.Description("Plug definition (e.g. {\"vendor\":\"kasa\",\"name\":\"Desk\",\"connection\":{\"host\":\"10.0.0.5\"}})"),
			),
		),
		s.handleRegisterPlug,
	)

	// Set plug state
	s.mcpServer.AddTool(
		mcp.NewTool("set_plug_state",
			mcp.WithDescription("Switch a plug directly, bypassing rules and guardrails"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Plug id (plug:<vendor>:<short-id>)"),
			),
			mcp.WithBoolean("on",
				mcp.Required(),
				mcp.Description("Desired relay state"),
			),
		),
		s.handleSetPlugState,
	)

	// Active rules
	s.mcpServer.AddTool(
		mcp.NewTool("get_active_rules",
			mcp.WithDescription("Get the rule most recently actuated per scope"),
			mcp.WithString("scope",
				mcp.Description("Restrict to one scope (optional)"),
			),
		),
		s.handleGetActiveRules,
	)
}
