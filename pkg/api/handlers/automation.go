package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/preauto/preauto/pkg/api/types"
	"github.com/preauto/preauto/pkg/automation"
)

const defaultLogLimit = 50

// AutomationHandler exposes engine introspection endpoints
type AutomationHandler struct {
	engine *automation.Engine
}

// NewAutomationHandler creates a new automation handler
func NewAutomationHandler(engine *automation.Engine) *AutomationHandler {
	return &AutomationHandler{engine: engine}
}

// ActiveRules handles GET /automation/active
// @Summary      Active rules
// @Description  Returns the rule most recently actuated per scope. With ?scope= only that scope is returned.
// @Tags         automation
// @Produce      json
// @Param        scope  query     string  false  "Restrict to one scope"
// @Success      200    {object}  types.ActiveRulesResponse
// @Router       /automation/active [get]
func (h *AutomationHandler) ActiveRules(c *gin.Context) {
	if scopeID := c.Query("scope"); scopeID != "" {
		active := map[string]automation.ActiveRule{}
		if rule, ok := h.engine.ActiveRule(scopeID); ok {
			active[scopeID] = rule
		}
		c.JSON(http.StatusOK, types.ActiveRulesResponse{Active: active})
		return
	}
	c.JSON(http.StatusOK, types.ActiveRulesResponse{Active: h.engine.ActiveRules()})
}

// AuditLog handles GET /automation/log
// @Summary      Execution log
// @Description  Returns the most recent automation decisions, oldest first
// @Tags         automation
// @Produce      json
// @Param        limit  query     int  false  "Maximum entries (default 50)"
// @Success      200    {object}  types.AuditLogResponse
// @Router       /automation/log [get]
func (h *AutomationHandler) AuditLog(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries := h.engine.AuditTail(limit)
	c.JSON(http.StatusOK, types.AuditLogResponse{
		Entries: entries,
		Count:   len(entries),
	})
}
