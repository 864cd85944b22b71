package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/preauto/preauto/pkg/api/types"
	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/rules"
	"github.com/preauto/preauto/pkg/rules/schema"
)

// RulesHandler handles rule CRUD endpoints
type RulesHandler struct {
	engine    *automation.Engine
	validator *schema.Validator
}

// NewRulesHandler creates a new rules handler
func NewRulesHandler(engine *automation.Engine, validator *schema.Validator) *RulesHandler {
	return &RulesHandler{engine: engine, validator: validator}
}

// ListRules handles GET /rules
// @Summary      List rules
// @Description  Returns all stored rules in evaluation order
// @Tags         rules
// @Produce      json
// @Success      200  {object}  types.ListRulesResponse
// @Router       /rules [get]
func (h *RulesHandler) ListRules(c *gin.Context) {
	stored := h.engine.ListRules()
	c.JSON(http.StatusOK, types.ListRulesResponse{
		Rules: stored,
		Count: len(stored),
	})
}

// GetRule handles GET /rules/:id
// @Summary      Get a rule
// @Tags         rules
// @Produce      json
// @Param        id   path      string  true  "Rule id"
// @Success      200  {object}  types.RuleResponse
// @Failure      404  {object}  types.ErrorResponse  "Rule not found"
// @Router       /rules/{id} [get]
func (h *RulesHandler) GetRule(c *gin.Context) {
	rule, err := h.engine.FindRule(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.RuleResponse{Rule: rule})
}

// UpsertRule handles POST /rules and PUT /rules/:id
// @Summary      Create or update a rule
// @Description  Validates the rule document against the rule schema and stores it. Malformed conditions and ambiguous actions are rejected.
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        request  body      object  true  "Rule document"
// @Success      200      {object}  types.RuleResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid rule"
// @Router       /rules [post]
func (h *RulesHandler) UpsertRule(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "unreadable request body")
		return
	}

	if err := h.validator.ValidateRule(body); err != nil {
		badRequest(c, err.Error())
		return
	}

	var rule rules.Rule
	if err := json.Unmarshal(body, &rule); err != nil {
		badRequest(c, err.Error())
		return
	}

	// On PUT the path id wins over any id in the body.
	if pathID := c.Param("id"); pathID != "" {
		rule.ID = pathID
	}

	stored, err := h.engine.UpsertRule(rule)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, types.RuleResponse{Rule: stored})
}

// RemoveRule handles DELETE /rules/:id
// @Summary      Delete a rule
// @Tags         rules
// @Produce      json
// @Param        id   path  string  true  "Rule id"
// @Success      204  "Rule removed"
// @Failure      404  {object}  types.ErrorResponse  "Rule not found"
// @Router       /rules/{id} [delete]
func (h *RulesHandler) RemoveRule(c *gin.Context) {
	if !h.engine.RemoveRule(c.Param("id")) {
		respondError(c, rules.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetEnabled handles POST /rules/:id/enable
// @Summary      Enable or disable a rule
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Rule id"
// @Param        request  body      types.SetRuleEnabledRequest  true  "Enabled flag"
// @Success      200      {object}  types.RuleResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      404      {object}  types.ErrorResponse  "Rule not found"
// @Router       /rules/{id}/enable [post]
func (h *RulesHandler) SetEnabled(c *gin.Context) {
	var req types.SetRuleEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "enabled is required")
		return
	}

	rule, err := h.engine.SetRuleEnabled(c.Param("id"), *req.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.RuleResponse{Rule: rule})
}

// AssignPlug handles POST /rules/:id/plugs
// @Summary      Assign a plug action to a rule
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "Rule id"
// @Param        request  body      types.AssignPlugRequest  true  "Plug assignment"
// @Success      200      {object}  types.RuleResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      404      {object}  types.ErrorResponse  "Rule not found"
// @Router       /rules/{id}/plugs [post]
func (h *RulesHandler) AssignPlug(c *gin.Context) {
	var req types.AssignPlugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "plugId is required")
		return
	}

	rule, err := h.engine.AssignPlug(c.Param("id"), req.PlugID, req.On)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.RuleResponse{Rule: rule})
}

// RemovePlug handles DELETE /rules/:id/plugs/:plugId
// @Summary      Remove a plug assignment from a rule
// @Tags         rules
// @Produce      json
// @Param        id      path      string  true  "Rule id"
// @Param        plugId  path      string  true  "Plug id"
// @Success      200     {object}  types.RuleResponse
// @Failure      404     {object}  types.ErrorResponse  "Rule not found"
// @Router       /rules/{id}/plugs/{plugId} [delete]
func (h *RulesHandler) RemovePlug(c *gin.Context) {
	rule, err := h.engine.RemovePlugAssignment(c.Param("id"), c.Param("plugId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.RuleResponse{Rule: rule})
}
