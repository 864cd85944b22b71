package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/preauto/preauto/pkg/api/types"
	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/plug"
)

// PlugsHandler handles plug registry and control endpoints
type PlugsHandler struct {
	engine *automation.Engine
}

// NewPlugsHandler creates a new plugs handler
func NewPlugsHandler(engine *automation.Engine) *PlugsHandler {
	return &PlugsHandler{engine: engine}
}

// ListPlugs handles GET /plugs
// @Summary      List plugs
// @Description  Discovers plugs across all drivers, merged with registry-only manual entries
// @Tags         plugs
// @Produce      json
// @Success      200  {object}  types.ListPlugsResponse
// @Router       /plugs [get]
func (h *PlugsHandler) ListPlugs(c *gin.Context) {
	plugs := h.engine.ListPlugs(c.Request.Context())
	c.JSON(http.StatusOK, types.ListPlugsResponse{
		Plugs: plugs,
		Count: len(plugs),
	})
}

// RegisterPlug handles POST /plugs
// @Summary      Register a plug
// @Description  Stores a manual plug definition. The definition needs a stable short id (shortId, deviceId or host).
// @Tags         plugs
// @Accept       json
// @Produce      json
// @Param        request  body      plug.Definition  true  "Plug definition"
// @Success      201      {object}  types.PlugDefinitionResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid definition"
// @Router       /plugs [post]
func (h *PlugsHandler) RegisterPlug(c *gin.Context) {
	var def plug.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, err.Error())
		return
	}

	stored, err := h.engine.RegisterPlug(def)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusCreated, types.PlugDefinitionResponse{Plug: stored})
}

// UnregisterPlug handles DELETE /plugs/:id
// @Summary      Unregister a plug
// @Tags         plugs
// @Produce      json
// @Param        id   path  string  true  "Plug id"
// @Success      204  "Plug removed"
// @Failure      404  {object}  types.ErrorResponse  "Plug not found"
// @Router       /plugs/{id} [delete]
func (h *PlugsHandler) UnregisterPlug(c *gin.Context) {
	if !h.engine.UnregisterPlug(c.Param("id")) {
		respondError(c, plug.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetState handles GET /plugs/:id/state
// @Summary      Get plug state
// @Tags         plugs
// @Produce      json
// @Param        id   path      string  true  "Plug id"
// @Success      200  {object}  types.PlugStateResponse
// @Failure      404  {object}  types.ErrorResponse  "Plug not found"
// @Failure      502  {object}  types.ErrorResponse  "No driver for vendor"
// @Router       /plugs/{id}/state [get]
func (h *PlugsHandler) GetState(c *gin.Context) {
	plugID := c.Param("id")
	state, err := h.engine.PlugState(c.Request.Context(), plugID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.PlugStateResponse{
		PlugID: plugID,
		State:  state,
	})
}

// SetState handles POST /plugs/:id/state
// @Summary      Switch a plug
// @Description  Sets the plug's relay directly, bypassing rules and guardrails
// @Tags         plugs
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Plug id"
// @Param        request  body      types.SetPlugStateRequest  true  "Desired state"
// @Success      200      {object}  types.PlugStateResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      404      {object}  types.ErrorResponse  "Plug not found"
// @Failure      502      {object}  types.ErrorResponse  "No driver for vendor"
// @Router       /plugs/{id}/state [post]
func (h *PlugsHandler) SetState(c *gin.Context) {
	plugID := c.Param("id")

	var req types.SetPlugStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "on is required")
		return
	}

	state, err := h.engine.SetPlugState(c.Request.Context(), plugID, *req.On)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.PlugStateResponse{
		PlugID: plugID,
		State:  state,
	})
}
