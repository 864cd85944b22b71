package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/preauto/preauto/pkg/api/types"
	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/env"
)

// EnvHandler handles environment state endpoints
type EnvHandler struct {
	engine *automation.Engine
}

// NewEnvHandler creates a new environment handler
func NewEnvHandler(engine *automation.Engine) *EnvHandler {
	return &EnvHandler{engine: engine}
}

// Snapshot handles GET /env
// @Summary      Environment snapshot
// @Description  Returns the aggregated sensor state of every scope
// @Tags         env
// @Produce      json
// @Success      200  {object}  types.EnvResponse
// @Router       /env [get]
func (h *EnvHandler) Snapshot(c *gin.Context) {
	scopes := h.engine.EnvSnapshot()
	c.JSON(http.StatusOK, types.EnvResponse{
		Scopes: scopes,
		Count:  len(scopes),
	})
}

// GetScope handles GET /env/:scope
// @Summary      Scope state
// @Description  Returns the aggregated sensor state of one scope
// @Tags         env
// @Produce      json
// @Param        scope  path      string  true  "Scope id"
// @Success      200    {object}  types.ScopeResponse
// @Router       /env/{scope} [get]
func (h *EnvHandler) GetScope(c *gin.Context) {
	scopeID := c.Param("scope")
	c.JSON(http.StatusOK, types.ScopeResponse{
		Scope: scopeID,
		Env:   h.engine.EnvScope(scopeID),
	})
}

// IngestSensor handles POST /env/:scope/sensors/:type
// @Summary      Ingest a sensor reading
// @Description  Folds one reading into the scope's aggregated sensor state
// @Tags         env
// @Accept       json
// @Produce      json
// @Param        scope    path      string                     true  "Scope id"
// @Param        type     path      string                     true  "Sensor type (e.g. rh, temp)"
// @Param        request  body      types.IngestSensorRequest  true  "Sensor reading"
// @Success      200      {object}  types.ScopeResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Router       /env/{scope}/sensors/{type} [post]
func (h *EnvHandler) IngestSensor(c *gin.Context) {
	scopeID := c.Param("scope")
	sensorType := c.Param("type")

	var req types.IngestSensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "value is required")
		return
	}

	reading := env.Reading{
		Value:  *req.Value,
		Unit:   req.Unit,
		Source: req.Source,
		Weight: req.Weight,
		Meta:   req.Meta,
	}
	if req.ObservedAt != nil {
		reading.ObservedAt = *req.ObservedAt
	}

	scope := h.engine.IngestSensor(scopeID, sensorType, reading)
	c.JSON(http.StatusOK, types.ScopeResponse{
		Scope: scopeID,
		Env:   scope,
	})
}

// SetTargets handles PUT /env/:scope/targets
// @Summary      Set scope targets
// @Description  Merges desired setpoints for a scope
// @Tags         env
// @Accept       json
// @Produce      json
// @Param        scope    path      string                   true  "Scope id"
// @Param        request  body      types.SetTargetsRequest  true  "Setpoints"
// @Success      200      {object}  types.TargetsResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Router       /env/{scope}/targets [put]
func (h *EnvHandler) SetTargets(c *gin.Context) {
	scopeID := c.Param("scope")

	var req types.SetTargetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "targets is required")
		return
	}

	targets := h.engine.SetTargets(scopeID, req.Targets)
	c.JSON(http.StatusOK, types.TargetsResponse{
		Scope:   scopeID,
		Targets: targets,
	})
}

// GetTargets handles GET /env/:scope/targets
// @Summary      Get scope targets
// @Tags         env
// @Produce      json
// @Param        scope  path      string  true  "Scope id"
// @Success      200    {object}  types.TargetsResponse
// @Router       /env/{scope}/targets [get]
func (h *EnvHandler) GetTargets(c *gin.Context) {
	scopeID := c.Param("scope")
	c.JSON(http.StatusOK, types.TargetsResponse{
		Scope:   scopeID,
		Targets: h.engine.Targets(scopeID),
	})
}

// ListRooms handles GET /env/rooms
// @Summary      List rooms
// @Description  Returns every room record: targets, control settings, actuator assignments
// @Tags         env
// @Produce      json
// @Success      200  {object}  types.ListRoomsResponse
// @Router       /env/rooms [get]
func (h *EnvHandler) ListRooms(c *gin.Context) {
	rooms := h.engine.ListRooms()
	c.JSON(http.StatusOK, types.ListRoomsResponse{
		Rooms: rooms,
		Count: len(rooms),
	})
}

// GetRoom handles GET /env/rooms/:roomId
// @Summary      Get a room
// @Tags         env
// @Produce      json
// @Param        roomId  path      string  true  "Room id"
// @Success      200     {object}  types.RoomResponse
// @Failure      404     {object}  types.ErrorResponse  "Room not found"
// @Router       /env/rooms/{roomId} [get]
func (h *EnvHandler) GetRoom(c *gin.Context) {
	room, ok := h.engine.GetRoom(c.Param("roomId"))
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Room not found",
		})
		return
	}
	c.JSON(http.StatusOK, types.RoomResponse{Room: room})
}

// UpsertRoom handles PUT /env/rooms/:roomId
// @Summary      Create or update a room
// @Description  Merges the payload into the room record; targets, sensors and actuator lists merge rather than replace
// @Tags         env
// @Accept       json
// @Produce      json
// @Param        roomId   path      string    true  "Room id"
// @Param        request  body      env.Room  true  "Room description"
// @Success      200      {object}  types.RoomResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Router       /env/rooms/{roomId} [put]
func (h *EnvHandler) UpsertRoom(c *gin.Context) {
	var payload env.Room
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "invalid room document")
		return
	}

	room, ok := h.engine.UpsertRoom(c.Param("roomId"), payload)
	if !ok {
		badRequest(c, "room id is required")
		return
	}
	c.JSON(http.StatusOK, types.RoomResponse{Room: room})
}

// RemoveRoom handles DELETE /env/rooms/:roomId
// @Summary      Delete a room
// @Tags         env
// @Param        roomId  path  string  true  "Room id"
// @Success      204     "Room deleted"
// @Failure      404     {object}  types.ErrorResponse  "Room not found"
// @Router       /env/rooms/{roomId} [delete]
func (h *EnvHandler) RemoveRoom(c *gin.Context) {
	if !h.engine.RemoveRoom(c.Param("roomId")) {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Room not found",
		})
		return
	}
	c.Status(http.StatusNoContent)
}
