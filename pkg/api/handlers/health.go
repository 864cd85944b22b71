package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/preauto/preauto/pkg/api/types"
	"github.com/preauto/preauto/pkg/automation"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	engine *automation.Engine
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(engine *automation.Engine) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Returns the health status of the API and automation engine
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse  "Service is healthy"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Scopes:    len(h.engine.EnvSnapshot()),
		Rules:     len(h.engine.ListRules()),
		Timestamp: time.Now(),
	})
}
