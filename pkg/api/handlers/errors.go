package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/preauto/preauto/pkg/api/types"
	"github.com/preauto/preauto/pkg/plug"
	"github.com/preauto/preauto/pkg/rules"
)

// respondError maps sentinel errors onto HTTP status codes: lookups that
// miss are 404, missing drivers and device failures are 502, everything
// else is 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rules.ErrNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Rule not found",
		})
	case errors.Is(err, plug.ErrNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Plug not found",
		})
	case errors.Is(err, plug.ErrDriverNotFound):
		c.JSON(http.StatusBadGateway, types.ErrorResponse{
			Error:   "driver_not_found",
			Message: err.Error(),
		})
	case errors.Is(err, plug.ErrUnsupported):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "unsupported",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, types.ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}
