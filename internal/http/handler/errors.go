package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"huddle.app/relay/internal/service"
)

// writeServiceError maps service sentinels to status codes. Anything
// unrecognized is logged and reported as fallback with a 500.
func writeServiceError(c *gin.Context, err error, fallback string) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, service.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrInteractionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDispatchConflict):
		slog.WarnContext(ctx, "dispatch conflict", "error", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(ctx, fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
