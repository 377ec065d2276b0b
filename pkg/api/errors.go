package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragshield/ragshield/pkg/retrieval"
	"github.com/ragshield/ragshield/pkg/vault"
)

// respondError maps domain errors to HTTP status codes and writes the
// JSON error body.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "query deadline exceeded"})
	case errors.Is(err, retrieval.ErrRetrieval):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "retrieval unavailable"})
	case errors.Is(err, vault.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "quarantine record not found"})
	case errors.Is(err, vault.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "record is already in a terminal state"})
	default:
		slog.Error("Unexpected API error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
