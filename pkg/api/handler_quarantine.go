package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragshield/ragshield/pkg/events"
	"github.com/ragshield/ragshield/pkg/models"
)

type analystActionRequest struct {
	Analyst string `json:"analyst"`
	Notes   string `json:"notes"`
}

// handleQuarantineList returns vault records, newest first. RESTORED
// records are hidden unless include_restored=1.
func (s *Server) handleQuarantineList(c *gin.Context) {
	includeRestored := c.Query("include_restored") == "1"
	c.JSON(http.StatusOK, gin.H{"quarantined": s.vault.List(includeRestored)})
}

// handleQuarantineConfirm marks a record as confirmed malicious.
func (s *Server) handleQuarantineConfirm(c *gin.Context) {
	s.analystAction(c, "confirm")
}

// handleQuarantineRestore releases a record back into retrieval.
func (s *Server) handleQuarantineRestore(c *gin.Context) {
	s.analystAction(c, "restore")
}

func (s *Server) analystAction(c *gin.Context, action string) {
	quarantineID := c.Param("id")

	var req analystActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Analyst == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "analyst must not be empty"})
		return
	}

	var (
		record *models.QuarantineRecord
		code   string
		err    error
	)
	switch action {
	case "confirm":
		code = events.CodeQuarantineConfirm
		record, err = s.vault.Confirm(c.Request.Context(), quarantineID, req.Analyst, req.Notes)
	case "restore":
		code = events.CodeQuarantineRestore
		record, err = s.vault.Restore(c.Request.Context(), quarantineID, req.Analyst, req.Notes)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	// The transition is durable regardless of the event sink.
	if _, pubErr := s.bus.Publish(code, models.LevelInfo, events.CategoryQuarantine,
		fmt.Sprintf("Quarantine %s %sed by %s", quarantineID, action, req.Analyst), "",
		map[string]any{
			"quarantine_id": quarantineID,
			"doc_id":        record.DocID,
			"analyst":       req.Analyst,
		}); pubErr != nil {
		slog.Warn("Event publish failed after quarantine transition",
			"quarantine_id", quarantineID, "action", action, "error", pubErr)
	}

	c.Status(http.StatusNoContent)
}
