package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragshield/ragshield/pkg/events"
	"github.com/ragshield/ragshield/pkg/models"
)

// handleBlastRadius reports which queries and users saw a document within
// the window.
func (s *Server) handleBlastRadius(c *gin.Context) {
	docID := c.Param("doc_id")

	windowHours := 24
	if raw := c.Query("window_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window_hours must be a positive integer"})
			return
		}
		windowHours = parsed
	}

	s.publish(events.CodeBlastRequested, models.LevelInfo, events.CategoryBlastRadius,
		fmt.Sprintf("Blast-radius assessment requested for %s", docID),
		map[string]any{"doc_id": docID, "window_hours": windowHours})

	report, err := s.analyzer.Analyze(docID, time.Duration(windowHours)*time.Hour)
	if err != nil {
		respondError(c, err)
		return
	}

	if report.Severity.Rank() >= models.SeverityHigh.Rank() {
		s.publish(events.CodeBlastHighImpact, models.LevelCritical, events.CategoryBlastRadius,
			fmt.Sprintf("High-impact blast radius for %s: %d queries, %d users",
				docID, report.AffectedQueryCount, len(report.AffectedUsers)),
			map[string]any{
				"doc_id":   docID,
				"severity": report.Severity,
				"queries":  report.AffectedQueryCount,
				"users":    len(report.AffectedUsers),
			})
	}

	c.JSON(http.StatusOK, report)
}
