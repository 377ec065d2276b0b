package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragshield/ragshield/pkg/models"
)

// handleEvents returns recent events from the durable log, newest first.
// limit defaults to 50; level filters to one severity when set.
func (s *Server) handleEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	level := models.EventLevel(strings.ToUpper(c.Query("level")))
	switch level {
	case "", models.LevelInfo, models.LevelWarn, models.LevelError, models.LevelCritical:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "level must be one of INFO, WARN, ERROR, CRITICAL"})
		return
	}

	recent, err := s.bus.Recent(limit, level)
	if err != nil {
		respondError(c, err)
		return
	}
	if recent == nil {
		recent = []models.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": recent})
}

// handleEventStream serves live events over SSE, one JSON payload per
// data frame. The stream carries future events only.
func (s *Server) handleEventStream(c *gin.Context) {
	ch, cancel := s.bus.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, ok := <-ch:
			if !ok {
				// Bus shut down or this consumer fell too far behind.
				return false
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return true
			}
			c.SSEvent("message", string(payload))
			return true
		}
	})
}
