package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragshield/ragshield/pkg/events"
	"github.com/ragshield/ragshield/pkg/models"
)

type ingestDocument struct {
	DocID    string          `json:"doc_id"`
	Content  string          `json:"content"`
	Metadata models.Metadata `json:"metadata"`
}

type ingestRequest struct {
	Documents []ingestDocument `json:"documents"`
}

// handleIngest adds documents to the index. Identifiers are extracted
// from content when the caller does not supply them.
func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Documents) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "documents must not be empty"})
		return
	}
	for _, doc := range req.Documents {
		if doc.DocID == "" || doc.Content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every document needs a doc_id and content"})
			return
		}
	}

	ingested := 0
	for _, doc := range req.Documents {
		if err := s.adapter.Ingest(c.Request.Context(), doc.DocID, doc.Content, doc.Metadata); err != nil {
			slog.Error("Ingestion failed", "doc_id", doc.DocID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":    fmt.Sprintf("ingestion failed at %s: %v", doc.DocID, err),
				"ingested": ingested,
			})
			return
		}
		ingested++
	}

	s.publish(events.CodeCorpusIngested, models.LevelInfo, events.CategorySystem,
		fmt.Sprintf("Ingested %d documents", ingested),
		map[string]any{"count": ingested})

	c.JSON(http.StatusOK, gin.H{"ingested": ingested})
}

// handleDemoReset clears events, lineage, vault, and index. Destructive;
// refused unless explicitly enabled in configuration.
func (s *Server) handleDemoReset(c *gin.Context) {
	if !s.cfg.EnableDemoReset {
		c.JSON(http.StatusForbidden, gin.H{"error": "demo reset is disabled"})
		return
	}

	s.publish(events.CodeSystemReset, models.LevelWarn, events.CategorySystem,
		"System reset initiated", nil)

	if err := s.vault.Reset(); err != nil {
		respondError(c, err)
		return
	}
	if err := s.adapter.Reset(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	if err := s.lineage.Reset(); err != nil {
		respondError(c, err)
		return
	}
	if err := s.bus.Reset(); err != nil {
		respondError(c, err)
		return
	}

	slog.Warn("System state reset")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// handleStatus reports corpus and vault sizes plus collaborator health.
func (s *Server) handleStatus(c *gin.Context) {
	documents, err := s.adapter.Count(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	lineageCount, err := s.lineage.Count()
	if err != nil {
		respondError(c, err)
		return
	}

	ollama := "unknown"
	if s.prober != nil {
		probeCtx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.prober.Probe(probeCtx); err != nil {
			ollama = "unreachable"
		} else {
			ollama = "healthy"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"documents_indexed": documents,
		"vault_size":        s.vault.Size(),
		"events_logged":     s.bus.Count(),
		"lineage_records":   lineageCount,
		"uptime_seconds":    int64(time.Since(s.started).Seconds()),
		"version":           s.version,
		"ollama":            ollama,
	})
}

// publish emits a non-query event, logging rather than failing on sink
// errors.
func (s *Server) publish(code string, level models.EventLevel, category, message string, payload map[string]any) {
	if _, err := s.bus.Publish(code, level, category, message, "", payload); err != nil {
		slog.Warn("Event publish failed", "code", code, "error", err)
	}
}
