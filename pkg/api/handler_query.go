package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragshield/ragshield/pkg/models"
)

type queryRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	K      int    `json:"k"`
}

type queryResponse struct {
	Answer           string                             `json:"answer"`
	IntegritySignals map[string]models.IntegritySignals `json:"integrity_signals"`
	RetrievedDocs    []string                           `json:"retrieved_docs"`
	QuarantinedDocs  []string                           `json:"quarantined_docs"`
	QueryID          string                             `json:"query_id"`
}

// handleQuery runs the protected pipeline.
func (s *Server) handleQuery(c *gin.Context) {
	req, ok := s.bindQuery(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.QueryTimeout)
	defer cancel()

	result, err := s.pipeline.Query(ctx, req.Query, req.UserID, req.K)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, queryResponse{
		Answer:           result.Answer,
		IntegritySignals: result.IntegritySignals,
		RetrievedDocs:    result.RetrievedDocs,
		QuarantinedDocs:  result.QuarantinedDocs,
		QueryID:          result.QueryID,
	})
}

// handleQueryUnsafe bypasses integrity checks. Disabled unless explicitly
// enabled in configuration; exists to demonstrate what the protected path
// prevents.
func (s *Server) handleQueryUnsafe(c *gin.Context) {
	if !s.cfg.EnableUnsafeEndpoint {
		c.JSON(http.StatusForbidden, gin.H{"error": "unsafe endpoint is disabled"})
		return
	}

	req, ok := s.bindQuery(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.QueryTimeout)
	defer cancel()

	result, err := s.pipeline.QueryUnsafe(ctx, req.Query, req.UserID, req.K)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, queryResponse{
		Answer:           result.Answer,
		IntegritySignals: result.IntegritySignals,
		RetrievedDocs:    result.RetrievedDocs,
		QuarantinedDocs:  result.QuarantinedDocs,
		QueryID:          result.QueryID,
	})
}

func (s *Server) bindQuery(c *gin.Context) (queryRequest, bool) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return req, false
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	return req, true
}
