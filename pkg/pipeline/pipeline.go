// Package pipeline orchestrates a protected query: preprocessing,
// quarantine-aware retrieval, parallel integrity scoring, quarantine of
// failing documents, generation over the survivors, and lineage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ragshield/ragshield/pkg/events"
	"github.com/ragshield/ragshield/pkg/extract"
	"github.com/ragshield/ragshield/pkg/lineage"
	"github.com/ragshield/ragshield/pkg/metrics"
	"github.com/ragshield/ragshield/pkg/models"
	"github.com/ragshield/ragshield/pkg/retrieval"
	"github.com/ragshield/ragshield/pkg/scoring"
	"github.com/ragshield/ragshield/pkg/vault"
)

// Answers returned without calling the generator.
const (
	blockedAnswer        = "The requested document is unavailable: it is either quarantined pending review or not present in the corpus. No answer was generated."
	allQuarantinedAnswer = "All retrieved documents failed integrity checks and were quarantined. No answer was generated from untrusted material."
)

// llmErrorAnswer is returned when the generator fails. The query itself
// still succeeds: lineage is written and the query_id is valid.
const llmErrorAnswer = "Answer generation failed. The retrieved documents passed integrity checks; please retry."

// Generator produces an answer from a query and its clean documents.
type Generator interface {
	Answer(ctx context.Context, query string, docs []models.Document) (string, error)
}

// Result is the outcome of a protected (or unsafe) query.
type Result struct {
	QueryID          string                             `json:"query_id"`
	Answer           string                             `json:"answer"`
	IntegritySignals map[string]models.IntegritySignals `json:"integrity_signals"`
	RetrievedDocs    []string                           `json:"retrieved_docs"`
	QuarantinedDocs  []string                           `json:"quarantined_docs"`
}

// Pipeline wires the integrity components together. It holds one-way
// handles only; nothing in the pipeline calls back into the API layer.
type Pipeline struct {
	processor *extract.Processor
	adapter   *retrieval.Adapter
	engine    *scoring.Engine
	vault     *vault.Vault
	bus       *events.Bus
	lineage   *lineage.Store
	generator Generator
	metrics   *metrics.Metrics
	defaultK  int
}

// New builds the pipeline.
func New(processor *extract.Processor, adapter *retrieval.Adapter, engine *scoring.Engine,
	v *vault.Vault, bus *events.Bus, store *lineage.Store, generator Generator,
	m *metrics.Metrics, defaultK int) *Pipeline {
	return &Pipeline{
		processor: processor,
		adapter:   adapter,
		engine:    engine,
		vault:     v,
		bus:       bus,
		lineage:   store,
		generator: generator,
		metrics:   m,
		defaultK:  defaultK,
	}
}

// Query runs the protected pipeline.
func (p *Pipeline) Query(ctx context.Context, text, userID string, k int) (*Result, error) {
	if k <= 0 {
		k = p.defaultK
	}
	queryID := uuid.NewString()
	start := time.Now()

	p.publish(events.CodeQueryReceived, models.LevelInfo, events.CategoryIntegrity,
		fmt.Sprintf("Query received from %s", userID), queryID,
		map[string]any{"user_id": userID, "k": k})

	augmented, filter := p.processor.Process(text)

	retrieved, err := p.adapter.Retrieve(ctx, augmented, k, true, filter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.timeout(queryID, "retrieval")
		}
		return nil, err
	}

	// An exact-identifier query with no surviving match is blocked rather
	// than answered from semantically similar material.
	if filter != nil && len(retrieved) == 0 {
		p.publish(events.CodeRetrievalFallback, models.LevelWarn, events.CategoryIntegrity,
			fmt.Sprintf("No retrievable document for identifier %s", filter.Value), queryID,
			map[string]any{"identifier": filter.Value})
		p.appendLineage(queryID, text, userID, nil, nil, models.ActionBlocked)
		p.metrics.QueriesTotal.WithLabelValues(string(models.ActionBlocked)).Inc()
		return &Result{
			QueryID:          queryID,
			Answer:           blockedAnswer,
			IntegritySignals: map[string]models.IntegritySignals{},
			RetrievedDocs:    []string{},
			QuarantinedDocs:  []string{},
		}, nil
	}

	retrievedIDs := docIDs(retrieved)
	p.publish(events.CodeRetrievalCompleted, models.LevelInfo, events.CategoryIntegrity,
		fmt.Sprintf("Retrieved %d documents", len(retrieved)), queryID,
		map[string]any{"doc_ids": retrievedIDs})

	scoringStart := time.Now()
	signals := p.engine.ScoreBatch(retrieved)
	p.metrics.ScoringDuration.Observe(time.Since(scoringStart).Seconds())

	if ctx.Err() != nil {
		return nil, p.timeout(queryID, "scoring")
	}

	quarantinedIDs := p.quarantineFailing(ctx, queryID, retrieved, signals)

	if ctx.Err() != nil {
		// Quarantine writes already durable stay durable; record what
		// happened before giving up.
		if len(quarantinedIDs) > 0 {
			p.appendLineage(queryID, text, userID, retrievedIDs, quarantinedIDs, models.ActionPartial)
		}
		return nil, p.timeout(queryID, "quarantine")
	}

	clean := make([]models.Document, 0, len(retrieved))
	for _, doc := range retrieved {
		if !contains(quarantinedIDs, doc.ID) {
			clean = append(clean, doc.Document)
		}
	}

	answer := allQuarantinedAnswer
	if len(clean) > 0 {
		genStart := time.Now()
		answer, err = p.generator.Answer(ctx, text, clean)
		p.metrics.GenerationDuration.Observe(time.Since(genStart).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				p.appendLineage(queryID, text, userID, retrievedIDs, quarantinedIDs, action(retrieved, quarantinedIDs))
				return nil, p.timeout(queryID, "generation")
			}
			slog.Error("Answer generation failed", "query_id", queryID, "error", err)
			answer = llmErrorAnswer
		} else {
			p.publish(events.CodeGenerationDone, models.LevelInfo, events.CategoryIntegrity,
				fmt.Sprintf("Answer generated from %d clean documents", len(clean)), queryID,
				map[string]any{"clean_count": len(clean)})
		}
	}

	act := action(retrieved, quarantinedIDs)
	p.appendLineage(queryID, text, userID, retrievedIDs, quarantinedIDs, act)
	p.metrics.QueriesTotal.WithLabelValues(string(act)).Inc()

	slog.Info("Query completed", "query_id", queryID, "user_id", userID,
		"retrieved", len(retrieved), "quarantined", len(quarantinedIDs),
		"action", act, "duration", time.Since(start))

	return &Result{
		QueryID:          queryID,
		Answer:           answer,
		IntegritySignals: signals,
		RetrievedDocs:    retrievedIDs,
		QuarantinedDocs:  quarantinedIDs,
	}, nil
}

// QueryUnsafe skips scoring and quarantine entirely and generates from
// the raw retrieved set. Demonstration only; the API layer gates it
// behind an explicit flag.
func (p *Pipeline) QueryUnsafe(ctx context.Context, text, userID string, k int) (*Result, error) {
	if k <= 0 {
		k = p.defaultK
	}
	queryID := uuid.NewString()

	p.publish(events.CodeQueryReceived, models.LevelWarn, events.CategoryIntegrity,
		fmt.Sprintf("UNSAFE query received from %s, integrity checks bypassed", userID), queryID,
		map[string]any{"user_id": userID, "k": k, "unsafe": true})

	augmented, filter := p.processor.Process(text)
	retrieved, err := p.adapter.Retrieve(ctx, augmented, k, false, filter)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, len(retrieved))
	for i, r := range retrieved {
		docs[i] = r.Document
	}

	answer, err := p.generator.Answer(ctx, text, docs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.timeout(queryID, "generation")
		}
		answer = llmErrorAnswer
	}

	return &Result{
		QueryID:          queryID,
		Answer:           answer,
		IntegritySignals: map[string]models.IntegritySignals{},
		RetrievedDocs:    docIDs(retrieved),
		QuarantinedDocs:  []string{},
	}, nil
}

// quarantineFailing isolates every document voted out by the aggregator
// and publishes a pass event for the rest. A vault failure leaves that
// document retrievable and the pipeline continues; the failure is
// surfaced as a CRITICAL event.
func (p *Pipeline) quarantineFailing(ctx context.Context, queryID string, retrieved []retrieval.Result, signals map[string]models.IntegritySignals) []string {
	quarantined := []string{}
	for _, doc := range retrieved {
		s, ok := signals[doc.ID]
		if !ok {
			continue
		}
		if !s.ShouldQuarantine {
			p.publish(events.CodeIntegrityPassed, models.LevelInfo, events.CategoryIntegrity,
				fmt.Sprintf("Integrity checks passed for %s", doc.ID), queryID,
				map[string]any{"doc_id": doc.ID, "signals": s})
			continue
		}

		reason := quarantineReason(s, p.engine.Threshold())
		record, err := p.vault.Quarantine(ctx, doc.Document, s, reason)
		if err != nil {
			p.publish(events.CodeDocQuarantined, models.LevelCritical, events.CategoryQuarantine,
				fmt.Sprintf("Quarantine of %s failed: %v", doc.ID, err), queryID,
				map[string]any{"doc_id": doc.ID, "error": err.Error()})
			slog.Error("Quarantine failed, document remains retrievable",
				"query_id", queryID, "doc_id", doc.ID, "error", err)
			continue
		}

		quarantined = append(quarantined, doc.ID)
		p.metrics.QuarantinesTotal.Inc()
		p.publish(events.CodeDocQuarantined, models.LevelCritical, events.CategoryQuarantine,
			fmt.Sprintf("Document %s quarantined: %s", doc.ID, reason), queryID,
			map[string]any{
				"doc_id":        doc.ID,
				"quarantine_id": record.QuarantineID,
				"signals":       s,
			})
	}
	return quarantined
}

// quarantineReason names the failing signals for analysts.
func quarantineReason(s models.IntegritySignals, threshold float64) string {
	low := s.LowSignals(threshold)
	return fmt.Sprintf("%d of 4 integrity signals below %.2f: %v", len(low), threshold, low)
}

func (p *Pipeline) appendLineage(queryID, text, userID string, retrievedIDs, quarantinedIDs []string, act models.LineageAction) {
	rec := models.LineageRecord{
		QueryID:           queryID,
		QueryText:         text,
		UserID:            userID,
		RetrievedDocIDs:   retrievedIDs,
		QuarantinedDocIDs: quarantinedIDs,
		Timestamp:         time.Now().UTC(),
		Action:            act,
	}
	if err := p.lineage.Append(rec); err != nil {
		// Sink failures do not fail the query.
		slog.Error("Lineage append failed", "query_id", queryID, "error", err)
	}
}

func (p *Pipeline) publish(code string, level models.EventLevel, category, message, correlationID string, payload map[string]any) {
	if _, err := p.bus.Publish(code, level, category, message, correlationID, payload); err != nil {
		slog.Error("Event publish failed", "code", code, "error", err)
	}
}

func (p *Pipeline) timeout(queryID, stage string) error {
	p.publish(events.CodeRetrievalFallback, models.LevelWarn, events.CategoryIntegrity,
		fmt.Sprintf("Query deadline exceeded during %s", stage), queryID,
		map[string]any{"stage": stage})
	return fmt.Errorf("query %s: deadline exceeded during %s: %w", queryID, stage, context.DeadlineExceeded)
}

func action(retrieved []retrieval.Result, quarantinedIDs []string) models.LineageAction {
	if len(quarantinedIDs) == 0 {
		return models.ActionClean
	}
	return models.ActionPartial
}

func docIDs(results []retrieval.Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
