// Package retrieval wraps the pluggable vector index with quarantine-aware,
// metadata-filtered retrieval and the ingestion hook.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ragshield/ragshield/pkg/extract"
	"github.com/ragshield/ragshield/pkg/index"
	"github.com/ragshield/ragshield/pkg/models"
)

// ErrRetrieval wraps failures of the index or the embedding collaborator.
// The API layer maps it to 503.
var ErrRetrieval = errors.New("retrieval failed")

// Embedder computes an embedding for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the pluggable vector index. The default implementation is the
// SQLite-backed exact scan in pkg/index.
type Index interface {
	Upsert(ctx context.Context, e index.Entry) error
	Query(ctx context.Context, embedding []float32, n int, filterField, filterValue string) ([]index.Hit, error)
	Get(ctx context.Context, docID string) (index.Entry, error)
	All(ctx context.Context) ([]index.Entry, error)
	UpdateMetadata(ctx context.Context, docID string, isQuarantined bool, quarantineID string) error
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// Result is a retrieved document with its distance and embedding. The
// embedding rides along so the drift scorer does not re-embed content the
// index already embedded.
type Result struct {
	models.Document
	Distance  float64
	Embedding []float32
}

// Adapter is the retrieval front end used by the pipeline and the vault.
type Adapter struct {
	embedder  Embedder
	index     Index
	overfetch int
	cache     *lru.Cache[string, []float32]
}

// NewAdapter builds the adapter. cacheSize bounds the embedding LRU; the
// overfetch factor compensates for candidates dropped by quarantine or
// filter checks.
func NewAdapter(embedder Embedder, idx Index, overfetch, cacheSize int) (*Adapter, error) {
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Adapter{
		embedder:  embedder,
		index:     idx,
		overfetch: overfetch,
		cache:     cache,
	}, nil
}

// Retrieve embeds text, over-fetches candidates, drops quarantined or
// filter-violating ones, and returns the first k survivors by ascending
// distance.
func (a *Adapter) Retrieve(ctx context.Context, text string, k int, excludeQuarantined bool, filter *extract.MetadataFilter) ([]Result, error) {
	embedding, err := a.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrRetrieval, err)
	}

	n := k
	if excludeQuarantined {
		n = k * a.overfetch
	}
	field, value := "", ""
	if filter != nil {
		field, value = filter.Field, filter.Value
	}

	hits, err := a.index.Query(ctx, embedding, n, field, value)
	if err != nil {
		return nil, fmt.Errorf("%w: query index: %v", ErrRetrieval, err)
	}

	results := make([]Result, 0, k)
	for _, hit := range hits {
		if excludeQuarantined && hit.Metadata.IsQuarantined {
			continue
		}
		results = append(results, Result{
			Document:  hit.Document,
			Distance:  hit.Distance,
			Embedding: hit.Embedding,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Ingest embeds and stores a document. Identifiers are extracted from the
// content so the preprocessor's equality filter can find the document
// later; the index keeps only the first identifier (scalar metadata).
func (a *Adapter) Ingest(ctx context.Context, docID, content string, meta models.Metadata) error {
	if ids := extract.CVEIDs(content); len(ids) > 0 && len(meta.Identifiers) == 0 {
		meta.Identifiers = ids
	}

	embedding, err := a.embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", docID, err)
	}

	entry := index.Entry{
		Document:  models.Document{ID: docID, Content: content, Metadata: meta},
		Embedding: embedding,
	}
	if err := a.index.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("index document %s: %w", docID, err)
	}

	slog.Debug("Ingested document", "doc_id", docID, "identifiers", meta.Identifiers)
	return nil
}

// SetQuarantined flips the quarantine metadata on. Called by the vault
// only; the vault serializes calls per doc_id.
func (a *Adapter) SetQuarantined(ctx context.Context, docID, quarantineID string) error {
	return a.index.UpdateMetadata(ctx, docID, true, quarantineID)
}

// ClearQuarantined flips the quarantine metadata off.
func (a *Adapter) ClearQuarantined(ctx context.Context, docID string) error {
	return a.index.UpdateMetadata(ctx, docID, false, "")
}

// EmbedText exposes the cached embedder to the scorers (semantic drift
// embeds golden content through the same collaborator as retrieval).
func (a *Adapter) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return a.embed(ctx, text)
}

// AllEntries returns every indexed document with embeddings.
func (a *Adapter) AllEntries(ctx context.Context) ([]index.Entry, error) {
	return a.index.All(ctx)
}

// Count returns the number of indexed documents.
func (a *Adapter) Count(ctx context.Context) (int, error) {
	return a.index.Count(ctx)
}

// Reset clears the index and the embedding cache. Gated demo reset only.
func (a *Adapter) Reset(ctx context.Context) error {
	a.cache.Purge()
	return a.index.Reset(ctx)
}

// embed runs the embedding collaborator behind an LRU so repeated queries
// and the golden corpus are embedded once.
func (a *Adapter) embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := a.cache.Get(text); ok {
		return v, nil
	}
	v, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	a.cache.Add(text, v)
	return v, nil
}
