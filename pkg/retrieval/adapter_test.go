package retrieval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragshield/ragshield/pkg/extract"
	"github.com/ragshield/ragshield/pkg/index"
	"github.com/ragshield/ragshield/pkg/models"
)

// countingEmbedder returns a constant vector and counts calls.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

type stubIndex struct {
	mu      sync.Mutex
	entries map[string]index.Entry
}

func newStubIndex() *stubIndex {
	return &stubIndex{entries: make(map[string]index.Entry)}
}

func (s *stubIndex) Upsert(_ context.Context, e index.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *stubIndex) Query(_ context.Context, embedding []float32, n int, filterField, filterValue string) ([]index.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hits []index.Hit
	for _, e := range s.entries {
		if filterField == "identifiers" && (len(e.Metadata.Identifiers) == 0 || e.Metadata.Identifiers[0] != filterValue) {
			continue
		}
		hits = append(hits, index.Hit{Entry: e, Distance: index.CosineDistance(embedding, e.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

func (s *stubIndex) Get(_ context.Context, docID string) (index.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[docID]
	if !ok {
		return index.Entry{}, index.ErrNotFound
	}
	return e, nil
}

func (s *stubIndex) All(_ context.Context) ([]index.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]index.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *stubIndex) UpdateMetadata(_ context.Context, docID string, isQuarantined bool, quarantineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[docID]
	if !ok {
		return index.ErrNotFound
	}
	e.Metadata.IsQuarantined = isQuarantined
	e.Metadata.QuarantineID = quarantineID
	s.entries[docID] = e
	return nil
}

func (s *stubIndex) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *stubIndex) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]index.Entry)
	return nil
}

func newTestAdapter(t *testing.T) (*Adapter, *stubIndex, *countingEmbedder) {
	t.Helper()
	embedder := &countingEmbedder{}
	idx := newStubIndex()
	adapter, err := NewAdapter(embedder, idx, 3, 16)
	require.NoError(t, err)
	return adapter, idx, embedder
}

func TestIngestExtractsIdentifiersFromContent(t *testing.T) {
	adapter, idx, _ := newTestAdapter(t)

	err := adapter.Ingest(context.Background(), "doc-1",
		"Fix for cve-2024-0001 ships in 2.4.1.",
		models.Metadata{Source: "nvd.nist.gov", Category: models.CategoryClean})
	require.NoError(t, err)

	entry, err := idx.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"CVE-2024-0001"}, entry.Metadata.Identifiers)
}

func TestIngestKeepsCallerIdentifiers(t *testing.T) {
	adapter, idx, _ := newTestAdapter(t)

	err := adapter.Ingest(context.Background(), "doc-1",
		"mentions CVE-2024-0002 in passing",
		models.Metadata{Identifiers: []string{"CVE-2024-0001"}})
	require.NoError(t, err)

	entry, err := idx.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"CVE-2024-0001"}, entry.Metadata.Identifiers)
}

func TestRetrieveDropsQuarantinedDocuments(t *testing.T) {
	adapter, idx, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Ingest(ctx, "good", "good content", models.Metadata{}))
	require.NoError(t, adapter.Ingest(ctx, "bad", "bad content", models.Metadata{}))
	require.NoError(t, adapter.SetQuarantined(ctx, "bad", "Q-1"))

	results, err := adapter.Retrieve(ctx, "anything", 5, true, nil)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].ID)

	// The unsafe path still sees the quarantined document.
	unfiltered, err := adapter.Retrieve(ctx, "anything", 5, false, nil)
	require.NoError(t, err)
	assert.Len(t, unfiltered, 2)
}

func TestClearQuarantinedMakesDocumentRetrievable(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Ingest(ctx, "doc-1", "content", models.Metadata{}))
	require.NoError(t, adapter.SetQuarantined(ctx, "doc-1", "Q-1"))
	require.NoError(t, adapter.ClearQuarantined(ctx, "doc-1"))

	results, err := adapter.Retrieve(ctx, "content", 5, true, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRetrieveAppliesMetadataFilter(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Ingest(ctx, "match", "about CVE-2024-0001", models.Metadata{}))
	require.NoError(t, adapter.Ingest(ctx, "other", "about CVE-2024-0002", models.Metadata{}))

	results, err := adapter.Retrieve(ctx, "CVE-2024-0001", 5, true,
		&extract.MetadataFilter{Field: "identifiers", Value: "CVE-2024-0001"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "match", results[0].ID)
}

func TestEmbeddingCacheAvoidsRepeatCalls(t *testing.T) {
	adapter, _, embedder := newTestAdapter(t)
	ctx := context.Background()

	_, err := adapter.EmbedText(ctx, "same text")
	require.NoError(t, err)
	_, err = adapter.EmbedText(ctx, "same text")
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls)
}

func TestRetrieveWrapsEmbedderFailure(t *testing.T) {
	adapter, _, embedder := newTestAdapter(t)
	embedder.err = errors.New("ollama down")

	_, err := adapter.Retrieve(context.Background(), "anything", 5, true, nil)
	assert.ErrorIs(t, err, ErrRetrieval)
}
