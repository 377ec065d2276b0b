package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ragshield/ragshield/pkg/index"
	"github.com/ragshield/ragshield/pkg/models"
)

// DriftScorer measures how far a document's embedding sits from a golden
// reference corpus embedded once at startup.
type DriftScorer struct {
	golden [][]float32
}

// goldenSource lists indexed entries eligible for the reference corpus.
type goldenSource interface {
	AllEntries(ctx context.Context) ([]index.Entry, error)
}

// NewDriftScorer loads the golden corpus from the index: every entry with
// category golden, falling back to category clean when no golden entries
// exist. An empty corpus is allowed; every document then scores 0.5.
func NewDriftScorer(ctx context.Context, src goldenSource) (*DriftScorer, error) {
	entries, err := src.AllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load golden corpus: %w", err)
	}

	var golden, clean [][]float32
	for _, e := range entries {
		switch e.Metadata.Category {
		case models.CategoryGolden:
			golden = append(golden, e.Embedding)
		case models.CategoryClean:
			clean = append(clean, e.Embedding)
		}
	}
	if len(golden) == 0 {
		golden = clean
		slog.Info("No golden documents indexed, drift reference falls back to clean documents", "clean_count", len(clean))
	} else {
		slog.Info("Golden corpus loaded for drift scoring", "golden_count", len(golden))
	}

	return &DriftScorer{golden: golden}, nil
}

// Score returns the drift score for a document embedding: the maximum
// cosine similarity against the golden corpus, mapped from [-1,1] to
// [0,1]. An empty corpus yields the neutral 0.5.
func (s *DriftScorer) Score(embedding []float32) float64 {
	if len(s.golden) == 0 {
		return 0.5
	}

	best := -1.0
	for _, g := range s.golden {
		if sim := index.CosineSimilarity(embedding, g); sim > best {
			best = sim
		}
	}
	return clip((best + 1) / 2)
}
