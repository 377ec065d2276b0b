package scoring

import (
	"log/slog"
	"sync"

	"github.com/ragshield/ragshield/pkg/models"
	"github.com/ragshield/ragshield/pkg/retrieval"
)

// neutralScore replaces a faulted scorer's output. A fault must not block
// the query and must not bias the vote either way.
const neutralScore = 0.5

// Engine runs the four scorers over a retrieved set and aggregates the
// quarantine decision.
type Engine struct {
	trust     *TrustScorer
	redFlag   *RedFlagScorer
	drift     *DriftScorer
	threshold float64
	quorum    int
	workers   int
}

// NewEngine builds the scoring engine. threshold and quorum parameterize
// the vote; workers bounds the per-query fan-out.
func NewEngine(trust *TrustScorer, redFlag *RedFlagScorer, drift *DriftScorer, threshold float64, quorum, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		trust:     trust,
		redFlag:   redFlag,
		drift:     drift,
		threshold: threshold,
		quorum:    quorum,
		workers:   workers,
	}
}

// ScoreBatch scores every retrieved document and returns signals keyed by
// doc_id. Documents are scored in parallel; the anomaly signal is a
// property of the whole set and is computed once, after trust, because
// its outlier check reads the trust distribution.
func (e *Engine) ScoreBatch(docs []retrieval.Result) map[string]models.IntegritySignals {
	signals := make(map[string]models.IntegritySignals, len(docs))
	if len(docs) == 0 {
		return signals
	}

	sources := make([]string, len(docs))
	trustScores := make([]float64, len(docs))
	for i, doc := range docs {
		sources[i] = doc.Metadata.Source
		trustScores[i] = e.safeScore("trust", doc.ID, func() float64 {
			return e.trust.Score(doc.Metadata.Source)
		})
	}
	anomaly := e.safeScore("anomaly", "", func() float64 {
		return AnomalyScore(sources, trustScores)
	})

	type scored struct {
		docID string
		s     models.IntegritySignals
	}
	results := make(chan scored, len(docs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				doc := docs[i]
				s := models.IntegritySignals{
					Trust:   trustScores[i],
					Anomaly: anomaly,
					RedFlag: e.safeScore("red_flag", doc.ID, func() float64 {
						return e.redFlag.Score(doc.Content, doc.Metadata.Category)
					}),
					SemanticDrift: e.safeScore("semantic_drift", doc.ID, func() float64 {
						return e.drift.Score(doc.Embedding)
					}),
				}
				s.ShouldQuarantine = e.ShouldQuarantine(s)
				results <- scored{docID: doc.ID, s: s}
			}
		}()
	}

	for i := range docs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	for r := range results {
		signals[r.docID] = r.s
	}
	return signals
}

// ShouldQuarantine applies the unweighted vote: quarantine when at least
// quorum signals fall strictly below the threshold.
func (e *Engine) ShouldQuarantine(s models.IntegritySignals) bool {
	low := 0
	for _, v := range s.Scores() {
		if v < e.threshold {
			low++
		}
	}
	return low >= e.quorum
}

// Threshold returns the vote threshold, exposed for reason strings.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// safeScore runs one scorer and absorbs a panic into the neutral score so
// a scorer fault degrades a single signal instead of failing the query.
func (e *Engine) safeScore(name, docID string, fn func() float64) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Scorer fault, using neutral score",
				"scorer", name, "doc_id", docID, "panic", r)
			score = neutralScore
		}
	}()
	return clip(fn())
}
