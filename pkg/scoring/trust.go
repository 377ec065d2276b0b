// Package scoring implements the four integrity scorers and the
// quarantine aggregator. Each scorer is a pure function of its inputs,
// returns a score in [0,1] where higher is safer, and never observes the
// other scorers.
package scoring

import "strings"

// TrustScorer scores a document's source against a reputation table of
// prefixes.
type TrustScorer struct {
	table        map[string]float64
	defaultTrust float64
}

// NewTrustScorer builds a trust scorer from a prefix table and the score
// for sources absent from it.
func NewTrustScorer(table map[string]float64, defaultTrust float64) *TrustScorer {
	return &TrustScorer{table: table, defaultTrust: defaultTrust}
}

// Score returns the trust score for a source. The longest matching table
// prefix wins; no match yields the default.
func (s *TrustScorer) Score(source string) float64 {
	best := -1
	score := s.defaultTrust
	for prefix, v := range s.table {
		if strings.HasPrefix(source, prefix) && len(prefix) > best {
			best = len(prefix)
			score = v
		}
	}
	return clip(score)
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
