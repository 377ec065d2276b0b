package scoring

import "math"

// AnomalyScore scores the shape of a retrieved set: low source diversity
// and a trust outlier both suggest a skewed or seeded result set. The
// score is shared by every document of the set.
//
// Diversity (unique sources over set size) maps to three levels: >=0.7
// scores 1.0, >=0.4 scores 0.7, anything lower 0.5. If the minimum trust
// in the set sits more than two standard deviations below the mean, a 0.3
// penalty applies.
func AnomalyScore(sources []string, trustScores []float64) float64 {
	if len(sources) == 0 {
		return 1.0
	}

	unique := make(map[string]bool, len(sources))
	for _, s := range sources {
		unique[s] = true
	}
	ratio := float64(len(unique)) / float64(len(sources))

	var diversity float64
	switch {
	case ratio >= 0.7:
		diversity = 1.0
	case ratio >= 0.4:
		diversity = 0.7
	default:
		diversity = 0.5
	}

	return clip(diversity - variancePenalty(trustScores))
}

func variancePenalty(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}

	var sum float64
	minScore := scores[0]
	for _, v := range scores {
		sum += v
		if v < minScore {
			minScore = v
		}
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, v := range scores {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(scores)))

	if std > 0 && math.Abs(minScore-mean)/std > 2.0 {
		return 0.3
	}
	return 0
}
