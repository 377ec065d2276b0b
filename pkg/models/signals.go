package models

import "fmt"

// IntegritySignals holds the four per-document integrity scores.
// Each score is in [0,1]; higher is safer. ShouldQuarantine is derived by
// the aggregator (2-of-4 vote) and stored so observers see the decision
// that was actually made, not a recomputation.
type IntegritySignals struct {
	Trust            float64 `json:"trust_score"`
	RedFlag          float64 `json:"red_flag_score"`
	Anomaly          float64 `json:"anomaly_score"`
	SemanticDrift    float64 `json:"semantic_drift_score"`
	ShouldQuarantine bool    `json:"should_quarantine"`
}

// LowSignals returns the names of signals strictly below threshold,
// formatted with their values for quarantine reasons and event payloads.
func (s IntegritySignals) LowSignals(threshold float64) []string {
	var low []string
	if s.Trust < threshold {
		low = append(low, fmt.Sprintf("trust (%.2f)", s.Trust))
	}
	if s.RedFlag < threshold {
		low = append(low, fmt.Sprintf("red_flag (%.2f)", s.RedFlag))
	}
	if s.Anomaly < threshold {
		low = append(low, fmt.Sprintf("anomaly (%.2f)", s.Anomaly))
	}
	if s.SemanticDrift < threshold {
		low = append(low, fmt.Sprintf("semantic_drift (%.2f)", s.SemanticDrift))
	}
	return low
}

// Scores returns the four signal values in a fixed order.
func (s IntegritySignals) Scores() [4]float64 {
	return [4]float64{s.Trust, s.RedFlag, s.Anomaly, s.SemanticDrift}
}
