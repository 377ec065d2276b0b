package models

import "time"

// Severity classifies the impact of an exposed document.
type Severity string

// Blast-radius severities, ordered.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the ordinal of the severity for comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// QueryDetail is one affected query in a blast-radius report.
type QueryDetail struct {
	QueryID   string        `json:"query_id"`
	QueryText string        `json:"query_text"`
	UserID    string        `json:"user_id"`
	Timestamp time.Time     `json:"timestamp"`
	Action    LineageAction `json:"action"`
}

// BlastRadiusReport describes which queries and users were exposed to a
// document within a time window.
type BlastRadiusReport struct {
	DocID              string        `json:"doc_id"`
	AffectedQueryCount int           `json:"affected_query_count"`
	AffectedUsers      []string      `json:"affected_users"`
	QueryDetails       []QueryDetail `json:"query_details"`
	TimeWindowStart    time.Time     `json:"time_window_start"`
	TimeWindowEnd      time.Time     `json:"time_window_end"`
	Severity           Severity      `json:"severity"`
	RecommendedActions []string      `json:"recommended_actions"`
}
