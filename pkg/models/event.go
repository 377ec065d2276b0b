package models

import "time"

// EventLevel is the severity of a logged event.
type EventLevel string

// Event levels, ordered by severity.
const (
	LevelInfo     EventLevel = "INFO"
	LevelWarn     EventLevel = "WARN"
	LevelError    EventLevel = "ERROR"
	LevelCritical EventLevel = "CRITICAL"
)

// Event is a single entry in the append-only event log. EventID is a
// process-wide monotonic sequence number assigned by the bus; Code is one
// of the fixed RAG-NNNN taxonomy codes. CorrelationID carries the query ID
// when the event belongs to a query.
type Event struct {
	EventID       int64          `json:"event_id"`
	Code          string         `json:"code"`
	Level         EventLevel     `json:"level"`
	Category      string         `json:"category"`
	Message       string         `json:"message"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}
