// Package events provides the append-only event log and the live fan-out
// bus. Events are JSON-serialized one record per line to events.jsonl and
// delivered to subscribers in append order. The durable log takes priority
// over any single subscriber: a subscriber whose bounded buffer fills up
// is dropped, the publisher never blocks on fan-out.
package events

import "errors"

// Event codes. The taxonomy is fixed: Publish rejects unknown codes.
const (
	CodeQueryReceived      = "RAG-1001" // query received
	CodeRetrievalFallback  = "RAG-1002" // retrieval fallback or quarantine-only result
	CodeIntegrityPassed    = "RAG-1003" // integrity check passed
	CodeDocQuarantined     = "RAG-2001" // document quarantined
	CodeQuarantineConfirm  = "RAG-2002" // quarantine confirmed
	CodeQuarantineRestore  = "RAG-2003" // quarantine restored
	CodeBlastRequested     = "RAG-3001" // blast-radius requested
	CodeBlastHighImpact    = "RAG-3002" // blast-radius high/critical
	CodeRetrievalCompleted = "RAG-4001" // retrieval completed
	CodeGenerationDone     = "RAG-4002" // generation completed
	CodeCorpusIngested     = "RAG-4003" // corpus ingestion completed
	CodeSystemReset        = "RAG-4004" // system reset initiated
)

// Event categories.
const (
	CategoryIntegrity   = "Integrity"
	CategoryQuarantine  = "Quarantine"
	CategoryBlastRadius = "BlastRadius"
	CategorySystem      = "System"
)

// ErrUnknownCode is returned by Publish for codes outside the taxonomy.
var ErrUnknownCode = errors.New("unknown event code")

// taxonomy maps every valid code to its description.
var taxonomy = map[string]string{
	CodeQueryReceived:      "Query received",
	CodeRetrievalFallback:  "Retrieval fallback or quarantine-only result",
	CodeIntegrityPassed:    "Integrity check passed",
	CodeDocQuarantined:     "Document quarantined",
	CodeQuarantineConfirm:  "Quarantine confirmed by analyst",
	CodeQuarantineRestore:  "Quarantine restored by analyst",
	CodeBlastRequested:     "Blast-radius assessment requested",
	CodeBlastHighImpact:    "High-impact blast radius detected",
	CodeRetrievalCompleted: "Retrieval completed",
	CodeGenerationDone:     "Generation completed",
	CodeCorpusIngested:     "Corpus ingestion completed",
	CodeSystemReset:        "System reset initiated",
}

// ValidCode reports whether code belongs to the fixed taxonomy.
func ValidCode(code string) bool {
	_, ok := taxonomy[code]
	return ok
}

// Describe returns the taxonomy description for a code, or "" if unknown.
func Describe(code string) string {
	return taxonomy[code]
}
