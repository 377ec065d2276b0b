// Package models defines the core data structures shared across the
// RAGShield engine: documents, integrity signals, events, quarantine
// records, lineage records, and blast-radius reports.
package models

// Metadata carries the document attributes the engine inspects. The
// retrieval adapter owns documents and their metadata; the quarantine
// fields (IsQuarantined, QuarantineID) are owned by the core and are
// mutated exclusively through the vault.
type Metadata struct {
	Source        string   `json:"source"`
	Category      string   `json:"category"` // clean, poisoned, golden, unknown, ...
	Title         string   `json:"title,omitempty"`
	Identifiers   []string `json:"identifiers,omitempty"`
	IsQuarantined bool     `json:"is_quarantined"`
	QuarantineID  string   `json:"quarantine_id,omitempty"`
}

// Document categories with defined behavior in the scorers.
const (
	CategoryClean    = "clean"
	CategoryPoisoned = "poisoned"
	CategoryGolden   = "golden"
	CategoryUnknown  = "unknown"
)

// Document is a corpus document as seen by the core.
type Document struct {
	ID       string   `json:"doc_id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Retrieved is a document returned by the retrieval adapter together with
// its distance to the query embedding (lower is closer).
type Retrieved struct {
	Document
	Distance float64 `json:"distance"`
}
