package models

import "time"

// LineageAction summarizes the integrity outcome of a query.
type LineageAction string

// Lineage actions.
const (
	ActionClean   LineageAction = "clean"   // nothing quarantined
	ActionPartial LineageAction = "partial" // some retrieved docs quarantined
	ActionBlocked LineageAction = "blocked" // exact-identifier miss, no generation
)

// LineageRecord is one entry in the append-only query-lineage log. It is
// written after the integrity decision for the query is known, so Action
// is always populated.
type LineageRecord struct {
	QueryID           string        `json:"query_id"`
	QueryText         string        `json:"query_text"`
	UserID            string        `json:"user_id"`
	RetrievedDocIDs   []string      `json:"retrieved_doc_ids"`
	QuarantinedDocIDs []string      `json:"quarantined_doc_ids,omitempty"`
	Timestamp         time.Time     `json:"timestamp"`
	Action            LineageAction `json:"action"`
}
