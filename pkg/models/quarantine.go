package models

import "time"

// QuarantineState is the state of a vault record.
//
// QUARANTINED ──confirm──▶ CONFIRMED_MALICIOUS (terminal)
//
//	└───restore──▶ RESTORED            (terminal)
type QuarantineState string

// Quarantine states.
const (
	StateQuarantined        QuarantineState = "QUARANTINED"
	StateConfirmedMalicious QuarantineState = "CONFIRMED_MALICIOUS"
	StateRestored           QuarantineState = "RESTORED"
)

// AuditEntry is one state transition in a record's append-only history.
type AuditEntry struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

// QuarantineRecord is a vault entry for an isolated document. Records are
// never deleted; a restored document that is quarantined again gets a new
// record with a new QuarantineID.
type QuarantineRecord struct {
	QuarantineID     string           `json:"quarantine_id"`
	DocID            string           `json:"doc_id"`
	ContentSnapshot  string           `json:"content_snapshot"`
	OriginalMetadata Metadata         `json:"original_metadata"`
	Signals          IntegritySignals `json:"signals"`
	Reason           string           `json:"reason"`
	QuarantinedAt    time.Time        `json:"quarantined_at"`
	State            QuarantineState  `json:"state"`
	StateHistory     []AuditEntry     `json:"state_history"`
}

// Active reports whether the record still excludes its document from
// retrieval. At most one active record may exist per doc_id.
func (r *QuarantineRecord) Active() bool {
	return r.State != StateRestored
}
