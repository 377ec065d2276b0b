// Package vault owns quarantine records: their in-memory state machine
// and their on-disk layout under the vault directory. No other component
// reads or writes vault files.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ragshield/ragshield/pkg/models"
)

var (
	// ErrNotFound is returned when a quarantine_id has no record.
	ErrNotFound = errors.New("quarantine record not found")
	// ErrInvalidState is returned for a confirm or restore on a record
	// already in a terminal state.
	ErrInvalidState = errors.New("invalid quarantine state transition")
	// ErrActiveExists is returned when a document with an active record is
	// quarantined again.
	ErrActiveExists = errors.New("document already has an active quarantine record")
)

// quarantineIDTime is the timestamp layout inside quarantine IDs.
// Nanosecond precision keeps IDs unique across an immediate restore and
// re-quarantine of the same document.
const quarantineIDTime = "20060102150405.000000000"

// metadataFlipper is the narrow adapter surface the vault needs. The
// vault is the sole mutator of the quarantine metadata fields.
type metadataFlipper interface {
	SetQuarantined(ctx context.Context, docID, quarantineID string) error
	ClearQuarantined(ctx context.Context, docID string) error
}

// Vault is the quarantine record store.
type Vault struct {
	dir     string
	adapter metadataFlipper

	mu      sync.RWMutex
	records map[string]*models.QuarantineRecord

	// docLocks serializes quarantine and restore per doc_id, so the
	// single-active-record invariant holds under concurrent quarantines.
	locksMu  sync.Mutex
	docLocks map[string]*sync.Mutex
}

// Open loads the vault from dir, creating it if absent. Records found on
// disk are loaded into memory; a record directory that fails to parse is
// skipped with a warning rather than failing startup.
func Open(dir string, adapter metadataFlipper) (*Vault, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	v := &Vault{
		dir:      dir,
		adapter:  adapter,
		records:  make(map[string]*models.QuarantineRecord),
		docLocks: make(map[string]*sync.Mutex),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read vault directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "Q-") {
			continue
		}
		record, err := readRecord(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable vault record", "dir", entry.Name(), "error", err)
			continue
		}
		v.records[record.QuarantineID] = record
	}

	slog.Info("Vault opened", "dir", dir, "records", len(v.records))
	return v, nil
}

// Quarantine isolates a document: it persists a new record, then flips
// the adapter's quarantine metadata. The record is durable before the
// flip; if the flip fails the record directory is rolled back so the
// vault and the index cannot disagree.
func (v *Vault) Quarantine(ctx context.Context, doc models.Document, signals models.IntegritySignals, reason string) (*models.QuarantineRecord, error) {
	lock := v.docLock(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	if active := v.activeRecord(doc.ID); active != nil {
		return nil, fmt.Errorf("%w: %s (active %s)", ErrActiveExists, doc.ID, active.QuarantineID)
	}

	now := time.Now().UTC()
	record := &models.QuarantineRecord{
		QuarantineID:     fmt.Sprintf("Q-%s-%s", now.Format(quarantineIDTime), doc.ID),
		DocID:            doc.ID,
		ContentSnapshot:  doc.Content,
		OriginalMetadata: doc.Metadata,
		Signals:          signals,
		Reason:           reason,
		QuarantinedAt:    now,
		State:            models.StateQuarantined,
		StateHistory: []models.AuditEntry{{
			Action:    "quarantine",
			Actor:     "system",
			Timestamp: now,
			Notes:     reason,
		}},
	}

	if err := v.writeRecord(record); err != nil {
		return nil, err
	}

	if err := v.adapter.SetQuarantined(ctx, doc.ID, record.QuarantineID); err != nil {
		if rmErr := os.RemoveAll(v.recordDir(record.QuarantineID)); rmErr != nil {
			slog.Error("Rollback of quarantine record failed", "quarantine_id", record.QuarantineID, "error", rmErr)
		}
		return nil, fmt.Errorf("flip quarantine metadata for %s: %w", doc.ID, err)
	}

	v.mu.Lock()
	v.records[record.QuarantineID] = record
	v.mu.Unlock()

	slog.Info("Document quarantined", "doc_id", doc.ID, "quarantine_id", record.QuarantineID, "reason", reason)
	return record, nil
}

// Confirm marks a quarantined record as confirmed malicious. The document
// stays excluded from retrieval permanently.
func (v *Vault) Confirm(ctx context.Context, quarantineID, analyst, notes string) (*models.QuarantineRecord, error) {
	return v.transition(ctx, quarantineID, "confirm", analyst, notes, models.StateConfirmedMalicious)
}

// Restore releases a quarantined record: the state becomes RESTORED and
// the document becomes retrievable again. The record itself is kept; a
// later quarantine of the same document creates a new record.
func (v *Vault) Restore(ctx context.Context, quarantineID, analyst, notes string) (*models.QuarantineRecord, error) {
	return v.transition(ctx, quarantineID, "restore", analyst, notes, models.StateRestored)
}

// Get returns a copy of the record for quarantineID.
func (v *Vault) Get(quarantineID string) (models.QuarantineRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	record, ok := v.records[quarantineID]
	if !ok {
		return models.QuarantineRecord{}, fmt.Errorf("%w: %s", ErrNotFound, quarantineID)
	}
	return *record, nil
}

// List returns records sorted by quarantine time descending. RESTORED
// records are excluded unless includeRestored is set.
func (v *Vault) List(includeRestored bool) []models.QuarantineRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]models.QuarantineRecord, 0, len(v.records))
	for _, record := range v.records {
		if !includeRestored && !record.Active() {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuarantinedAt.After(out[j].QuarantinedAt)
	})
	return out
}

// Size returns the number of records, restored included.
func (v *Vault) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// Reset deletes every record in memory and on disk. Gated demo reset
// only.
func (v *Vault) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return fmt.Errorf("read vault directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "Q-") {
			if err := os.RemoveAll(filepath.Join(v.dir, entry.Name())); err != nil {
				return fmt.Errorf("remove vault record %s: %w", entry.Name(), err)
			}
		}
	}
	v.records = make(map[string]*models.QuarantineRecord)
	return nil
}

func (v *Vault) transition(ctx context.Context, quarantineID, action, analyst, notes string, target models.QuarantineState) (*models.QuarantineRecord, error) {
	v.mu.RLock()
	record, ok := v.records[quarantineID]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, quarantineID)
	}

	lock := v.docLock(record.DocID)
	lock.Lock()
	defer lock.Unlock()

	if record.State != models.StateQuarantined {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, quarantineID, record.State)
	}

	if target == models.StateRestored {
		if err := v.adapter.ClearQuarantined(ctx, record.DocID); err != nil {
			return nil, fmt.Errorf("clear quarantine metadata for %s: %w", record.DocID, err)
		}
	}

	entry := models.AuditEntry{
		Action:    action,
		Actor:     analyst,
		Timestamp: time.Now().UTC(),
		Notes:     notes,
	}

	v.mu.Lock()
	record.State = target
	record.StateHistory = append(record.StateHistory, entry)
	updated := *record
	v.mu.Unlock()

	if err := v.writeRecord(&updated); err != nil {
		return nil, err
	}

	slog.Info("Quarantine record transitioned",
		"quarantine_id", quarantineID, "action", action, "actor", analyst, "state", target)
	return &updated, nil
}

// activeRecord returns the non-RESTORED record for docID, if any. Callers
// hold the doc lock.
func (v *Vault) activeRecord(docID string) *models.QuarantineRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, record := range v.records {
		if record.DocID == docID && record.Active() {
			return record
		}
	}
	return nil
}

func (v *Vault) docLock(docID string) *sync.Mutex {
	v.locksMu.Lock()
	defer v.locksMu.Unlock()
	lock, ok := v.docLocks[docID]
	if !ok {
		lock = &sync.Mutex{}
		v.docLocks[docID] = lock
	}
	return lock
}

func (v *Vault) recordDir(quarantineID string) string {
	return filepath.Join(v.dir, quarantineID)
}

// writeRecord persists a record directory: the content snapshot, the
// original metadata, the full record, and the audit log, fsynced so the
// record is durable before callers proceed.
func (v *Vault) writeRecord(record *models.QuarantineRecord) error {
	dir := v.recordDir(record.QuarantineID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	metadata, err := json.MarshalIndent(record.OriginalMetadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	full, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	var audit strings.Builder
	for _, entry := range record.StateHistory {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		audit.Write(line)
		audit.WriteByte('\n')
	}

	files := map[string][]byte{
		"content":     []byte(record.ContentSnapshot),
		"metadata":    metadata,
		"record":      full,
		"audit.jsonl": []byte(audit.String()),
	}
	for name, data := range files {
		if err := writeFileSync(filepath.Join(dir, name), data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readRecord(dir string) (*models.QuarantineRecord, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "record"))
	if err != nil {
		return nil, err
	}
	var record models.QuarantineRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if record.QuarantineID == "" {
		return nil, errors.New("record missing quarantine_id")
	}
	return &record, nil
}
