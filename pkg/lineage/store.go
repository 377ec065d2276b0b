// Package lineage persists the append-only query-lineage log used for
// blast-radius analysis. Lineage records are deliberately separate from
// events: they are queried by doc_id over a time window, not by code.
package lineage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ragshield/ragshield/pkg/models"
)

// Store is the append-only lineage log. Append is durable before return.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates the store, creating the log's parent directory.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lineage log directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Append writes one lineage record and syncs it to disk before returning.
// Callers append only after the query's quarantine records are durable, so
// no observer sees a lineage entry pointing at an invisible vault record.
func (s *Store) Append(rec models.LineageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal lineage record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open lineage log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append lineage record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lineage log: %w", err)
	}
	return nil
}

// Scan returns records with Timestamp in [since, until] that satisfy pred,
// in append order. A nil pred matches everything.
func (s *Store) Scan(pred func(models.LineageRecord) bool, since, until time.Time) ([]models.LineageRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lineage log: %w", err)
	}

	var out []models.LineageRecord
	for _, line := range splitLines(data) {
		var rec models.LineageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Skip malformed lines rather than failing the whole scan.
			continue
		}
		if rec.Timestamp.Before(since) || rec.Timestamp.After(until) {
			continue
		}
		if pred == nil || pred(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Count returns the number of lineage records logged.
func (s *Store) Count() (int64, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(len(splitLines(data))), nil
}

// Reset removes the lineage log. Used by the gated demo reset only.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, c := range data {
		if c == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
