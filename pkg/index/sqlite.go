package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ragshield/ragshield/pkg/models"
)

// ErrNotFound is returned when a doc_id is absent from the index.
var ErrNotFound = errors.New("document not found in index")

// Entry is a document stored in the index together with its embedding.
type Entry struct {
	models.Document
	Embedding []float32
}

// Hit is a query result: an entry plus its distance to the query vector.
type Hit struct {
	Entry
	Distance float64
}

// filterColumns are the scalar metadata fields an equality filter may
// reference. Everything else is rejected: equality on scalar values is
// the only supported predicate.
var filterColumns = map[string]bool{
	"identifiers": true,
	"source":      true,
	"category":    true,
}

// SQLite is the file-backed index. The directory it lives in is opaque to
// the rest of the system and owned by the retrieval adapter.
type SQLite struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id         TEXT PRIMARY KEY,
	content        TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL DEFAULT '',
	identifiers    TEXT NOT NULL DEFAULT '',
	is_quarantined INTEGER NOT NULL DEFAULT 0,
	quarantine_id  TEXT NOT NULL DEFAULT '',
	embedding      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_identifiers ON documents(identifiers);
`

// Open creates (if needed) and opens the index database under dir.
func Open(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "index.db")+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Upsert stores or replaces a document. Identifiers are stored as a single
// scalar (the first element) to satisfy the equality-filter constraint.
func (s *SQLite) Upsert(ctx context.Context, e Entry) error {
	identifier := ""
	if len(e.Metadata.Identifiers) > 0 {
		identifier = e.Metadata.Identifiers[0]
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
			(doc_id, content, source, category, title, identifiers, is_quarantined, quarantine_id, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			content = excluded.content,
			source = excluded.source,
			category = excluded.category,
			title = excluded.title,
			identifiers = excluded.identifiers,
			is_quarantined = excluded.is_quarantined,
			quarantine_id = excluded.quarantine_id,
			embedding = excluded.embedding`,
		e.ID, e.Content, e.Metadata.Source, e.Metadata.Category, e.Metadata.Title,
		identifier, boolToInt(e.Metadata.IsQuarantined), e.Metadata.QuarantineID,
		encodeVector(e.Embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", e.ID, err)
	}
	return nil
}

// Query returns the n nearest entries to the query vector by ascending
// cosine distance, optionally restricted to rows where filterField ==
// filterValue. Quarantined documents are included; the adapter filters.
func (s *SQLite) Query(ctx context.Context, embedding []float32, n int, filterField, filterValue string) ([]Hit, error) {
	if n <= 0 {
		return nil, nil
	}

	q := `SELECT doc_id, content, source, category, title, identifiers, is_quarantined, quarantine_id, embedding FROM documents`
	var args []any
	if filterField != "" {
		if !filterColumns[filterField] {
			return nil, fmt.Errorf("unsupported filter field %q", filterField)
		}
		q += fmt.Sprintf(" WHERE %s = ?", filterField)
		args = append(args, filterValue)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Entry: entry, Distance: CosineDistance(embedding, entry.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index rows: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

// Get returns a single entry by doc_id.
func (s *SQLite) Get(ctx context.Context, docID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, content, source, category, title, identifiers, is_quarantined, quarantine_id, embedding
		FROM documents WHERE doc_id = ?`, docID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	return entry, err
}

// All returns every entry. Used for the golden-corpus load at startup.
func (s *SQLite) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, content, source, category, title, identifiers, is_quarantined, quarantine_id, embedding
		FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// UpdateMetadata sets the quarantine fields for a document. It is the
// single mutation path for those fields; the vault is the only caller.
func (s *SQLite) UpdateMetadata(ctx context.Context, docID string, isQuarantined bool, quarantineID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET is_quarantined = ?, quarantine_id = ? WHERE doc_id = ?`,
		boolToInt(isQuarantined), quarantineID, docID)
	if err != nil {
		return fmt.Errorf("update metadata for %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Reset deletes every document. Used by the gated demo reset only.
func (s *SQLite) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e            Entry
		identifier   string
		quarantined  int
		embeddingRaw []byte
	)
	err := row.Scan(&e.ID, &e.Content, &e.Metadata.Source, &e.Metadata.Category,
		&e.Metadata.Title, &identifier, &quarantined, &e.Metadata.QuarantineID, &embeddingRaw)
	if err != nil {
		return Entry{}, err
	}
	if identifier != "" {
		e.Metadata.Identifiers = []string{identifier}
	}
	e.Metadata.IsQuarantined = quarantined != 0
	e.Embedding = decodeVector(embeddingRaw)
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
