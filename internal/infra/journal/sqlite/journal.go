// Package sqlite provides a commit journal backed by a local SQLite file,
// via the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"worldcore/internal/kernel"
	"worldcore/pkg/patch"
)

const schema = `
CREATE TABLE IF NOT EXISTS commit_journal (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    transaction_id INTEGER NOT NULL,
    source         TEXT    NOT NULL,
    frame          INTEGER NOT NULL,
    status         TEXT    NOT NULL,
    patch_count    INTEGER NOT NULL,
    error          TEXT    NOT NULL DEFAULT '',
    at             TEXT    NOT NULL
);
`

// Journal implements kernel.Journal over one SQLite database file.
type Journal struct {
	db *sql.DB
}

var _ kernel.Journal = (*Journal)(nil)

// Open opens (creating if needed) the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		path = "./data/journal.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite journal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one entry.
func (j *Journal) Record(ctx context.Context, entry kernel.JournalEntry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO commit_journal (transaction_id, source, frame, status, patch_count, error, at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uint64(entry.TransactionID), string(entry.Source), entry.Frame,
		string(entry.Status), entry.PatchCount, entry.Error,
		entry.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// Tail returns the most recent entries, newest first.
func (j *Journal) Tail(ctx context.Context, limit int) ([]kernel.JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT transaction_id, source, frame, status, patch_count, error, at
         FROM commit_journal ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()
	var out []kernel.JournalEntry
	for rows.Next() {
		var (
			txID   uint64
			source string
			status string
			at     string
			entry  kernel.JournalEntry
		)
		if err := rows.Scan(&txID, &source, &entry.Frame, &status, &entry.PatchCount, &entry.Error, &at); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		entry.TransactionID = patch.TransactionID(txID)
		entry.Source = patch.NamespaceID(source)
		entry.Status = kernel.JournalStatus(status)
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			entry.At = ts
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error { return j.db.Close() }
