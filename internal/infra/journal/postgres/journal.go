// Package postgres provides a commit journal backed by PostgreSQL through
// the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"worldcore/internal/kernel"
	"worldcore/pkg/patch"
)

const schema = `
CREATE TABLE IF NOT EXISTS commit_journal (
    seq            BIGSERIAL PRIMARY KEY,
    transaction_id BIGINT      NOT NULL,
    source         TEXT        NOT NULL,
    frame          BIGINT      NOT NULL,
    status         TEXT        NOT NULL,
    patch_count    INTEGER     NOT NULL,
    error          TEXT        NOT NULL DEFAULT '',
    at             TIMESTAMPTZ NOT NULL
);
`

// Journal implements kernel.Journal over a PostgreSQL database.
type Journal struct {
	db *sql.DB
}

var _ kernel.Journal = (*Journal)(nil)

// Open connects using dsn, falling back to WORLDCORE_JOURNAL_POSTGRES_DSN
// when dsn is empty.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	if dsn == "" {
		dsn = os.Getenv("WORLDCORE_JOURNAL_POSTGRES_DSN")
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres journal requires a dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres journal: %w", err)
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
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(entry.TransactionID), string(entry.Source), int64(entry.Frame),
		string(entry.Status), entry.PatchCount, entry.Error, entry.At.UTC())
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
         FROM commit_journal ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()
	var out []kernel.JournalEntry
	for rows.Next() {
		var (
			txID   int64
			frame  int64
			source string
			status string
			entry  kernel.JournalEntry
		)
		if err := rows.Scan(&txID, &source, &frame, &status, &entry.PatchCount, &entry.Error, &entry.At); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		entry.TransactionID = patch.TransactionID(txID)
		entry.Source = patch.NamespaceID(source)
		entry.Frame = uint64(frame)
		entry.Status = kernel.JournalStatus(status)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error { return j.db.Close() }
