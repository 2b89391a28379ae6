// Package memory provides an in-memory commit journal. Useful for tests and
// for deployments that only want Stats-level visibility.
package memory

import (
	"context"
	"sync"

	"worldcore/internal/kernel"
)

// Journal keeps entries in an append-only slice.
type Journal struct {
	mu      sync.RWMutex
	entries []kernel.JournalEntry
	max     int
}

var _ kernel.Journal = (*Journal)(nil)

// New returns an in-memory journal keeping at most max entries, oldest
// dropped first. max <= 0 means unbounded.
func New(max int) *Journal {
	return &Journal{max: max}
}

// Record appends one entry.
func (j *Journal) Record(_ context.Context, entry kernel.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	if j.max > 0 && len(j.entries) > j.max {
		j.entries = j.entries[len(j.entries)-j.max:]
	}
	return nil
}

// Tail returns the most recent entries, newest first.
func (j *Journal) Tail(_ context.Context, limit int) ([]kernel.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	n := len(j.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]kernel.JournalEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}

// Close releases nothing; it exists to satisfy the Journal contract.
func (j *Journal) Close() error { return nil }
