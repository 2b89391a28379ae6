package kernel

import (
	"context"
	"time"

	"worldcore/pkg/patch"
)

// JournalStatus records how a transaction left the bus.
type JournalStatus string

// Journal statuses.
const (
	JournalCommitted  JournalStatus = "committed"
	JournalRolledBack JournalStatus = "rolled_back"
)

// JournalEntry is the durable record of one finished transaction. The
// journal is an audit trail for operators and tooling; world state itself is
// never reconstructed from it.
type JournalEntry struct {
	TransactionID patch.TransactionID `json:"transaction_id"`
	Source        patch.NamespaceID   `json:"source"`
	Frame         uint64              `json:"frame"`
	Status        JournalStatus       `json:"status"`
	PatchCount    int                 `json:"patch_count"`
	Error         string              `json:"error,omitempty"`
	At            time.Time           `json:"at"`
}

// Journal persists commit records. Implementations live under
// internal/infra/journal; a journal failure is surfaced through the audit
// hook and never fails the commit itself.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
	Tail(ctx context.Context, limit int) ([]JournalEntry, error)
	Close() error
}
