// Package kernel implements the transactional state-mutation core: the patch
// bus and its validation gate, namespace and capability isolation, conflict
// detection, batch optimization, the applicator, snapshots with rollback, and
// the frame loop tying them together.
package kernel

import (
	"sync/atomic"

	"worldcore/pkg/patch"
)

// SnapshotID is a globally unique, monotonically increasing snapshot
// identifier.
type SnapshotID uint64

// IDGenerator hands out transaction and snapshot ids. Implementations must
// be safe for concurrent use and must never repeat an id. The generator is
// injected rather than read from a package-level counter so tests can run
// deterministically.
type IDGenerator interface {
	NextTransactionID() patch.TransactionID
	NextSnapshotID() SnapshotID
}

// MonotonicIDGenerator is the default IDGenerator, backed by atomic
// counters starting at 1.
type MonotonicIDGenerator struct {
	tx   atomic.Uint64
	snap atomic.Uint64
}

// NewMonotonicIDGenerator constructs the default generator.
func NewMonotonicIDGenerator() *MonotonicIDGenerator {
	return &MonotonicIDGenerator{}
}

// NextTransactionID returns the next transaction id.
func (g *MonotonicIDGenerator) NextTransactionID() patch.TransactionID {
	return patch.TransactionID(g.tx.Add(1))
}

// NextSnapshotID returns the next snapshot id.
func (g *MonotonicIDGenerator) NextSnapshotID() SnapshotID {
	return SnapshotID(g.snap.Add(1))
}
