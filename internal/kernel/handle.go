package kernel

import "worldcore/pkg/patch"

// NamespaceHandle is a producer's connection to the bus. Each handle owns
// one bounded channel; handles are safe to use from one producer goroutine
// each, which is the intended topology.
type NamespaceHandle struct {
	id  patch.NamespaceID
	bus *PatchBus
	ch  chan *patch.Transaction
}

// Namespace returns the namespace the handle submits for.
func (h *NamespaceHandle) Namespace() patch.NamespaceID { return h.id }

// BeginTransaction starts a builder stamped with the handle's namespace.
func (h *NamespaceHandle) BeginTransaction() *patch.Builder {
	return patch.NewBuilder(h.id)
}

// Submit seals the builder and submits its transaction, returning the
// assigned id. Submission never blocks; a full channel fails with
// ChannelFull and the caller retries explicitly.
func (h *NamespaceHandle) Submit(b *patch.Builder) (patch.TransactionID, error) {
	tx, err := b.Build()
	if err != nil {
		return 0, patch.NewBusError(patch.ErrValidationFailed, "%v", err)
	}
	return h.bus.submit(h, tx)
}

// SubmitTransaction submits an externally assembled transaction, for callers
// that deserialized one rather than building it here.
func (h *NamespaceHandle) SubmitTransaction(tx patch.Transaction) (patch.TransactionID, error) {
	return h.bus.submit(h, tx)
}

// SubmitPatch wraps a single patch in its own transaction.
func (h *NamespaceHandle) SubmitPatch(p patch.Patch) (patch.TransactionID, error) {
	b := h.BeginTransaction()
	if err := b.Add(p); err != nil {
		return 0, patch.NewBusError(patch.ErrValidationFailed, "%v", err)
	}
	return h.Submit(b)
}
