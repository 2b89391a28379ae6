package kernel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"worldcore/pkg/patch"
)

// BusConfig bounds the ingress queue. Zero fields take defaults; an
// ExpireAfterFrames of zero disables expiry and preserves the historical
// starve-forever behavior for unsatisfiable dependencies.
type BusConfig struct {
	ChannelCapacity          int
	MaxPendingTransactions   int
	MaxPatchesPerTransaction int
	ExpireAfterFrames        uint64
	CommitLogKeep            int
}

func (c BusConfig) withDefaults() BusConfig {
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = 64
	}
	if c.MaxPendingTransactions <= 0 {
		c.MaxPendingTransactions = 1024
	}
	if c.MaxPatchesPerTransaction <= 0 {
		c.MaxPatchesPerTransaction = 256
	}
	if c.CommitLogKeep <= 0 {
		c.CommitLogKeep = 1024
	}
	return c
}

// BusStats is a point-in-time snapshot of bus counters for monitors.
type BusStats struct {
	Submitted     uint64
	Rejected      uint64
	Committed     uint64
	RolledBack    uint64
	Expired       uint64
	Deferred      uint64
	PendingDepth  int
	CommitLogSize int
	ClaimedSlots  int
}

type pendingEntry struct {
	tx       *patch.Transaction
	arrival  uint64
	enqueued uint64
}

// PatchBus is the ingress queue between producer namespaces and the kernel
// thread. Submissions are validated synchronously and never mutate world
// state; per-handle bounded channels are drained into the pending queue once
// per frame, the sole serialization point between producers and the
// consumer.
type PatchBus struct {
	mu       sync.RWMutex
	cfg      BusConfig
	registry *Registry
	idgen    IDGenerator
	detector *ConflictDetector
	journal  Journal
	obs      Observability

	handles    map[patch.NamespaceID][]*NamespaceHandle
	pending    []*pendingEntry
	applying   map[patch.TransactionID]*patch.Transaction
	commitLog  []patch.TransactionID
	committed  map[patch.TransactionID]struct{}
	arrivalSeq uint64
	frame      uint64
	queued     int

	stats BusStats
}

// NewPatchBus constructs a bus over the given registry. journal may be nil.
func NewPatchBus(cfg BusConfig, registry *Registry, idgen IDGenerator, journal Journal, obs Observability) *PatchBus {
	if idgen == nil {
		idgen = NewMonotonicIDGenerator()
	}
	return &PatchBus{
		cfg:       cfg.withDefaults(),
		registry:  registry,
		idgen:     idgen,
		detector:  NewConflictDetector(),
		journal:   journal,
		obs:       obs,
		handles:   make(map[patch.NamespaceID][]*NamespaceHandle),
		applying:  make(map[patch.TransactionID]*patch.Transaction),
		committed: make(map[patch.TransactionID]struct{}),
	}
}

// Detector exposes the conflict detector for schedulers and tests.
func (b *PatchBus) Detector() *ConflictDetector { return b.detector }

// OpenHandle opens a producer handle for a registered namespace. Each handle
// owns one bounded channel; a producer goroutine should use its own handle.
func (b *PatchBus) OpenHandle(id patch.NamespaceID) (*NamespaceHandle, error) {
	if !b.registry.Exists(id) {
		return nil, patch.NewBusError(patch.ErrUnknownNamespace, "namespace %q not registered", id)
	}
	h := &NamespaceHandle{
		id:  id,
		bus: b,
		ch:  make(chan *patch.Transaction, b.cfg.ChannelCapacity),
	}
	b.mu.Lock()
	b.handles[id] = append(b.handles[id], h)
	b.mu.Unlock()
	return h, nil
}

// CloseHandle detaches a handle. Transactions already queued on its channel
// are moved to the pending queue so they are still processed at the next
// frame and the queued budget stays balanced.
func (b *PatchBus) CloseHandle(h *NamespaceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handles[h.id]
	for i, cand := range list {
		if cand == h {
			b.handles[h.id] = append(list[:i], list[i+1:]...)
			break
		}
	}
drain:
	for {
		select {
		case tx := <-h.ch:
			b.queued--
			b.arrivalSeq++
			b.pending = append(b.pending, &pendingEntry{tx: tx, arrival: b.arrivalSeq, enqueued: b.frame})
		default:
			break drain
		}
	}
	b.stats.PendingDepth = len(b.pending)
}

// submit validates a sealed transaction and enqueues it on the handle's
// channel. It never blocks: a full channel fails with ChannelFull and the
// caller retries explicitly. No failure path mutates world state.
func (b *PatchBus) submit(h *NamespaceHandle, tx patch.Transaction) (patch.TransactionID, error) {
	ctx := context.Background()
	start := time.Now()
	if err := b.validate(h.id, &tx); err != nil {
		b.mu.Lock()
		b.stats.Rejected++
		b.mu.Unlock()
		b.obs.audit(ctx, AuditEntry{Operation: "submit", Status: AuditDenied, Namespace: h.id, Detail: err.Error()})
		b.obs.observe(ctx, "submit", false, start)
		return 0, err
	}
	if err := b.registry.ConsumeFramePatches(tx.Source, len(tx.Patches)); err != nil {
		b.mu.Lock()
		b.stats.Rejected++
		b.mu.Unlock()
		b.obs.audit(ctx, AuditEntry{Operation: "submit", Status: AuditDenied, Namespace: h.id, Detail: err.Error()})
		b.obs.observe(ctx, "submit", false, start)
		return 0, patch.NewBusError(patch.ErrResourceLimitExceeded, "%v", err)
	}

	b.mu.Lock()
	// validate checked the pending limit under a read lock; re-check here so
	// concurrent submitters cannot overshoot it between the two locks.
	if len(b.pending)+b.queued >= b.cfg.MaxPendingTransactions {
		b.stats.Rejected++
		b.mu.Unlock()
		b.registry.RefundFramePatches(tx.Source, len(tx.Patches))
		err := patch.NewBusError(patch.ErrTooManyPendingTransactions, "bus pending limit %d reached", b.cfg.MaxPendingTransactions)
		b.obs.audit(ctx, AuditEntry{Operation: "submit", Status: AuditDenied, Namespace: h.id, Detail: err.Error()})
		b.obs.observe(ctx, "submit", false, start)
		return 0, err
	}
	tx.ID = b.idgen.NextTransactionID()
	tx.State = patch.StatePending
	tx.CreatedFrame = b.frame
	queued := &tx
	select {
	case h.ch <- queued:
		b.queued++
		b.stats.Submitted++
		b.mu.Unlock()
	default:
		b.stats.Rejected++
		b.mu.Unlock()
		b.registry.RefundFramePatches(tx.Source, len(tx.Patches))
		err := patch.NewBusError(patch.ErrChannelFull, "namespace %q channel at capacity %d", h.id, b.cfg.ChannelCapacity)
		b.obs.audit(ctx, AuditEntry{Operation: "submit", Status: AuditDenied, Namespace: h.id, Detail: err.Error()})
		b.obs.observe(ctx, "submit", false, start)
		return 0, err
	}
	b.obs.audit(ctx, AuditEntry{Operation: "submit", Status: AuditSuccess, Namespace: h.id, TransactionID: queued.ID})
	b.obs.observe(ctx, "submit", true, start)
	return queued.ID, nil
}

// validate runs every synchronous check: namespace existence, patch shape,
// source match, count limits, quotas, and per-patch capability checks. The
// transaction is rejected whole on the first violation.
func (b *PatchBus) validate(handleID patch.NamespaceID, tx *patch.Transaction) error {
	if tx.Source == "" {
		tx.Source = handleID
	}
	if tx.Source != handleID && handleID != patch.KernelNamespace {
		return patch.NewBusError(patch.ErrSourceMismatch, "transaction source %q does not match handle %q", tx.Source, handleID)
	}
	if !b.registry.Exists(tx.Source) {
		return patch.NewBusError(patch.ErrUnknownNamespace, "namespace %q not registered", tx.Source)
	}
	if len(tx.Patches) == 0 {
		return patch.NewBusError(patch.ErrValidationFailed, "transaction has no patches")
	}
	if len(tx.Patches) > b.cfg.MaxPatchesPerTransaction {
		return patch.NewBusError(patch.ErrTooManyPatches, "%d patches exceeds limit %d", len(tx.Patches), b.cfg.MaxPatchesPerTransaction)
	}
	quota, _ := b.registry.Quota(tx.Source)
	if quota.MaxPatchesPerTransaction > 0 && len(tx.Patches) > quota.MaxPatchesPerTransaction {
		return patch.NewBusError(patch.ErrTooManyPatches, "%d patches exceeds namespace limit %d", len(tx.Patches), quota.MaxPatchesPerTransaction)
	}

	b.mu.RLock()
	pendingTotal := len(b.pending) + b.queued
	pendingForSource := 0
	for _, entry := range b.pending {
		if entry.tx.Source == tx.Source {
			pendingForSource++
		}
	}
	b.mu.RUnlock()
	if pendingTotal >= b.cfg.MaxPendingTransactions {
		return patch.NewBusError(patch.ErrTooManyPendingTransactions, "bus pending limit %d reached", b.cfg.MaxPendingTransactions)
	}
	if quota.MaxPendingTransactions > 0 && pendingForSource >= quota.MaxPendingTransactions {
		return patch.NewBusError(patch.ErrTooManyPendingTransactions, "namespace %q pending limit %d reached", tx.Source, quota.MaxPendingTransactions)
	}

	creates := 0
	for i := range tx.Patches {
		p := &tx.Patches[i]
		if err := p.Validate(); err != nil {
			return patch.NewBusError(patch.ErrValidationFailed, "patch %d: %v", i, err)
		}
		if p.Source != tx.Source && tx.Source != patch.KernelNamespace {
			return patch.NewBusError(patch.ErrSourceMismatch, "patch %d source %q does not match transaction source %q", i, p.Source, tx.Source)
		}
		if p.Kind == patch.KindEntityCreate {
			creates++
		}
		if err := b.checkPatchAccess(tx.Source, *p); err != nil {
			return err
		}
	}
	if quota.MaxEntities > 0 && b.registry.EntityCount(tx.Source)+creates > quota.MaxEntities {
		return patch.NewBusError(patch.ErrResourceLimitExceeded, "namespace %q entity quota %d exceeded", tx.Source, quota.MaxEntities)
	}
	return nil
}

// checkPatchAccess maps one patch to its capability check. All patch kinds
// are writes from the access model's point of view.
func (b *PatchBus) checkPatchAccess(source patch.NamespaceID, p patch.Patch) error {
	deny := func(target fmt.Stringer, decision Decision) error {
		return patch.NewBusError(patch.ErrPermissionDenied, "%s on %s: %s", p.Kind, target, decision)
	}
	switch p.Kind {
	case patch.KindEntityCreate, patch.KindEntityDestroy:
		ref := p.Entity.Ref
		if d := b.registry.CheckAccess(source, ref.Namespace, ref, "", true); d != Allowed {
			return deny(ref, d)
		}
	case patch.KindComponentSet, patch.KindComponentUpdate, patch.KindComponentRemove:
		ref := p.Component.Entity
		if d := b.registry.CheckAccess(source, ref.Namespace, ref, p.Component.Name, true); d != Allowed {
			return deny(ref, d)
		}
	case patch.KindHierarchySetParent, patch.KindHierarchyClearParent:
		ref := p.Hierarchy.Child
		if d := b.registry.CheckAccess(source, ref.Namespace, ref, "", true); d != Allowed {
			return deny(ref, d)
		}
	case patch.KindCameraSetActive, patch.KindCameraConfigure:
		ref := p.Camera.Entity
		if d := b.registry.CheckAccess(source, ref.Namespace, ref, "", true); d != Allowed {
			return deny(ref, d)
		}
	case patch.KindLayerSet, patch.KindLayerRemove:
		if owner, ok := b.registry.LayerOwner(p.Layer.ID); ok && owner != source && source != patch.KernelNamespace {
			return patch.NewBusError(patch.ErrPermissionDenied, "layer %q owned by %q", p.Layer.ID, owner)
		}
	case patch.KindAssetRegister, patch.KindAssetUpdate, patch.KindAssetRemove:
		if owner, ok := b.registry.AssetOwner(p.Asset.ID); ok && owner != source && source != patch.KernelNamespace {
			return patch.NewBusError(patch.ErrPermissionDenied, "asset %q owned by %q", p.Asset.ID, owner)
		}
	}
	return nil
}

// BeginFrame advances the bus frame counter and drains every handle channel
// into the pending queue, exactly once per frame. Called only from the
// kernel thread.
func (b *PatchBus) BeginFrame(frame uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = frame
	for _, handles := range b.handles {
		for _, h := range handles {
		drain:
			for {
				select {
				case tx := <-h.ch:
					b.queued--
					b.arrivalSeq++
					b.pending = append(b.pending, &pendingEntry{tx: tx, arrival: b.arrivalSeq, enqueued: frame})
				default:
					break drain
				}
			}
		}
	}
	b.stats.PendingDepth = len(b.pending)
}

// DrainReady partitions pending transactions into ready and not-ready.
// Dependency checks run against one snapshot of the commit log. Expired
// transactions are cancelled and counted; conflicting ready transactions are
// deferred a frame. Ready transactions come back in descending
// max-patch-priority order, ties in arrival order, already marked Applying
// with their targets claimed.
func (b *PatchBus) DrainReady(frame uint64) []*patch.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	var candidates []*pendingEntry
	var remaining []*pendingEntry
	for _, entry := range b.pending {
		if b.cfg.ExpireAfterFrames > 0 && frame >= entry.enqueued && frame-entry.enqueued >= b.cfg.ExpireAfterFrames {
			entry.tx.State = patch.StateCancelled
			b.stats.Expired++
			continue
		}
		if entry.tx.DependenciesSatisfied(b.committed) {
			candidates = append(candidates, entry)
		} else {
			remaining = append(remaining, entry)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].tx.MaxPriority(), candidates[j].tx.MaxPriority()
		if pi != pj {
			return pi > pj
		}
		return candidates[i].arrival < candidates[j].arrival
	})

	var ready []*patch.Transaction
	for _, entry := range candidates {
		if b.detector.HasConflict(entry.tx) {
			b.stats.Deferred++
			remaining = append(remaining, entry)
			continue
		}
		b.detector.Claim(entry.tx)
		entry.tx.State = patch.StateApplying
		b.applying[entry.tx.ID] = entry.tx
		ready = append(ready, entry.tx)
	}

	sort.SliceStable(remaining, func(i, j int) bool { return remaining[i].arrival < remaining[j].arrival })
	b.pending = remaining
	b.stats.PendingDepth = len(b.pending)
	return ready
}

// Commit finalizes one apply result: success appends the id to the commit
// log and notifies the journal, failure counts a rollback. Claims held by
// the transaction are released either way.
func (b *PatchBus) Commit(result ApplyResult) {
	ctx := context.Background()
	b.mu.Lock()
	tx, ok := b.applying[result.TransactionID]
	if ok {
		delete(b.applying, result.TransactionID)
	}
	status := JournalRolledBack
	if result.Success {
		b.commitLog = append(b.commitLog, result.TransactionID)
		b.committed[result.TransactionID] = struct{}{}
		b.stats.Committed++
		status = JournalCommitted
		if tx != nil {
			tx.State = patch.StateCommitted
			tx.AppliedFrame = b.frame
		}
	} else {
		b.stats.RolledBack++
		if tx != nil {
			tx.State = patch.StateRolledBack
		}
	}
	frame := b.frame
	b.mu.Unlock()

	b.detector.Release(result.TransactionID)

	if b.journal != nil && tx != nil {
		entry := JournalEntry{
			TransactionID: result.TransactionID,
			Source:        tx.Source,
			Frame:         frame,
			Status:        status,
			PatchCount:    result.PatchesApplied,
			Error:         result.Error,
			At:            time.Now().UTC(),
		}
		if err := b.journal.Record(ctx, entry); err != nil {
			b.obs.audit(ctx, AuditEntry{Operation: "journal", Status: AuditError, Namespace: tx.Source, TransactionID: tx.ID, Detail: err.Error()})
		}
	}
}

// GCCommitted bounds the commit log to the newest keep ids. Ids evicted
// while still depended upon read as unsatisfied afterwards; with expiry
// enabled the dependent transaction is eventually cancelled.
func (b *PatchBus) GCCommitted(keep int) {
	if keep <= 0 {
		keep = b.cfg.CommitLogKeep
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.commitLog) <= keep {
		return
	}
	evict := b.commitLog[:len(b.commitLog)-keep]
	for _, id := range evict {
		delete(b.committed, id)
	}
	b.commitLog = append([]patch.TransactionID(nil), b.commitLog[len(b.commitLog)-keep:]...)
}

// IsCommitted reports whether an id is still present in the commit log.
func (b *PatchBus) IsCommitted(id patch.TransactionID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.committed[id]
	return ok
}

// Stats returns a copy of the bus counters.
func (b *PatchBus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := b.stats
	stats.PendingDepth = len(b.pending)
	stats.CommitLogSize = len(b.commitLog)
	stats.ClaimedSlots = b.detector.ClaimCount()
	return stats
}
