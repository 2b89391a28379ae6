package kernel

import (
	"context"
	"fmt"
	"time"

	"worldcore/pkg/patch"
	"worldcore/pkg/world"
)

// Config assembles kernel construction options.
type Config struct {
	Bus                 BusConfig
	Snapshots           SnapshotLimits
	SnapshotEveryFrames uint64
}

// FrameContext describes the frame opened by BeginFrame.
type FrameContext struct {
	Frame     uint64
	Delta     time.Duration
	StartedAt time.Time
}

// Kernel is the frame-synchronous glue: it owns the bus, the collaborator
// interfaces, the optimizer, the applicator, and the snapshot manager, and
// drives them through begin → process → end each frame. All methods run on
// the single kernel thread; producers only ever touch namespace handles.
type Kernel struct {
	cfg        Config
	registry   *Registry
	bus        *PatchBus
	optimizer  *BatchOptimizer
	applicator Applicator
	snapshots  *SnapshotManager
	idgen      IDGenerator
	obs        Observability

	world  world.World
	layers world.LayerManager
	assets world.AssetRegistry

	frame uint64
}

// NewKernel wires a kernel over the given collaborators. idgen and journal
// may be nil; the default monotonic generator and no journal are used.
func NewKernel(cfg Config, w world.World, layers world.LayerManager, assets world.AssetRegistry, idgen IDGenerator, journal Journal, obs Observability) *Kernel {
	if idgen == nil {
		idgen = NewMonotonicIDGenerator()
	}
	registry := NewRegistry()
	return &Kernel{
		cfg:        cfg,
		registry:   registry,
		bus:        NewPatchBus(cfg.Bus, registry, idgen, journal, obs),
		optimizer:  NewBatchOptimizer(),
		applicator: NewPatchApplicator(),
		snapshots:  NewSnapshotManager(cfg.Snapshots),
		idgen:      idgen,
		obs:        obs,
		world:      w,
		layers:     layers,
		assets:     assets,
	}
}

// Registry returns the namespace registry.
func (k *Kernel) Registry() *Registry { return k.registry }

// Bus returns the patch bus.
func (k *Kernel) Bus() *PatchBus { return k.bus }

// Snapshots returns the snapshot manager.
func (k *Kernel) Snapshots() *SnapshotManager { return k.snapshots }

// Frame returns the current frame number.
func (k *Kernel) Frame() uint64 { return k.frame }

// BeginFrame opens the next frame and drains producer channels into the
// pending queue.
func (k *Kernel) BeginFrame(delta time.Duration) FrameContext {
	k.frame++
	k.bus.BeginFrame(k.frame)
	return FrameContext{Frame: k.frame, Delta: delta, StartedAt: time.Now().UTC()}
}

// ProcessTransactions drains ready transactions and applies them in priority
// order, committing each result. Patch batches are optimized immediately
// before application.
func (k *Kernel) ProcessTransactions() []ApplyResult {
	ctx := context.Background()
	ready := k.bus.DrainReady(k.frame)
	results := make([]ApplyResult, 0, len(ready))
	for _, tx := range ready {
		start := time.Now()
		_, span := k.obs.span(ctx, "apply")
		optimized := k.optimizer.Optimize(PatchBatch{Patches: tx.Patches})
		tx.Patches = optimized.Patches
		res := k.applicator.Apply(tx, k.world, k.layers, k.assets)
		if res.Success {
			k.registry.RecordApplied(tx)
			span.End(nil)
		} else {
			span.End(fmt.Errorf("%s", res.Error))
			k.obs.audit(ctx, AuditEntry{Operation: "apply", Status: AuditError, Namespace: tx.Source, TransactionID: tx.ID, Detail: res.Error})
		}
		k.obs.observe(ctx, "apply", res.Success, start)
		k.bus.Commit(res)
		results = append(results, res)
	}
	return results
}

// EndFrame closes the frame: per-frame quotas reset, the commit log is
// garbage-collected, and a periodic snapshot is captured when configured.
func (k *Kernel) EndFrame() {
	k.registry.ResetFrame()
	k.bus.GCCommitted(0)
	if every := k.cfg.SnapshotEveryFrames; every > 0 && k.frame%every == 0 {
		k.Snapshot()
	}
}

// Snapshot captures and stores a snapshot of the current state.
func (k *Kernel) Snapshot() *StateSnapshot {
	s := CaptureSnapshot(k.idgen.NextSnapshotID(), k.frame, k.world, k.layers, k.assets)
	k.snapshots.Store(s)
	return s
}

// RollbackTo restores the state captured by the given snapshot, computing
// the diff against current state and applying it as one kernel-sourced
// recovery transaction outside the bus.
func (k *Kernel) RollbackTo(id SnapshotID) (ApplyResult, error) {
	target, ok := k.snapshots.Get(id)
	if !ok {
		return ApplyResult{}, fmt.Errorf("snapshot %d not found", id)
	}
	current := CaptureSnapshot(0, k.frame, k.world, k.layers, k.assets)
	patches := target.Diff(current)
	if len(patches) == 0 {
		return ApplyResult{Success: true}, nil
	}
	recovery := &patch.Transaction{
		ID:           k.idgen.NextTransactionID(),
		Source:       patch.KernelNamespace,
		State:        patch.StateApplying,
		Patches:      k.optimizer.Optimize(PatchBatch{Patches: patches}).Patches,
		CreatedFrame: k.frame,
	}
	res := k.applicator.Apply(recovery, k.world, k.layers, k.assets)
	if res.Success {
		recovery.State = patch.StateCommitted
		k.registry.RecordApplied(recovery)
	} else {
		recovery.State = patch.StateRolledBack
	}
	return res, nil
}
