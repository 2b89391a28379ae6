package kernel

import (
	"fmt"
	"sync"

	"worldcore/pkg/patch"
)

// targetKind classifies conflict-detection granularity.
type targetKind string

const (
	targetEntity    targetKind = "entity"
	targetComponent targetKind = "component"
	targetLayer     targetKind = "layer"
	targetAsset     targetKind = "asset"
)

// Target identifies one mutation target at conflict-detection granularity:
// (entity, component) for component patches, the whole entity for
// entity/hierarchy/camera patches, the string id for layer/asset patches.
type Target struct {
	kind      targetKind
	entity    patch.EntityRef
	component string
	id        string
}

// String renders the target as a stable diagnostic key.
func (t Target) String() string {
	switch t.kind {
	case targetComponent:
		return fmt.Sprintf("%s#%s", t.entity, t.component)
	case targetLayer:
		return "layer:" + t.id
	case targetAsset:
		return "asset:" + t.id
	default:
		return t.entity.String()
	}
}

// TargetsOf derives the conflict targets a patch claims.
func TargetsOf(p patch.Patch) []Target {
	switch p.Kind {
	case patch.KindComponentSet, patch.KindComponentUpdate, patch.KindComponentRemove:
		return []Target{{kind: targetComponent, entity: p.Component.Entity, component: p.Component.Name}}
	case patch.KindEntityCreate, patch.KindEntityDestroy:
		return []Target{{kind: targetEntity, entity: p.Entity.Ref}}
	case patch.KindHierarchySetParent, patch.KindHierarchyClearParent:
		return []Target{{kind: targetEntity, entity: p.Hierarchy.Child}}
	case patch.KindCameraSetActive, patch.KindCameraConfigure:
		return []Target{{kind: targetEntity, entity: p.Camera.Entity}}
	case patch.KindLayerSet, patch.KindLayerRemove:
		return []Target{{kind: targetLayer, id: p.Layer.ID}}
	case patch.KindAssetRegister, patch.KindAssetUpdate, patch.KindAssetRemove:
		return []Target{{kind: targetAsset, id: p.Asset.ID}}
	}
	return nil
}

// ConflictDetector tracks mutation targets claimed by in-flight transactions.
// This is optimistic concurrency control: overlaps are detected so a
// scheduler can defer or reject, never lock-prevented. Application itself is
// single-threaded, so even a missed conflict cannot race.
type ConflictDetector struct {
	mu      sync.RWMutex
	claimed map[Target]patch.TransactionID
}

// NewConflictDetector constructs an empty detector.
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{claimed: make(map[Target]patch.TransactionID)}
}

// Claim records every target of the transaction as held by it. Claims are
// recorded even for targets already held; Release only clears the caller's
// own claims.
func (d *ConflictDetector) Claim(tx *patch.Transaction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range tx.Patches {
		for _, t := range TargetsOf(p) {
			if _, held := d.claimed[t]; !held {
				d.claimed[t] = tx.ID
			}
		}
	}
}

// Release drops every claim held by the transaction.
func (d *ConflictDetector) Release(id patch.TransactionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t, holder := range d.claimed {
		if holder == id {
			delete(d.claimed, t)
		}
	}
}

// HasConflict reports whether any target of the transaction is claimed by a
// different in-flight transaction.
func (d *ConflictDetector) HasConflict(tx *patch.Transaction) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range tx.Patches {
		for _, t := range TargetsOf(p) {
			if holder, held := d.claimed[t]; held && holder != tx.ID {
				return true
			}
		}
	}
	return false
}

// Conflicts returns the transaction ids holding targets the given
// transaction would claim.
func (d *ConflictDetector) Conflicts(tx *patch.Transaction) []patch.TransactionID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := make(map[patch.TransactionID]struct{})
	var out []patch.TransactionID
	for _, p := range tx.Patches {
		for _, t := range TargetsOf(p) {
			holder, held := d.claimed[t]
			if !held || holder == tx.ID {
				continue
			}
			if _, dup := seen[holder]; dup {
				continue
			}
			seen[holder] = struct{}{}
			out = append(out, holder)
		}
	}
	return out
}

// ClaimCount returns the number of currently claimed targets.
func (d *ConflictDetector) ClaimCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.claimed)
}
