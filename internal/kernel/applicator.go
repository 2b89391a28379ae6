package kernel

import (
	"fmt"

	"worldcore/pkg/patch"
	"worldcore/pkg/world"
)

// ApplyResult reports the outcome of applying one transaction. When
// PatchesApplied is less than the transaction's patch count, application
// stopped at the first failing patch; earlier writes remain visible.
type ApplyResult struct {
	TransactionID  patch.TransactionID
	PatchesApplied int
	Success        bool
	Error          string
}

// Applicator applies a transaction's patches to world state. Implementations
// must be total: an internal failure, including a panic in a storage
// collaborator, becomes a failed result. A misbehaving transaction must
// never take the kernel down with it.
type Applicator interface {
	Apply(tx *patch.Transaction, w world.World, layers world.LayerManager, assets world.AssetRegistry) ApplyResult
}

// PatchApplicator is the kernel-side Applicator, dispatching each patch kind
// to its collaborator call.
type PatchApplicator struct{}

// NewPatchApplicator constructs the default applicator.
func NewPatchApplicator() *PatchApplicator {
	return &PatchApplicator{}
}

// Apply applies patches in order, stopping at the first failure.
func (a *PatchApplicator) Apply(tx *patch.Transaction, w world.World, layers world.LayerManager, assets world.AssetRegistry) (result ApplyResult) {
	result.TransactionID = tx.ID
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("panic applying transaction %d: %v", tx.ID, r)
		}
	}()
	for i, p := range tx.Patches {
		if err := a.applyOne(p, w, layers, assets); err != nil {
			result.PatchesApplied = i
			result.Error = fmt.Sprintf("patch %d (%s): %v", i, p.Kind, err)
			return result
		}
		result.PatchesApplied = i + 1
	}
	result.Success = true
	return result
}

func (a *PatchApplicator) applyOne(p patch.Patch, w world.World, layers world.LayerManager, assets world.AssetRegistry) error {
	switch p.Kind {
	case patch.KindEntityCreate:
		return w.CreateEntity(p.Entity.Ref, p.Entity.Archetype)
	case patch.KindEntityDestroy:
		return w.DestroyEntity(p.Entity.Ref)
	case patch.KindComponentSet:
		return w.SetComponent(p.Component.Entity, p.Component.Name, p.Component.Value)
	case patch.KindComponentUpdate:
		return w.MergeComponent(p.Component.Entity, p.Component.Name, p.Component.Fields)
	case patch.KindComponentRemove:
		return w.RemoveComponent(p.Component.Entity, p.Component.Name)
	case patch.KindLayerSet:
		layers.SetLayer(p.Layer.ID, p.Layer.Descriptor)
		return nil
	case patch.KindLayerRemove:
		if !layers.RemoveLayer(p.Layer.ID) {
			return fmt.Errorf("layer %q not found", p.Layer.ID)
		}
		return nil
	case patch.KindAssetRegister:
		return assets.Register(world.AssetInfo{ID: p.Asset.ID, Descriptor: p.Asset.Descriptor, BlobKey: p.Asset.BlobKey})
	case patch.KindAssetUpdate:
		return assets.Update(world.AssetInfo{ID: p.Asset.ID, Descriptor: p.Asset.Descriptor, BlobKey: p.Asset.BlobKey})
	case patch.KindAssetRemove:
		return assets.Remove(p.Asset.ID)
	case patch.KindHierarchySetParent:
		return w.SetParent(p.Hierarchy.Child, *p.Hierarchy.Parent)
	case patch.KindHierarchyClearParent:
		return w.ClearParent(p.Hierarchy.Child)
	case patch.KindCameraSetActive:
		return w.SetActiveCamera(p.Camera.Entity)
	case patch.KindCameraConfigure:
		return w.ConfigureCamera(p.Camera.Entity, p.Camera.Settings)
	default:
		return fmt.Errorf("unknown patch kind %q", p.Kind)
	}
}
