// Package world defines the collaborator interfaces the kernel mutates
// through: entity/component storage, layer management, and the asset
// registry. Implementations live under internal/infra; the kernel depends
// only on these contracts.
package world

import (
	"context"
	"io"

	"worldcore/pkg/patch"
)

// World is the safe capability surface over entity/component storage. All
// calls happen on the kernel thread; implementations need no internal
// locking for correctness but must keep stale references inert (a destroyed
// entity's ref must read as absent, never as another entity).
type World interface {
	// CreateEntity introduces an entity. Creating an existing ref is an error.
	CreateEntity(ref patch.EntityRef, archetype string) error
	// DestroyEntity removes an entity and all of its components.
	DestroyEntity(ref patch.EntityRef) error
	// HasEntity reports whether the ref currently names a live entity.
	HasEntity(ref patch.EntityRef) bool
	// Entities lists all live entity refs in unspecified order.
	Entities() []patch.EntityRef

	// SetComponent replaces a component value wholesale.
	SetComponent(ref patch.EntityRef, name string, value map[string]any) error
	// MergeComponent merges fields into an existing component, creating it
	// when absent.
	MergeComponent(ref patch.EntityRef, name string, fields map[string]any) error
	// RemoveComponent deletes a component.
	RemoveComponent(ref patch.EntityRef, name string) error
	// Component returns a copy of one component value.
	Component(ref patch.EntityRef, name string) (map[string]any, bool)
	// Components returns a copy of all components on an entity.
	Components(ref patch.EntityRef) (map[string]map[string]any, bool)

	// SetParent attaches child under parent.
	SetParent(child, parent patch.EntityRef) error
	// ClearParent detaches child from its parent.
	ClearParent(child patch.EntityRef) error

	// SetActiveCamera marks the entity as the active camera.
	SetActiveCamera(ref patch.EntityRef) error
	// ConfigureCamera merges settings into the entity's camera state.
	ConfigureCamera(ref patch.EntityRef, settings map[string]any) error
}

// LayerManager owns named layer descriptors.
type LayerManager interface {
	// SetLayer creates or replaces a layer descriptor.
	SetLayer(id string, descriptor map[string]any)
	// RemoveLayer deletes a layer, reporting whether it existed.
	RemoveLayer(id string) bool
	// Layer returns a copy of one layer descriptor.
	Layer(id string) (map[string]any, bool)
	// Layers returns a copy of all layer descriptors keyed by id.
	Layers() map[string]map[string]any
}

// AssetInfo describes a registered asset. BlobKey optionally points at
// payload bytes in a blob store; descriptors alone are enough for the
// kernel's bookkeeping.
type AssetInfo struct {
	ID         string         `json:"id"`
	Descriptor map[string]any `json:"descriptor,omitempty"`
	BlobKey    string         `json:"blob_key,omitempty"`
}

// AssetRegistry owns asset descriptors and resolves their payloads.
type AssetRegistry interface {
	// Register introduces an asset. Registering an existing id is an error.
	Register(info AssetInfo) error
	// Update replaces the descriptor of an existing asset.
	Update(info AssetInfo) error
	// Remove deletes an asset descriptor.
	Remove(id string) error
	// Asset returns a copy of one asset descriptor.
	Asset(id string) (AssetInfo, bool)
	// Assets returns a copy of all asset descriptors keyed by id.
	Assets() map[string]AssetInfo
	// Open streams the payload bytes behind an asset's blob key.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}
