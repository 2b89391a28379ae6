// Package patch defines the declarative mutation model shared by the kernel
// and application namespaces: Patch variants, Transactions, the transaction
// builder, and the bus error taxonomy. Everything in this package is plain
// serializable data so out-of-process transports can carry it unchanged.
package patch

import (
	"fmt"
	"time"
)

// NamespaceID identifies one isolation domain (app/tenant). It is opaque to
// the patch model; ownership and grants are resolved by the kernel registry.
type NamespaceID string

// KernelNamespace is the reserved namespace with unrestricted access. It is
// registered implicitly and can never be destroyed.
const KernelNamespace NamespaceID = "kernel"

// EntityRef addresses an entity by owning namespace and namespace-local id.
type EntityRef struct {
	Namespace NamespaceID `json:"namespace"`
	LocalID   uint64      `json:"local_id"`
}

// String renders the reference in namespace/id form for diagnostics and keys.
func (r EntityRef) String() string {
	return fmt.Sprintf("%s/%d", r.Namespace, r.LocalID)
}

// Kind discriminates patch variants. Every Kind maps to exactly one payload
// field on Patch; validation and merge logic switch exhaustively on it.
type Kind string

// Supported patch kinds.
const (
	// KindEntityCreate introduces a new entity owned by the patch source.
	KindEntityCreate Kind = "entity_create"
	// KindEntityDestroy removes an entity and all of its components.
	KindEntityDestroy Kind = "entity_destroy"
	// KindComponentSet replaces a component value wholesale.
	KindComponentSet Kind = "component_set"
	// KindComponentUpdate merges a field map into an existing component.
	KindComponentUpdate Kind = "component_update"
	// KindComponentRemove deletes a component from an entity.
	KindComponentRemove Kind = "component_remove"
	// KindLayerSet creates or replaces a layer descriptor.
	KindLayerSet Kind = "layer_set"
	// KindLayerRemove deletes a layer.
	KindLayerRemove Kind = "layer_remove"
	// KindAssetRegister introduces an asset descriptor.
	KindAssetRegister Kind = "asset_register"
	// KindAssetUpdate replaces an asset descriptor.
	KindAssetUpdate Kind = "asset_update"
	// KindAssetRemove deletes an asset descriptor.
	KindAssetRemove Kind = "asset_remove"
	// KindHierarchySetParent reparents an entity.
	KindHierarchySetParent Kind = "hierarchy_set_parent"
	// KindHierarchyClearParent detaches an entity from its parent.
	KindHierarchyClearParent Kind = "hierarchy_clear_parent"
	// KindCameraSetActive selects the active camera entity.
	KindCameraSetActive Kind = "camera_set_active"
	// KindCameraConfigure adjusts camera settings on an entity.
	KindCameraConfigure Kind = "camera_configure"
)

// EntityPayload carries the data for entity create/destroy patches.
type EntityPayload struct {
	Ref       EntityRef `json:"ref"`
	Archetype string    `json:"archetype,omitempty"`
}

// ComponentPayload carries the data for component set/update/remove patches.
// Value is populated for set, Fields for update, neither for remove.
type ComponentPayload struct {
	Entity EntityRef      `json:"entity"`
	Name   string         `json:"name"`
	Value  map[string]any `json:"value,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// LayerPayload carries the data for layer set/remove patches.
type LayerPayload struct {
	ID         string         `json:"id"`
	Descriptor map[string]any `json:"descriptor,omitempty"`
}

// AssetPayload carries the data for asset register/update/remove patches.
// BlobKey optionally references payload bytes held in a blob store.
type AssetPayload struct {
	ID         string         `json:"id"`
	Descriptor map[string]any `json:"descriptor,omitempty"`
	BlobKey    string         `json:"blob_key,omitempty"`
}

// HierarchyPayload carries the data for reparenting patches. Parent is nil
// for clear-parent.
type HierarchyPayload struct {
	Child  EntityRef  `json:"child"`
	Parent *EntityRef `json:"parent,omitempty"`
}

// CameraPayload carries the data for camera patches.
type CameraPayload struct {
	Entity   EntityRef      `json:"entity"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Patch is the smallest declarative unit of world mutation. Exactly one
// payload field is populated, selected by Kind. Priority affects application
// ordering only and never bypasses permission checks.
type Patch struct {
	Source    NamespaceID `json:"source"`
	Kind      Kind        `json:"kind"`
	Priority  int32       `json:"priority"`
	Timestamp time.Time   `json:"timestamp"`

	Entity    *EntityPayload    `json:"entity,omitempty"`
	Component *ComponentPayload `json:"component,omitempty"`
	Layer     *LayerPayload     `json:"layer,omitempty"`
	Asset     *AssetPayload     `json:"asset,omitempty"`
	Hierarchy *HierarchyPayload `json:"hierarchy,omitempty"`
	Camera    *CameraPayload    `json:"camera,omitempty"`
}

// NewEntityCreate builds an entity creation patch.
func NewEntityCreate(source NamespaceID, ref EntityRef, archetype string) Patch {
	return Patch{Source: source, Kind: KindEntityCreate, Timestamp: time.Now().UTC(),
		Entity: &EntityPayload{Ref: ref, Archetype: archetype}}
}

// NewEntityDestroy builds an entity destruction patch.
func NewEntityDestroy(source NamespaceID, ref EntityRef) Patch {
	return Patch{Source: source, Kind: KindEntityDestroy, Timestamp: time.Now().UTC(),
		Entity: &EntityPayload{Ref: ref}}
}

// NewComponentSet builds a patch replacing a component value wholesale.
func NewComponentSet(source NamespaceID, entity EntityRef, name string, value map[string]any) Patch {
	return Patch{Source: source, Kind: KindComponentSet, Timestamp: time.Now().UTC(),
		Component: &ComponentPayload{Entity: entity, Name: name, Value: value}}
}

// NewComponentUpdate builds a patch merging fields into a component.
func NewComponentUpdate(source NamespaceID, entity EntityRef, name string, fields map[string]any) Patch {
	return Patch{Source: source, Kind: KindComponentUpdate, Timestamp: time.Now().UTC(),
		Component: &ComponentPayload{Entity: entity, Name: name, Fields: fields}}
}

// NewComponentRemove builds a patch deleting a component.
func NewComponentRemove(source NamespaceID, entity EntityRef, name string) Patch {
	return Patch{Source: source, Kind: KindComponentRemove, Timestamp: time.Now().UTC(),
		Component: &ComponentPayload{Entity: entity, Name: name}}
}

// NewLayerSet builds a patch creating or replacing a layer descriptor.
func NewLayerSet(source NamespaceID, id string, descriptor map[string]any) Patch {
	return Patch{Source: source, Kind: KindLayerSet, Timestamp: time.Now().UTC(),
		Layer: &LayerPayload{ID: id, Descriptor: descriptor}}
}

// NewLayerRemove builds a patch deleting a layer.
func NewLayerRemove(source NamespaceID, id string) Patch {
	return Patch{Source: source, Kind: KindLayerRemove, Timestamp: time.Now().UTC(),
		Layer: &LayerPayload{ID: id}}
}

// NewAssetRegister builds a patch introducing an asset descriptor.
func NewAssetRegister(source NamespaceID, id string, descriptor map[string]any, blobKey string) Patch {
	return Patch{Source: source, Kind: KindAssetRegister, Timestamp: time.Now().UTC(),
		Asset: &AssetPayload{ID: id, Descriptor: descriptor, BlobKey: blobKey}}
}

// NewAssetUpdate builds a patch replacing an asset descriptor.
func NewAssetUpdate(source NamespaceID, id string, descriptor map[string]any, blobKey string) Patch {
	return Patch{Source: source, Kind: KindAssetUpdate, Timestamp: time.Now().UTC(),
		Asset: &AssetPayload{ID: id, Descriptor: descriptor, BlobKey: blobKey}}
}

// NewAssetRemove builds a patch deleting an asset descriptor.
func NewAssetRemove(source NamespaceID, id string) Patch {
	return Patch{Source: source, Kind: KindAssetRemove, Timestamp: time.Now().UTC(),
		Asset: &AssetPayload{ID: id}}
}

// NewHierarchySetParent builds a reparenting patch.
func NewHierarchySetParent(source NamespaceID, child, parent EntityRef) Patch {
	p := parent
	return Patch{Source: source, Kind: KindHierarchySetParent, Timestamp: time.Now().UTC(),
		Hierarchy: &HierarchyPayload{Child: child, Parent: &p}}
}

// NewHierarchyClearParent builds a patch detaching an entity from its parent.
func NewHierarchyClearParent(source NamespaceID, child EntityRef) Patch {
	return Patch{Source: source, Kind: KindHierarchyClearParent, Timestamp: time.Now().UTC(),
		Hierarchy: &HierarchyPayload{Child: child}}
}

// NewCameraSetActive builds a patch selecting the active camera entity.
func NewCameraSetActive(source NamespaceID, entity EntityRef) Patch {
	return Patch{Source: source, Kind: KindCameraSetActive, Timestamp: time.Now().UTC(),
		Camera: &CameraPayload{Entity: entity}}
}

// NewCameraConfigure builds a patch adjusting camera settings on an entity.
func NewCameraConfigure(source NamespaceID, entity EntityRef, settings map[string]any) Patch {
	return Patch{Source: source, Kind: KindCameraConfigure, Timestamp: time.Now().UTC(),
		Camera: &CameraPayload{Entity: entity, Settings: settings}}
}

// WithPriority returns a copy of the patch with the given priority.
func (p Patch) WithPriority(priority int32) Patch {
	p.Priority = priority
	return p
}

// Validate checks that the payload populated on the patch matches its Kind.
func (p Patch) Validate() error {
	var want, got int
	switch p.Kind {
	case KindEntityCreate, KindEntityDestroy:
		if p.Entity == nil {
			return fmt.Errorf("patch %s missing entity payload", p.Kind)
		}
		want = 1
	case KindComponentSet, KindComponentUpdate, KindComponentRemove:
		if p.Component == nil {
			return fmt.Errorf("patch %s missing component payload", p.Kind)
		}
		if p.Kind == KindComponentSet && p.Component.Value == nil {
			return fmt.Errorf("component set for %s missing value", p.Component.Name)
		}
		if p.Kind == KindComponentUpdate && len(p.Component.Fields) == 0 {
			return fmt.Errorf("component update for %s has no fields", p.Component.Name)
		}
		want = 1
	case KindLayerSet, KindLayerRemove:
		if p.Layer == nil || p.Layer.ID == "" {
			return fmt.Errorf("patch %s missing layer id", p.Kind)
		}
		want = 1
	case KindAssetRegister, KindAssetUpdate, KindAssetRemove:
		if p.Asset == nil || p.Asset.ID == "" {
			return fmt.Errorf("patch %s missing asset id", p.Kind)
		}
		want = 1
	case KindHierarchySetParent:
		if p.Hierarchy == nil || p.Hierarchy.Parent == nil {
			return fmt.Errorf("patch %s missing parent", p.Kind)
		}
		want = 1
	case KindHierarchyClearParent:
		if p.Hierarchy == nil {
			return fmt.Errorf("patch %s missing hierarchy payload", p.Kind)
		}
		want = 1
	case KindCameraSetActive, KindCameraConfigure:
		if p.Camera == nil {
			return fmt.Errorf("patch %s missing camera payload", p.Kind)
		}
		want = 1
	default:
		return fmt.Errorf("unknown patch kind %q", p.Kind)
	}
	for _, set := range []bool{p.Entity != nil, p.Component != nil, p.Layer != nil, p.Asset != nil, p.Hierarchy != nil, p.Camera != nil} {
		if set {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("patch %s has %d payloads, want %d", p.Kind, got, want)
	}
	return nil
}

// TargetEntity returns the entity the patch addresses and whether it
// addresses one at all (layer and asset patches do not).
func (p Patch) TargetEntity() (EntityRef, bool) {
	switch p.Kind {
	case KindEntityCreate, KindEntityDestroy:
		return p.Entity.Ref, true
	case KindComponentSet, KindComponentUpdate, KindComponentRemove:
		return p.Component.Entity, true
	case KindHierarchySetParent, KindHierarchyClearParent:
		return p.Hierarchy.Child, true
	case KindCameraSetActive, KindCameraConfigure:
		return p.Camera.Entity, true
	}
	return EntityRef{}, false
}

// ApplyOrder returns the fixed type ordering used by the optimizer's final
// sort: creates first, mutations in the middle, asset changes next, destroys
// last.
func (p Patch) ApplyOrder() int {
	switch p.Kind {
	case KindEntityCreate:
		return 0
	case KindAssetRegister, KindAssetUpdate, KindAssetRemove:
		return 3
	case KindEntityDestroy:
		return 4
	default:
		return 2
	}
}

// Clone returns a deep copy of the patch. Payload maps are copied one level
// deep; values inside them are plain data shared by convention.
func (p Patch) Clone() Patch {
	cp := p
	if p.Entity != nil {
		e := *p.Entity
		cp.Entity = &e
	}
	if p.Component != nil {
		c := *p.Component
		c.Value = cloneMap(p.Component.Value)
		c.Fields = cloneMap(p.Component.Fields)
		cp.Component = &c
	}
	if p.Layer != nil {
		l := *p.Layer
		l.Descriptor = cloneMap(p.Layer.Descriptor)
		cp.Layer = &l
	}
	if p.Asset != nil {
		a := *p.Asset
		a.Descriptor = cloneMap(p.Asset.Descriptor)
		cp.Asset = &a
	}
	if p.Hierarchy != nil {
		h := *p.Hierarchy
		if p.Hierarchy.Parent != nil {
			parent := *p.Hierarchy.Parent
			h.Parent = &parent
		}
		cp.Hierarchy = &h
	}
	if p.Camera != nil {
		c := *p.Camera
		c.Settings = cloneMap(p.Camera.Settings)
		cp.Camera = &c
	}
	return cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
