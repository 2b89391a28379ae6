package kernel

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"worldcore/pkg/patch"
)

// AccessPolicy controls who an entity export admits.
type AccessPolicy string

// Export access policies.
const (
	// PolicyPublic admits every namespace.
	PolicyPublic AccessPolicy = "public"
	// PolicyAllowlist admits only namespaces named on the export.
	PolicyAllowlist AccessPolicy = "allowlist"
	// PolicyCapabilityRequired admits only namespaces holding a matching
	// capability grant.
	PolicyCapabilityRequired AccessPolicy = "capability_required"
)

// EntityExport shares one owned entity with other namespaces. Writes are
// admitted only for the components listed in WritableComponents; an empty
// list makes the export read-only.
type EntityExport struct {
	Entity             patch.EntityRef
	Policy             AccessPolicy
	Allowlist          []patch.NamespaceID
	WritableComponents []string
}

// CapabilityKind classifies capability grants.
type CapabilityKind string

// Capability kinds.
const (
	// CapabilityCrossNamespaceRead lets the holder read entities of the
	// target namespace without per-entity exports. It never grants writes.
	CapabilityCrossNamespaceRead CapabilityKind = "cross_namespace_read"
	// CapabilityExportAccess satisfies PolicyCapabilityRequired exports of
	// the target namespace.
	CapabilityExportAccess CapabilityKind = "export_access"
)

// Capability is a grant recorded against the holding namespace, scoped to a
// target namespace.
type Capability struct {
	ID     string
	Kind   CapabilityKind
	Target patch.NamespaceID
}

// ResourceQuota bounds a namespace's submissions. Zero fields mean
// unlimited. Per-frame counters reset at every frame boundary.
type ResourceQuota struct {
	MaxPendingTransactions   int
	MaxPatchesPerTransaction int
	MaxPatchesPerFrame       int
	MaxEntities              int
}

// NamespaceInfo is a copy of one namespace's registry record.
type NamespaceInfo struct {
	ID       patch.NamespaceID
	Name     string
	Entities []patch.EntityRef
	Layers   []string
	Assets   []string
	Exports  []EntityExport
}

// Decision is the outcome of an access check.
type Decision string

// Access decisions. The three denial reasons are distinct so callers can
// report why a request was refused without re-deriving registry state.
const (
	Allowed                 Decision = "allowed"
	DeniedNotOwner          Decision = "denied_not_owner"
	DeniedMissingCapability Decision = "denied_missing_capability"
	DeniedNotFound          Decision = "denied_not_found"
)

type namespaceRecord struct {
	id           patch.NamespaceID
	name         string
	entities     map[patch.EntityRef]struct{}
	layers       map[string]struct{}
	assets       map[string]struct{}
	exports      map[patch.EntityRef]EntityExport
	capabilities map[string]Capability
	quota        ResourceQuota
	framePatches int
}

func newNamespaceRecord(id patch.NamespaceID, name string) *namespaceRecord {
	return &namespaceRecord{
		id:           id,
		name:         name,
		entities:     make(map[patch.EntityRef]struct{}),
		layers:       make(map[string]struct{}),
		assets:       make(map[string]struct{}),
		exports:      make(map[patch.EntityRef]EntityExport),
		capabilities: make(map[string]Capability),
	}
}

// Registry tracks namespaces, their ownership sets, exports, capability
// grants, and quotas. Reads take the shared lock so monitors can inspect the
// table while the bus validates.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[patch.NamespaceID]*namespaceRecord
}

// NewRegistry constructs a registry with the kernel namespace pre-registered.
func NewRegistry() *Registry {
	r := &Registry{namespaces: make(map[patch.NamespaceID]*namespaceRecord)}
	r.namespaces[patch.KernelNamespace] = newNamespaceRecord(patch.KernelNamespace, "kernel")
	return r
}

// Register adds a namespace. Registering an existing id or the kernel
// sentinel is an error.
func (r *Registry) Register(id patch.NamespaceID, name string) error {
	if id == "" {
		return fmt.Errorf("namespace id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.namespaces[id]; exists {
		return fmt.Errorf("namespace %q already registered", id)
	}
	r.namespaces[id] = newNamespaceRecord(id, name)
	return nil
}

// Destroy removes a namespace, atomically revoking every capability it holds,
// every capability targeting it, its exports, and its ownership sets. The
// kernel namespace is never destroyable.
func (r *Registry) Destroy(id patch.NamespaceID) error {
	if id == patch.KernelNamespace {
		return fmt.Errorf("kernel namespace cannot be destroyed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.namespaces[id]; !exists {
		return fmt.Errorf("namespace %q not registered", id)
	}
	delete(r.namespaces, id)
	for _, rec := range r.namespaces {
		for capID, grant := range rec.capabilities {
			if grant.Target == id {
				delete(rec.capabilities, capID)
			}
		}
	}
	return nil
}

// Exists reports whether the namespace is registered.
func (r *Registry) Exists(id patch.NamespaceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.namespaces[id]
	return ok
}

// Info returns a copy of one namespace record.
func (r *Registry) Info(id patch.NamespaceID) (NamespaceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.namespaces[id]
	if !ok {
		return NamespaceInfo{}, false
	}
	info := NamespaceInfo{ID: rec.id, Name: rec.name}
	for ref := range rec.entities {
		info.Entities = append(info.Entities, ref)
	}
	for id := range rec.layers {
		info.Layers = append(info.Layers, id)
	}
	for id := range rec.assets {
		info.Assets = append(info.Assets, id)
	}
	for _, exp := range rec.exports {
		info.Exports = append(info.Exports, exp)
	}
	return info, true
}

// SetQuota replaces the namespace's resource quota.
func (r *Registry) SetQuota(id patch.NamespaceID, quota ResourceQuota) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.namespaces[id]
	if !ok {
		return fmt.Errorf("namespace %q not registered", id)
	}
	rec.quota = quota
	return nil
}

// Quota returns the namespace's resource quota.
func (r *Registry) Quota(id patch.NamespaceID) (ResourceQuota, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.namespaces[id]
	if !ok {
		return ResourceQuota{}, false
	}
	return rec.quota, true
}

// Grant records a capability for the holder namespace and returns its id.
func (r *Registry) Grant(holder patch.NamespaceID, kind CapabilityKind, target patch.NamespaceID) (Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.namespaces[holder]
	if !ok {
		return Capability{}, fmt.Errorf("namespace %q not registered", holder)
	}
	if _, ok := r.namespaces[target]; !ok {
		return Capability{}, fmt.Errorf("target namespace %q not registered", target)
	}
	grant := Capability{ID: uuid.NewString(), Kind: kind, Target: target}
	rec.capabilities[grant.ID] = grant
	return grant, nil
}

// Revoke removes a capability from the holder.
func (r *Registry) Revoke(holder patch.NamespaceID, capabilityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.namespaces[holder]
	if !ok {
		return fmt.Errorf("namespace %q not registered", holder)
	}
	if _, ok := rec.capabilities[capabilityID]; !ok {
		return fmt.Errorf("capability %q not held by %q", capabilityID, holder)
	}
	delete(rec.capabilities, capabilityID)
	return nil
}

// Export shares an owned entity under the given policy.
func (r *Registry) Export(owner patch.NamespaceID, export EntityExport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.namespaces[owner]
	if !ok {
		return fmt.Errorf("namespace %q not registered", owner)
	}
	if export.Entity.Namespace != owner {
		return fmt.Errorf("cannot export entity %s owned by %q", export.Entity, export.Entity.Namespace)
	}
	rec.exports[export.Entity] = export
	return nil
}

// Unexport withdraws an entity export.
func (r *Registry) Unexport(owner patch.NamespaceID, entity patch.EntityRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.namespaces[owner]
	if !ok {
		return fmt.Errorf("namespace %q not registered", owner)
	}
	delete(rec.exports, entity)
	return nil
}

// CheckAccess resolves whether requester may act on an entity of the target
// namespace. Resolution order: kernel, self, entity export, read capability.
// component names the component being written ("" for entity-level access);
// exports only ever admit writes to their listed components.
func (r *Registry) CheckAccess(requester, target patch.NamespaceID, entity patch.EntityRef, component string, write bool) Decision {
	if requester == patch.KernelNamespace {
		return Allowed
	}
	if requester == target {
		return Allowed
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.namespaces[target]
	if !ok {
		return DeniedNotFound
	}
	export, exported := rec.exports[entity]
	if exported {
		if admits, reason := r.policyAdmits(export, requester); !admits {
			return reason
		}
		if !write {
			return Allowed
		}
		if component != "" {
			for _, writable := range export.WritableComponents {
				if writable == component {
					return Allowed
				}
			}
		}
		return DeniedNotOwner
	}
	if !write && r.holdsCapability(requester, CapabilityCrossNamespaceRead, target) {
		return Allowed
	}
	if _, owned := rec.entities[entity]; !owned {
		return DeniedNotFound
	}
	return DeniedNotOwner
}

// policyAdmits evaluates an export policy for a requester. Caller holds the
// read lock.
func (r *Registry) policyAdmits(export EntityExport, requester patch.NamespaceID) (bool, Decision) {
	switch export.Policy {
	case PolicyPublic:
		return true, Allowed
	case PolicyAllowlist:
		for _, id := range export.Allowlist {
			if id == requester {
				return true, Allowed
			}
		}
		return false, DeniedNotOwner
	case PolicyCapabilityRequired:
		if r.holdsCapability(requester, CapabilityExportAccess, export.Entity.Namespace) {
			return true, Allowed
		}
		return false, DeniedMissingCapability
	default:
		return false, DeniedNotOwner
	}
}

// holdsCapability reports whether the holder has a grant of the given kind
// scoped to target. Caller holds the read lock.
func (r *Registry) holdsCapability(holder patch.NamespaceID, kind CapabilityKind, target patch.NamespaceID) bool {
	rec, ok := r.namespaces[holder]
	if !ok {
		return false
	}
	for _, grant := range rec.capabilities {
		if grant.Kind == kind && grant.Target == target {
			return true
		}
	}
	return false
}

// EntityCount returns the number of entities currently owned by a namespace.
func (r *Registry) EntityCount(id patch.NamespaceID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.namespaces[id]
	if !ok {
		return 0
	}
	return len(rec.entities)
}

// LayerOwner returns the namespace owning a layer id, if any.
func (r *Registry) LayerOwner(id string) (patch.NamespaceID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.namespaces {
		if _, ok := rec.layers[id]; ok {
			return rec.id, true
		}
	}
	return "", false
}

// AssetOwner returns the namespace owning an asset id, if any.
func (r *Registry) AssetOwner(id string) (patch.NamespaceID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.namespaces {
		if _, ok := rec.assets[id]; ok {
			return rec.id, true
		}
	}
	return "", false
}

// ConsumeFramePatches charges count patches against the namespace's
// per-frame budget, failing without charging when the budget would overflow.
func (r *Registry) ConsumeFramePatches(id patch.NamespaceID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.namespaces[id]
	if !ok {
		return fmt.Errorf("namespace %q not registered", id)
	}
	if max := rec.quota.MaxPatchesPerFrame; max > 0 && rec.framePatches+count > max {
		return fmt.Errorf("namespace %q frame patch budget %d exceeded", id, max)
	}
	rec.framePatches += count
	return nil
}

// RefundFramePatches returns count patches to the namespace's per-frame
// budget after a failed enqueue.
func (r *Registry) RefundFramePatches(id patch.NamespaceID, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.namespaces[id]; ok {
		rec.framePatches -= count
		if rec.framePatches < 0 {
			rec.framePatches = 0
		}
	}
}

// ResetFrame clears all per-frame quota counters.
func (r *Registry) ResetFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.namespaces {
		rec.framePatches = 0
	}
}

// RecordApplied updates ownership sets from the patches of a committed
// transaction. Called on the kernel thread after a successful apply.
func (r *Registry) RecordApplied(tx *patch.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range tx.Patches {
		switch p.Kind {
		case patch.KindEntityCreate:
			if rec, ok := r.namespaces[p.Entity.Ref.Namespace]; ok {
				rec.entities[p.Entity.Ref] = struct{}{}
			}
		case patch.KindEntityDestroy:
			if rec, ok := r.namespaces[p.Entity.Ref.Namespace]; ok {
				delete(rec.entities, p.Entity.Ref)
				delete(rec.exports, p.Entity.Ref)
			}
		case patch.KindLayerSet:
			if owner := r.layerOwnerLocked(p.Layer.ID); owner == "" {
				if rec, ok := r.namespaces[p.Source]; ok {
					rec.layers[p.Layer.ID] = struct{}{}
				}
			}
		case patch.KindLayerRemove:
			for _, rec := range r.namespaces {
				delete(rec.layers, p.Layer.ID)
			}
		case patch.KindAssetRegister:
			if owner := r.assetOwnerLocked(p.Asset.ID); owner == "" {
				if rec, ok := r.namespaces[p.Source]; ok {
					rec.assets[p.Asset.ID] = struct{}{}
				}
			}
		case patch.KindAssetRemove:
			for _, rec := range r.namespaces {
				delete(rec.assets, p.Asset.ID)
			}
		}
	}
}

func (r *Registry) layerOwnerLocked(id string) patch.NamespaceID {
	for _, rec := range r.namespaces {
		if _, ok := rec.layers[id]; ok {
			return rec.id
		}
	}
	return ""
}

func (r *Registry) assetOwnerLocked(id string) patch.NamespaceID {
	for _, rec := range r.namespaces {
		if _, ok := rec.assets[id]; ok {
			return rec.id
		}
	}
	return ""
}
