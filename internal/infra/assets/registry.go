// Package assets provides the in-memory asset registry. Descriptors live in
// a map; payload bytes are resolved through an optional payload store keyed
// by each asset's blob key.
package assets

import (
	"context"
	"fmt"
	"io"
	"sync"

	"worldcore/internal/infra/payload"
	"worldcore/pkg/world"
)

// Registry implements world.AssetRegistry. The payload store may be nil, in
// which case Open fails for every asset but descriptor bookkeeping still
// works.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]world.AssetInfo
	store  payload.Store
}

var _ world.AssetRegistry = (*Registry)(nil)

// NewRegistry returns a registry resolving payloads through store. Pass nil
// for a descriptor-only registry.
func NewRegistry(store payload.Store) *Registry {
	return &Registry{assets: make(map[string]world.AssetInfo), store: store}
}

// Register introduces an asset descriptor.
func (r *Registry) Register(info world.AssetInfo) error {
	if info.ID == "" {
		return fmt.Errorf("asset id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[info.ID]; ok {
		return fmt.Errorf("asset %s already registered", info.ID)
	}
	r.assets[info.ID] = cloneInfo(info)
	return nil
}

// Update replaces the descriptor of an existing asset.
func (r *Registry) Update(info world.AssetInfo) error {
	if info.ID == "" {
		return fmt.Errorf("asset id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[info.ID]; !ok {
		return fmt.Errorf("asset %s not registered", info.ID)
	}
	r.assets[info.ID] = cloneInfo(info)
	return nil
}

// Remove deletes an asset descriptor. Payload bytes are left in the store;
// blob retention is a deployment concern, not the registry's.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[id]; !ok {
		return fmt.Errorf("asset %s not registered", id)
	}
	delete(r.assets, id)
	return nil
}

// Asset returns a copy of one asset descriptor.
func (r *Registry) Asset(id string) (world.AssetInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.assets[id]
	if !ok {
		return world.AssetInfo{}, false
	}
	return cloneInfo(info), true
}

// Assets returns a copy of all asset descriptors keyed by id.
func (r *Registry) Assets() map[string]world.AssetInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]world.AssetInfo, len(r.assets))
	for id, info := range r.assets {
		out[id] = cloneInfo(info)
	}
	return out
}

// Open streams the payload bytes behind an asset's blob key.
func (r *Registry) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	r.mu.RLock()
	info, ok := r.assets[id]
	store := r.store
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("asset %s not registered", id)
	}
	if info.BlobKey == "" {
		return nil, fmt.Errorf("asset %s has no payload", id)
	}
	if store == nil {
		return nil, fmt.Errorf("asset %s: no payload store configured", id)
	}
	_, rc, err := store.Get(ctx, info.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", id, err)
	}
	return rc, nil
}

func cloneInfo(info world.AssetInfo) world.AssetInfo {
	out := world.AssetInfo{ID: info.ID, BlobKey: info.BlobKey}
	if info.Descriptor != nil {
		out.Descriptor = make(map[string]any, len(info.Descriptor))
		for k, v := range info.Descriptor {
			out.Descriptor[k] = v
		}
	}
	return out
}
