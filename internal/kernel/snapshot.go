package kernel

import (
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"worldcore/pkg/patch"
	"worldcore/pkg/world"
)

// StateSnapshot captures entity existence, per-entity component values,
// layer descriptors, and asset descriptors at one frame. Snapshots are
// immutable after capture.
type StateSnapshot struct {
	ID         SnapshotID                                   `json:"id"`
	Frame      uint64                                       `json:"frame"`
	Entities   map[patch.EntityRef]struct{}                 `json:"-"`
	Components map[patch.EntityRef]map[string]map[string]any `json:"-"`
	Layers     map[string]map[string]any                    `json:"layers"`
	Assets     map[string]world.AssetInfo                   `json:"assets"`

	size int
}

// CaptureSnapshot reads the collaborators into a new snapshot. Runs on the
// kernel thread like every other state access.
func CaptureSnapshot(id SnapshotID, frame uint64, w world.World, layers world.LayerManager, assets world.AssetRegistry) *StateSnapshot {
	s := &StateSnapshot{
		ID:         id,
		Frame:      frame,
		Entities:   make(map[patch.EntityRef]struct{}),
		Components: make(map[patch.EntityRef]map[string]map[string]any),
		Layers:     layers.Layers(),
		Assets:     assets.Assets(),
	}
	for _, ref := range w.Entities() {
		s.Entities[ref] = struct{}{}
		if comps, ok := w.Components(ref); ok {
			s.Components[ref] = comps
		}
	}
	return s
}

// SizeEstimate approximates the snapshot's memory footprint via its JSON
// encoding. The estimate is computed once and cached.
func (s *StateSnapshot) SizeEstimate() int {
	if s.size > 0 {
		return s.size
	}
	payload := struct {
		Components map[string]map[string]map[string]any `json:"components"`
		Layers     map[string]map[string]any            `json:"layers"`
		Assets     map[string]world.AssetInfo           `json:"assets"`
	}{Components: make(map[string]map[string]map[string]any, len(s.Components)), Layers: s.Layers, Assets: s.Assets}
	for ref, comps := range s.Components {
		payload.Components[ref.String()] = comps
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.size = 1
		return s.size
	}
	s.size = len(raw)
	return s.size
}

// Diff computes the minimal patch list transforming other's state into the
// receiver's: entity create/destroy for set differences, component
// set/remove by value equality, symmetric layer and asset logic. Emitted
// patches are kernel-sourced and deterministically ordered.
func (s *StateSnapshot) Diff(other *StateSnapshot) []patch.Patch {
	var out []patch.Patch

	for _, ref := range sortedRefs(s.Entities) {
		if _, exists := other.Entities[ref]; !exists {
			out = append(out, patch.NewEntityCreate(patch.KernelNamespace, ref, ""))
			for _, name := range sortedComponentNames(s.Components[ref]) {
				out = append(out, patch.NewComponentSet(patch.KernelNamespace, ref, name, s.Components[ref][name]))
			}
			continue
		}
		mine, theirs := s.Components[ref], other.Components[ref]
		for _, name := range sortedComponentNames(mine) {
			if prev, ok := theirs[name]; !ok || !reflect.DeepEqual(prev, mine[name]) {
				out = append(out, patch.NewComponentSet(patch.KernelNamespace, ref, name, mine[name]))
			}
		}
		for _, name := range sortedComponentNames(theirs) {
			if _, ok := mine[name]; !ok {
				out = append(out, patch.NewComponentRemove(patch.KernelNamespace, ref, name))
			}
		}
	}
	for _, ref := range sortedRefs(other.Entities) {
		if _, exists := s.Entities[ref]; !exists {
			out = append(out, patch.NewEntityDestroy(patch.KernelNamespace, ref))
		}
	}

	for _, id := range sortedKeys(s.Layers) {
		if prev, ok := other.Layers[id]; !ok || !reflect.DeepEqual(prev, s.Layers[id]) {
			out = append(out, patch.NewLayerSet(patch.KernelNamespace, id, s.Layers[id]))
		}
	}
	for _, id := range sortedKeys(other.Layers) {
		if _, ok := s.Layers[id]; !ok {
			out = append(out, patch.NewLayerRemove(patch.KernelNamespace, id))
		}
	}

	for _, id := range sortedKeys(s.Assets) {
		mine := s.Assets[id]
		theirs, ok := other.Assets[id]
		if !ok {
			out = append(out, patch.NewAssetRegister(patch.KernelNamespace, id, mine.Descriptor, mine.BlobKey))
		} else if !reflect.DeepEqual(theirs, mine) {
			out = append(out, patch.NewAssetUpdate(patch.KernelNamespace, id, mine.Descriptor, mine.BlobKey))
		}
	}
	for _, id := range sortedKeys(other.Assets) {
		if _, ok := s.Assets[id]; !ok {
			out = append(out, patch.NewAssetRemove(patch.KernelNamespace, id))
		}
	}

	return out
}

func sortedRefs(set map[patch.EntityRef]struct{}) []patch.EntityRef {
	refs := make([]patch.EntityRef, 0, len(set))
	for ref := range set {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Namespace != refs[j].Namespace {
			return refs[i].Namespace < refs[j].Namespace
		}
		return refs[i].LocalID < refs[j].LocalID
	})
	return refs
}

func sortedComponentNames(comps map[string]map[string]any) []string {
	names := make([]string, 0, len(comps))
	for name := range comps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SnapshotLimits bounds the manager. Zero fields mean unlimited.
type SnapshotLimits struct {
	MaxSnapshots int
	MaxBytes     int
}

// SnapshotManager stores snapshots and silently evicts the lowest-frame one
// whenever count or cumulative estimated bytes exceed the limits. Memory
// pressure is never surfaced as an error.
type SnapshotManager struct {
	mu     sync.RWMutex
	limits SnapshotLimits
	snaps  map[SnapshotID]*StateSnapshot
}

// NewSnapshotManager constructs a manager with the given limits.
func NewSnapshotManager(limits SnapshotLimits) *SnapshotManager {
	return &SnapshotManager{limits: limits, snaps: make(map[SnapshotID]*StateSnapshot)}
}

// Store retains a snapshot, then evicts until limits hold again.
func (m *SnapshotManager) Store(s *StateSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.ID] = s
	for m.overLimitLocked() {
		m.evictLowestFrameLocked()
	}
}

// Get returns a stored snapshot by id.
func (m *SnapshotManager) Get(id SnapshotID) (*StateSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[id]
	return s, ok
}

// Latest returns the stored snapshot with the highest frame number.
func (m *SnapshotManager) Latest() (*StateSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *StateSnapshot
	for _, s := range m.snaps {
		if best == nil || s.Frame > best.Frame {
			best = s
		}
	}
	return best, best != nil
}

// Len returns the number of stored snapshots.
func (m *SnapshotManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}

// TotalBytes returns the cumulative size estimate of stored snapshots.
func (m *SnapshotManager) TotalBytes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalBytesLocked()
}

func (m *SnapshotManager) totalBytesLocked() int {
	total := 0
	for _, s := range m.snaps {
		total += s.SizeEstimate()
	}
	return total
}

func (m *SnapshotManager) overLimitLocked() bool {
	if len(m.snaps) <= 1 {
		return false
	}
	if m.limits.MaxSnapshots > 0 && len(m.snaps) > m.limits.MaxSnapshots {
		return true
	}
	if m.limits.MaxBytes > 0 && m.totalBytesLocked() > m.limits.MaxBytes {
		return true
	}
	return false
}

func (m *SnapshotManager) evictLowestFrameLocked() {
	var victim *StateSnapshot
	for _, s := range m.snaps {
		if victim == nil || s.Frame < victim.Frame {
			victim = s
		}
	}
	if victim != nil {
		delete(m.snaps, victim.ID)
	}
}
