package kernel

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"worldcore/pkg/patch"
	"worldcore/pkg/world"
)

// stubWorld is a map-backed world.World for kernel tests. It lives in this
// package so the kernel stays free of infra imports even from its tests.
type stubWorld struct {
	entities   map[patch.EntityRef]map[string]map[string]any
	archetypes map[patch.EntityRef]string
	parents    map[patch.EntityRef]patch.EntityRef
	camera     patch.EntityRef
	hasCamera  bool

	failOn patch.Kind // when set, the matching operation fails
	panicOn patch.Kind // when set, the matching operation panics
}

var _ world.World = (*stubWorld)(nil)

func newStubWorld() *stubWorld {
	return &stubWorld{
		entities:   make(map[patch.EntityRef]map[string]map[string]any),
		archetypes: make(map[patch.EntityRef]string),
		parents:    make(map[patch.EntityRef]patch.EntityRef),
	}
}

func (w *stubWorld) trip(kind patch.Kind) error {
	if w.panicOn == kind {
		panic("stub world panic on " + string(kind))
	}
	if w.failOn == kind {
		return fmt.Errorf("stub world failure on %s", kind)
	}
	return nil
}

func (w *stubWorld) CreateEntity(ref patch.EntityRef, archetype string) error {
	if err := w.trip(patch.KindEntityCreate); err != nil {
		return err
	}
	if _, ok := w.entities[ref]; ok {
		return fmt.Errorf("entity %s already exists", ref)
	}
	w.entities[ref] = make(map[string]map[string]any)
	w.archetypes[ref] = archetype
	return nil
}

func (w *stubWorld) DestroyEntity(ref patch.EntityRef) error {
	if err := w.trip(patch.KindEntityDestroy); err != nil {
		return err
	}
	if _, ok := w.entities[ref]; !ok {
		return fmt.Errorf("entity %s not found", ref)
	}
	delete(w.entities, ref)
	delete(w.archetypes, ref)
	delete(w.parents, ref)
	return nil
}

func (w *stubWorld) HasEntity(ref patch.EntityRef) bool {
	_, ok := w.entities[ref]
	return ok
}

func (w *stubWorld) Entities() []patch.EntityRef {
	out := make([]patch.EntityRef, 0, len(w.entities))
	for ref := range w.entities {
		out = append(out, ref)
	}
	return out
}

func (w *stubWorld) SetComponent(ref patch.EntityRef, name string, value map[string]any) error {
	if err := w.trip(patch.KindComponentSet); err != nil {
		return err
	}
	comps, ok := w.entities[ref]
	if !ok {
		return fmt.Errorf("entity %s not found", ref)
	}
	cp := make(map[string]any, len(value))
	for k, v := range value {
		cp[k] = v
	}
	comps[name] = cp
	return nil
}

func (w *stubWorld) MergeComponent(ref patch.EntityRef, name string, fields map[string]any) error {
	if err := w.trip(patch.KindComponentUpdate); err != nil {
		return err
	}
	comps, ok := w.entities[ref]
	if !ok {
		return fmt.Errorf("entity %s not found", ref)
	}
	if comps[name] == nil {
		comps[name] = make(map[string]any)
	}
	for k, v := range fields {
		comps[name][k] = v
	}
	return nil
}

func (w *stubWorld) RemoveComponent(ref patch.EntityRef, name string) error {
	comps, ok := w.entities[ref]
	if !ok {
		return fmt.Errorf("entity %s not found", ref)
	}
	delete(comps, name)
	return nil
}

func (w *stubWorld) Component(ref patch.EntityRef, name string) (map[string]any, bool) {
	comps, ok := w.entities[ref]
	if !ok {
		return nil, false
	}
	c, ok := comps[name]
	if !ok {
		return nil, false
	}
	cp := make(map[string]any, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp, true
}

func (w *stubWorld) Components(ref patch.EntityRef) (map[string]map[string]any, bool) {
	comps, ok := w.entities[ref]
	if !ok {
		return nil, false
	}
	out := make(map[string]map[string]any, len(comps))
	for name, c := range comps {
		cp := make(map[string]any, len(c))
		for k, v := range c {
			cp[k] = v
		}
		out[name] = cp
	}
	return out, true
}

func (w *stubWorld) SetParent(child, parent patch.EntityRef) error {
	if _, ok := w.entities[child]; !ok {
		return fmt.Errorf("entity %s not found", child)
	}
	if _, ok := w.entities[parent]; !ok {
		return fmt.Errorf("entity %s not found", parent)
	}
	w.parents[child] = parent
	return nil
}

func (w *stubWorld) ClearParent(child patch.EntityRef) error {
	if _, ok := w.entities[child]; !ok {
		return fmt.Errorf("entity %s not found", child)
	}
	delete(w.parents, child)
	return nil
}

func (w *stubWorld) SetActiveCamera(ref patch.EntityRef) error {
	if _, ok := w.entities[ref]; !ok {
		return fmt.Errorf("entity %s not found", ref)
	}
	w.camera = ref
	w.hasCamera = true
	return nil
}

func (w *stubWorld) ConfigureCamera(ref patch.EntityRef, settings map[string]any) error {
	return w.MergeComponent(ref, "Camera", settings)
}

// stubLayers is a minimal world.LayerManager.
type stubLayers struct {
	layers map[string]map[string]any
}

var _ world.LayerManager = (*stubLayers)(nil)

func newStubLayers() *stubLayers {
	return &stubLayers{layers: make(map[string]map[string]any)}
}

func (l *stubLayers) SetLayer(id string, descriptor map[string]any) {
	l.layers[id] = descriptor
}

func (l *stubLayers) RemoveLayer(id string) bool {
	if _, ok := l.layers[id]; !ok {
		return false
	}
	delete(l.layers, id)
	return true
}

func (l *stubLayers) Layer(id string) (map[string]any, bool) {
	d, ok := l.layers[id]
	return d, ok
}

func (l *stubLayers) Layers() map[string]map[string]any {
	out := make(map[string]map[string]any, len(l.layers))
	for id, d := range l.layers {
		out[id] = d
	}
	return out
}

// stubAssets is a minimal world.AssetRegistry with no payload resolution.
type stubAssets struct {
	assets map[string]world.AssetInfo
}

var _ world.AssetRegistry = (*stubAssets)(nil)

func newStubAssets() *stubAssets {
	return &stubAssets{assets: make(map[string]world.AssetInfo)}
}

func (a *stubAssets) Register(info world.AssetInfo) error {
	if _, ok := a.assets[info.ID]; ok {
		return fmt.Errorf("asset %s already registered", info.ID)
	}
	a.assets[info.ID] = info
	return nil
}

func (a *stubAssets) Update(info world.AssetInfo) error {
	if _, ok := a.assets[info.ID]; !ok {
		return fmt.Errorf("asset %s not registered", info.ID)
	}
	a.assets[info.ID] = info
	return nil
}

func (a *stubAssets) Remove(id string) error {
	if _, ok := a.assets[id]; !ok {
		return fmt.Errorf("asset %s not registered", id)
	}
	delete(a.assets, id)
	return nil
}

func (a *stubAssets) Asset(id string) (world.AssetInfo, bool) {
	info, ok := a.assets[id]
	return info, ok
}

func (a *stubAssets) Assets() map[string]world.AssetInfo {
	out := make(map[string]world.AssetInfo, len(a.assets))
	for id, info := range a.assets {
		out[id] = info
	}
	return out
}

func (a *stubAssets) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("stub registry has no payload store")
}

// captureAudit records audit entries for assertions.
type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAudit) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAudit) byOperation(op string) []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []AuditEntry
	for _, e := range c.entries {
		if e.Operation == op {
			out = append(out, e)
		}
	}
	return out
}

// captureMetrics records metric observations for assertions.
type captureMetrics struct {
	mu  sync.Mutex
	obs []struct {
		operation string
		success   bool
		duration  time.Duration
	}
}

func (c *captureMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, struct {
		operation string
		success   bool
		duration  time.Duration
	}{operation, success, duration})
}
