// Package arena implements pkg/world.World over a generational-index arena:
// entity slots are reused after destruction with a bumped generation, so
// stale handles read as absent instead of aliasing a new entity. No pointer
// arithmetic anywhere; the arena is plain slices and maps.
package arena

import (
	"fmt"

	"worldcore/pkg/patch"
	"worldcore/pkg/world"
)

// Handle is a generational reference to an arena slot. A handle taken before
// an entity's destruction never resolves again, even when the slot is
// recycled.
type Handle struct {
	Index      uint32
	Generation uint32
}

type slot struct {
	generation uint32
	live       bool
	ref        patch.EntityRef
	archetype  string
	components map[string]map[string]any
	parent     *patch.EntityRef
}

// World is the arena-backed entity/component store.
type World struct {
	slots        []slot
	free         []uint32
	index        map[patch.EntityRef]Handle
	activeCamera *patch.EntityRef
}

var _ world.World = (*World)(nil)

// New returns an empty arena world.
func New() *World {
	return &World{index: make(map[patch.EntityRef]Handle)}
}

// CreateEntity introduces an entity, reusing a free slot when available.
func (w *World) CreateEntity(ref patch.EntityRef, archetype string) error {
	if _, exists := w.index[ref]; exists {
		return fmt.Errorf("entity %s already exists", ref)
	}
	var idx uint32
	if n := len(w.free); n > 0 {
		idx = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		w.slots = append(w.slots, slot{})
		idx = uint32(len(w.slots) - 1)
	}
	s := &w.slots[idx]
	s.live = true
	s.ref = ref
	s.archetype = archetype
	s.components = make(map[string]map[string]any)
	s.parent = nil
	w.index[ref] = Handle{Index: idx, Generation: s.generation}
	return nil
}

// DestroyEntity removes an entity, bumping the slot generation so existing
// handles go stale, and detaches any children.
func (w *World) DestroyEntity(ref patch.EntityRef) error {
	h, ok := w.index[ref]
	if !ok {
		return fmt.Errorf("entity %s not found", ref)
	}
	s := &w.slots[h.Index]
	s.live = false
	s.generation++
	s.components = nil
	s.parent = nil
	delete(w.index, ref)
	w.free = append(w.free, h.Index)
	for i := range w.slots {
		if w.slots[i].live && w.slots[i].parent != nil && *w.slots[i].parent == ref {
			w.slots[i].parent = nil
		}
	}
	if w.activeCamera != nil && *w.activeCamera == ref {
		w.activeCamera = nil
	}
	return nil
}

// HasEntity reports whether the ref names a live entity.
func (w *World) HasEntity(ref patch.EntityRef) bool {
	_, ok := w.index[ref]
	return ok
}

// Entities lists all live entity refs.
func (w *World) Entities() []patch.EntityRef {
	out := make([]patch.EntityRef, 0, len(w.index))
	for ref := range w.index {
		out = append(out, ref)
	}
	return out
}

// LookupHandle returns the current generational handle for a ref.
func (w *World) LookupHandle(ref patch.EntityRef) (Handle, bool) {
	h, ok := w.index[ref]
	return h, ok
}

// Resolve reports whether a handle still names a live entity, and its ref.
func (w *World) Resolve(h Handle) (patch.EntityRef, bool) {
	if int(h.Index) >= len(w.slots) {
		return patch.EntityRef{}, false
	}
	s := &w.slots[h.Index]
	if !s.live || s.generation != h.Generation {
		return patch.EntityRef{}, false
	}
	return s.ref, true
}

// Archetype returns the archetype an entity was created with.
func (w *World) Archetype(ref patch.EntityRef) (string, bool) {
	s, err := w.resolve(ref)
	if err != nil {
		return "", false
	}
	return s.archetype, true
}

func (w *World) resolve(ref patch.EntityRef) (*slot, error) {
	h, ok := w.index[ref]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", ref)
	}
	return &w.slots[h.Index], nil
}

// SetComponent replaces a component value wholesale.
func (w *World) SetComponent(ref patch.EntityRef, name string, value map[string]any) error {
	s, err := w.resolve(ref)
	if err != nil {
		return err
	}
	s.components[name] = cloneValue(value)
	return nil
}

// MergeComponent merges fields into a component, creating it when absent.
func (w *World) MergeComponent(ref patch.EntityRef, name string, fields map[string]any) error {
	s, err := w.resolve(ref)
	if err != nil {
		return err
	}
	current, ok := s.components[name]
	if !ok {
		current = make(map[string]any, len(fields))
		s.components[name] = current
	}
	for k, v := range fields {
		current[k] = v
	}
	return nil
}

// RemoveComponent deletes a component.
func (w *World) RemoveComponent(ref patch.EntityRef, name string) error {
	s, err := w.resolve(ref)
	if err != nil {
		return err
	}
	if _, ok := s.components[name]; !ok {
		return fmt.Errorf("component %q not present on %s", name, ref)
	}
	delete(s.components, name)
	return nil
}

// Component returns a copy of one component value.
func (w *World) Component(ref patch.EntityRef, name string) (map[string]any, bool) {
	s, err := w.resolve(ref)
	if err != nil {
		return nil, false
	}
	value, ok := s.components[name]
	if !ok {
		return nil, false
	}
	return cloneValue(value), true
}

// Components returns a copy of all components on an entity.
func (w *World) Components(ref patch.EntityRef) (map[string]map[string]any, bool) {
	s, err := w.resolve(ref)
	if err != nil {
		return nil, false
	}
	out := make(map[string]map[string]any, len(s.components))
	for name, value := range s.components {
		out[name] = cloneValue(value)
	}
	return out, true
}

// SetParent attaches child under parent, rejecting cycles.
func (w *World) SetParent(child, parent patch.EntityRef) error {
	if child == parent {
		return fmt.Errorf("entity %s cannot parent itself", child)
	}
	cs, err := w.resolve(child)
	if err != nil {
		return err
	}
	if _, err := w.resolve(parent); err != nil {
		return err
	}
	ancestor := parent
	for {
		s, err := w.resolve(ancestor)
		if err != nil || s.parent == nil {
			break
		}
		if *s.parent == child {
			return fmt.Errorf("parenting %s under %s would form a cycle", child, parent)
		}
		ancestor = *s.parent
	}
	p := parent
	cs.parent = &p
	return nil
}

// ClearParent detaches child from its parent.
func (w *World) ClearParent(child patch.EntityRef) error {
	s, err := w.resolve(child)
	if err != nil {
		return err
	}
	s.parent = nil
	return nil
}

// Parent returns the entity's parent, if attached.
func (w *World) Parent(ref patch.EntityRef) (patch.EntityRef, bool) {
	s, err := w.resolve(ref)
	if err != nil || s.parent == nil {
		return patch.EntityRef{}, false
	}
	return *s.parent, true
}

// SetActiveCamera marks the entity as the active camera.
func (w *World) SetActiveCamera(ref patch.EntityRef) error {
	if _, err := w.resolve(ref); err != nil {
		return err
	}
	r := ref
	w.activeCamera = &r
	return nil
}

// ActiveCamera returns the active camera entity, if set.
func (w *World) ActiveCamera() (patch.EntityRef, bool) {
	if w.activeCamera == nil {
		return patch.EntityRef{}, false
	}
	return *w.activeCamera, true
}

// ConfigureCamera merges settings into the entity's camera component.
func (w *World) ConfigureCamera(ref patch.EntityRef, settings map[string]any) error {
	return w.MergeComponent(ref, "Camera", settings)
}

func cloneValue(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
