package arena

import "worldcore/pkg/world"

// Layers is the in-memory LayerManager.
type Layers struct {
	layers map[string]map[string]any
}

var _ world.LayerManager = (*Layers)(nil)

// NewLayers returns an empty layer manager.
func NewLayers() *Layers {
	return &Layers{layers: make(map[string]map[string]any)}
}

// SetLayer creates or replaces a layer descriptor.
func (l *Layers) SetLayer(id string, descriptor map[string]any) {
	l.layers[id] = cloneValue(descriptor)
}

// RemoveLayer deletes a layer, reporting whether it existed.
func (l *Layers) RemoveLayer(id string) bool {
	if _, ok := l.layers[id]; !ok {
		return false
	}
	delete(l.layers, id)
	return true
}

// Layer returns a copy of one layer descriptor.
func (l *Layers) Layer(id string) (map[string]any, bool) {
	descriptor, ok := l.layers[id]
	if !ok {
		return nil, false
	}
	return cloneValue(descriptor), true
}

// Layers returns a copy of all layer descriptors keyed by id.
func (l *Layers) Layers() map[string]map[string]any {
	out := make(map[string]map[string]any, len(l.layers))
	for id, descriptor := range l.layers {
		out[id] = cloneValue(descriptor)
	}
	return out
}
