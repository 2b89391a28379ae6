package kernel

import (
	"sort"

	"worldcore/pkg/patch"
)

// PatchBatch is an ordered patch sequence handed to the optimizer before
// application.
type PatchBatch struct {
	Patches []patch.Patch
}

// BatchOptimizer rewrites a patch sequence through three ordered passes:
// merge-redundant, eliminate-contradictions, sort-optimal. Optimization is
// idempotent; re-running on an optimized batch changes nothing.
type BatchOptimizer struct{}

// NewBatchOptimizer constructs an optimizer.
func NewBatchOptimizer() *BatchOptimizer {
	return &BatchOptimizer{}
}

// Optimize runs all three passes and returns the rewritten batch.
func (o *BatchOptimizer) Optimize(batch PatchBatch) PatchBatch {
	merged := o.mergeRedundant(batch.Patches)
	pruned := o.eliminateContradictions(merged)
	o.sortOptimal(pruned)
	return PatchBatch{Patches: pruned}
}

// mergeKey returns the folding key for mergeable patches and whether the
// patch participates in merging at all. Entity, hierarchy, and camera
// patches never fold.
func mergeKey(p patch.Patch) (string, bool) {
	switch p.Kind {
	case patch.KindComponentSet, patch.KindComponentUpdate, patch.KindComponentRemove:
		return "c:" + p.Component.Entity.String() + "#" + p.Component.Name, true
	case patch.KindLayerSet, patch.KindLayerRemove:
		return "l:" + p.Layer.ID, true
	case patch.KindAssetRegister, patch.KindAssetUpdate, patch.KindAssetRemove:
		return "a:" + p.Asset.ID, true
	}
	return "", false
}

// mergeRedundant folds patches sharing a merge key. The later patch wins
// outright with one exception: two component updates union their field maps,
// later value winning on key collision. A set followed by an update also
// keeps only the later patch; see DESIGN.md for why that asymmetry is
// preserved.
func (o *BatchOptimizer) mergeRedundant(patches []patch.Patch) []patch.Patch {
	out := make([]patch.Patch, 0, len(patches))
	index := make(map[string]int)
	for _, p := range patches {
		key, mergeable := mergeKey(p)
		if !mergeable {
			out = append(out, p)
			continue
		}
		at, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, p)
			continue
		}
		prev := out[at]
		if prev.Kind == patch.KindComponentUpdate && p.Kind == patch.KindComponentUpdate {
			fields := make(map[string]any, len(prev.Component.Fields)+len(p.Component.Fields))
			for k, v := range prev.Component.Fields {
				fields[k] = v
			}
			for k, v := range p.Component.Fields {
				fields[k] = v
			}
			merged := p.Clone()
			merged.Component.Fields = fields
			out[at] = merged
			continue
		}
		out[at] = p
	}
	return out
}

// eliminateContradictions removes every patch for an entity that is created
// and later destroyed within the same batch: the pair nets to nothing, and
// patches between them touched an entity that never existed outside the
// batch.
func (o *BatchOptimizer) eliminateContradictions(patches []patch.Patch) []patch.Patch {
	created := make(map[patch.EntityRef]int)
	doomed := make(map[patch.EntityRef]struct{})
	for i, p := range patches {
		switch p.Kind {
		case patch.KindEntityCreate:
			created[p.Entity.Ref] = i
		case patch.KindEntityDestroy:
			if at, ok := created[p.Entity.Ref]; ok && at < i {
				doomed[p.Entity.Ref] = struct{}{}
			}
		}
	}
	if len(doomed) == 0 {
		return patches
	}
	out := patches[:0]
	for _, p := range patches {
		if ref, ok := p.TargetEntity(); ok {
			if _, dead := doomed[ref]; dead {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// sortOptimal orders patches for safe application: priority descending, then
// the fixed type order (creates before mutations, asset changes next,
// destroys last), then source namespace. The sort is stable so equal patches
// keep their submission order.
func (o *BatchOptimizer) sortOptimal(patches []patch.Patch) {
	sort.SliceStable(patches, func(i, j int) bool {
		a, b := patches[i], patches[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if ao, bo := a.ApplyOrder(), b.ApplyOrder(); ao != bo {
			return ao < bo
		}
		return a.Source < b.Source
	})
}
