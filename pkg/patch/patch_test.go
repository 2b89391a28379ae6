package patch

import (
	"reflect"
	"testing"
)

func ref(ns NamespaceID, id uint64) EntityRef {
	return EntityRef{Namespace: ns, LocalID: id}
}

func TestEntityRefString(t *testing.T) {
	r := ref("physics", 42)
	if got, want := r.String(), "physics/42"; got != want {
		t.Fatalf("String()=%q want %q", got, want)
	}
}

func TestValidateAcceptsEveryConstructor(t *testing.T) {
	e := ref("app", 1)
	parent := ref("app", 2)
	patches := []Patch{
		NewEntityCreate("app", e, "ship"),
		NewEntityDestroy("app", e),
		NewComponentSet("app", e, "Position", map[string]any{"x": 1.0}),
		NewComponentUpdate("app", e, "Position", map[string]any{"x": 2.0}),
		NewComponentRemove("app", e, "Position"),
		NewLayerSet("app", "background", map[string]any{"depth": -1}),
		NewLayerRemove("app", "background"),
		NewAssetRegister("app", "tex/hull", map[string]any{"format": "png"}, "blobs/hull"),
		NewAssetUpdate("app", "tex/hull", map[string]any{"format": "ktx2"}, ""),
		NewAssetRemove("app", "tex/hull"),
		NewHierarchySetParent("app", e, parent),
		NewHierarchyClearParent("app", e),
		NewCameraSetActive("app", e),
		NewCameraConfigure("app", e, map[string]any{"fov": 70.0}),
	}
	for _, p := range patches {
		if err := p.Validate(); err != nil {
			t.Fatalf("Validate(%s): %v", p.Kind, err)
		}
	}
}

func TestValidateRejectsMalformedPatches(t *testing.T) {
	e := ref("app", 1)
	cases := []struct {
		name string
		p    Patch
	}{
		{"unknown kind", Patch{Kind: "teleport"}},
		{"missing payload", Patch{Kind: KindEntityCreate}},
		{"set without value", Patch{Kind: KindComponentSet, Component: &ComponentPayload{Entity: e, Name: "Position"}}},
		{"update without fields", Patch{Kind: KindComponentUpdate, Component: &ComponentPayload{Entity: e, Name: "Position"}}},
		{"layer without id", Patch{Kind: KindLayerSet, Layer: &LayerPayload{}}},
		{"asset without id", Patch{Kind: KindAssetRegister, Asset: &AssetPayload{}}},
		{"set parent without parent", Patch{Kind: KindHierarchySetParent, Hierarchy: &HierarchyPayload{Child: e}}},
		{"two payloads", Patch{Kind: KindEntityCreate,
			Entity: &EntityPayload{Ref: e},
			Layer:  &LayerPayload{ID: "background"}}},
	}
	for _, c := range cases {
		if err := c.p.Validate(); err == nil {
			t.Fatalf("%s: Validate accepted malformed patch", c.name)
		}
	}
}

func TestTargetEntity(t *testing.T) {
	e := ref("app", 7)
	if got, ok := NewComponentSet("app", e, "Position", map[string]any{"x": 0.0}).TargetEntity(); !ok || got != e {
		t.Fatalf("component patch target = %v, %v", got, ok)
	}
	if got, ok := NewCameraSetActive("app", e).TargetEntity(); !ok || got != e {
		t.Fatalf("camera patch target = %v, %v", got, ok)
	}
	if _, ok := NewLayerSet("app", "background", nil).TargetEntity(); ok {
		t.Fatalf("layer patch reported an entity target")
	}
	if _, ok := NewAssetRemove("app", "tex").TargetEntity(); ok {
		t.Fatalf("asset patch reported an entity target")
	}
}

func TestApplyOrderBrackets(t *testing.T) {
	e := ref("app", 1)
	create := NewEntityCreate("app", e, "")
	set := NewComponentSet("app", e, "Position", map[string]any{"x": 0.0})
	asset := NewAssetRegister("app", "tex", nil, "")
	destroy := NewEntityDestroy("app", e)
	if !(create.ApplyOrder() < set.ApplyOrder() && set.ApplyOrder() < asset.ApplyOrder() && asset.ApplyOrder() < destroy.ApplyOrder()) {
		t.Fatalf("apply order brackets violated: %d %d %d %d",
			create.ApplyOrder(), set.ApplyOrder(), asset.ApplyOrder(), destroy.ApplyOrder())
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := NewComponentSet("app", ref("app", 1), "Position", map[string]any{"x": 1.0})
	cp := p.Clone()
	cp.Component.Value["x"] = 99.0
	if p.Component.Value["x"] != 1.0 {
		t.Fatalf("clone shares component value map")
	}

	h := NewHierarchySetParent("app", ref("app", 1), ref("app", 2))
	hc := h.Clone()
	hc.Hierarchy.Parent.LocalID = 100
	if h.Hierarchy.Parent.LocalID != 2 {
		t.Fatalf("clone shares parent pointer")
	}
}

func TestTransactionClone(t *testing.T) {
	tx := Transaction{
		ID:           9,
		Source:       "app",
		State:        StatePending,
		Patches:      []Patch{NewComponentSet("app", ref("app", 1), "Position", map[string]any{"x": 1.0})},
		Dependencies: []TransactionID{3, 4},
	}
	cp := tx.Clone()
	cp.Patches[0].Component.Value["x"] = 5.0
	cp.Dependencies[0] = 77
	if tx.Patches[0].Component.Value["x"] != 1.0 {
		t.Fatalf("transaction clone shares patch payloads")
	}
	if tx.Dependencies[0] != 3 {
		t.Fatalf("transaction clone shares dependency slice")
	}
}

func TestDependenciesSatisfied(t *testing.T) {
	tx := Transaction{Dependencies: []TransactionID{1, 2}}
	committed := map[TransactionID]struct{}{1: {}}
	if tx.DependenciesSatisfied(committed) {
		t.Fatalf("unsatisfied dependency reported satisfied")
	}
	committed[2] = struct{}{}
	if !tx.DependenciesSatisfied(committed) {
		t.Fatalf("satisfied dependencies reported unsatisfied")
	}
	empty := Transaction{}
	if !empty.DependenciesSatisfied(nil) {
		t.Fatalf("empty dependency list must always be satisfied")
	}
}

func TestMaxPriority(t *testing.T) {
	tx := Transaction{Patches: []Patch{
		NewComponentSet("app", ref("app", 1), "A", map[string]any{"v": 1}).WithPriority(3),
		NewComponentSet("app", ref("app", 1), "B", map[string]any{"v": 2}).WithPriority(-5),
	}}
	if got := tx.MaxPriority(); got != 3 {
		t.Fatalf("MaxPriority=%d want 3", got)
	}
	empty := Transaction{}
	if got := empty.MaxPriority(); got != -1<<31 {
		t.Fatalf("empty MaxPriority=%d want %d", got, -1<<31)
	}
}

func TestWithPriorityDoesNotMutateReceiver(t *testing.T) {
	p := NewLayerSet("app", "background", nil)
	q := p.WithPriority(10)
	if p.Priority != 0 || q.Priority != 10 {
		t.Fatalf("WithPriority mutated receiver: %d %d", p.Priority, q.Priority)
	}
	if !reflect.DeepEqual(p.Layer, q.Layer) {
		t.Fatalf("WithPriority changed payload")
	}
}
