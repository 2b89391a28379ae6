package kernel

import (
	"testing"

	"worldcore/pkg/patch"
)

func txWith(id patch.TransactionID, source patch.NamespaceID, patches ...patch.Patch) *patch.Transaction {
	return &patch.Transaction{ID: id, Source: source, Patches: patches}
}

func TestTargetsOfGranularity(t *testing.T) {
	e := eref("app", 1)
	comp := patch.NewComponentSet("app", e, "Position", map[string]any{"x": 1.0})
	ent := patch.NewEntityDestroy("app", e)
	layer := patch.NewLayerSet("app", "background", nil)
	asset := patch.NewAssetRemove("app", "tex")

	if got := TargetsOf(comp)[0].String(); got != "app/1#Position" {
		t.Fatalf("component target %q", got)
	}
	if got := TargetsOf(ent)[0].String(); got != "app/1" {
		t.Fatalf("entity target %q", got)
	}
	if got := TargetsOf(layer)[0].String(); got != "layer:background" {
		t.Fatalf("layer target %q", got)
	}
	if got := TargetsOf(asset)[0].String(); got != "asset:tex" {
		t.Fatalf("asset target %q", got)
	}
}

func TestConflictOnSameComponent(t *testing.T) {
	e := eref("app", 1)
	d := NewConflictDetector()
	a := txWith(1, "app", patch.NewComponentSet("app", e, "Position", map[string]any{"x": 1.0}))
	b := txWith(2, "app", patch.NewComponentUpdate("app", e, "Position", map[string]any{"x": 2.0}))

	d.Claim(a)
	if !d.HasConflict(b) {
		t.Fatalf("same-component overlap not detected")
	}
	got := d.Conflicts(b)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("Conflicts=%v want [1]", got)
	}
}

func TestNoConflictOnDifferentComponents(t *testing.T) {
	e := eref("app", 1)
	d := NewConflictDetector()
	d.Claim(txWith(1, "app", patch.NewComponentSet("app", e, "Position", map[string]any{"x": 1.0})))
	b := txWith(2, "app", patch.NewComponentSet("app", e, "Velocity", map[string]any{"dx": 1.0}))
	if d.HasConflict(b) {
		t.Fatalf("different components flagged as conflicting")
	}
}

func TestEntityLevelClaimDoesNotCoverComponents(t *testing.T) {
	// Entity destroy claims the entity target, component writes claim
	// (entity, component); the two levels are distinct keys, and the
	// single-threaded applicator makes the coarser check unnecessary.
	e := eref("app", 1)
	d := NewConflictDetector()
	d.Claim(txWith(1, "app", patch.NewEntityDestroy("app", e)))
	b := txWith(2, "app", patch.NewHierarchyClearParent("app", e))
	if !d.HasConflict(b) {
		t.Fatalf("entity-level overlap not detected")
	}
}

func TestReleaseClearsOnlyOwnClaims(t *testing.T) {
	e := eref("app", 1)
	d := NewConflictDetector()
	d.Claim(txWith(1, "app", patch.NewComponentSet("app", e, "Position", map[string]any{"x": 1.0})))
	d.Claim(txWith(2, "app", patch.NewLayerSet("app", "background", nil)))
	if d.ClaimCount() != 2 {
		t.Fatalf("ClaimCount=%d want 2", d.ClaimCount())
	}
	d.Release(1)
	if d.ClaimCount() != 1 {
		t.Fatalf("ClaimCount=%d want 1 after release", d.ClaimCount())
	}
	b := txWith(3, "app", patch.NewComponentSet("app", e, "Position", map[string]any{"x": 2.0}))
	if d.HasConflict(b) {
		t.Fatalf("released target still conflicts")
	}
}

func TestSelfClaimsAreNotConflicts(t *testing.T) {
	e := eref("app", 1)
	d := NewConflictDetector()
	a := txWith(1, "app", patch.NewComponentSet("app", e, "Position", map[string]any{"x": 1.0}))
	d.Claim(a)
	if d.HasConflict(a) {
		t.Fatalf("transaction conflicts with its own claims")
	}
	if got := d.Conflicts(a); len(got) != 0 {
		t.Fatalf("Conflicts against self = %v", got)
	}
}
