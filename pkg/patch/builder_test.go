package patch

import (
	"errors"
	"testing"
)

func TestBuilderStampsSourceAndPriority(t *testing.T) {
	b := NewBuilder("app").SetPriority(5)
	if err := b.SetComponent(ref("app", 1), "Position", map[string]any{"x": 1.0}); err != nil {
		t.Fatalf("SetComponent: %v", err)
	}
	if err := b.Add(NewLayerSet("", "background", nil)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tx.Source != "app" || tx.State != StatePending {
		t.Fatalf("unexpected transaction header: %+v", tx)
	}
	for i, p := range tx.Patches {
		if p.Source != "app" {
			t.Fatalf("patch %d source %q not stamped", i, p.Source)
		}
		if p.Priority != 5 {
			t.Fatalf("patch %d priority %d not stamped", i, p.Priority)
		}
	}
}

func TestBuilderExplicitPrioritySurvives(t *testing.T) {
	b := NewBuilder("app").SetPriority(5)
	if err := b.Add(NewLayerSet("app", "background", nil).WithPriority(9)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tx, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tx.Patches[0].Priority != 9 {
		t.Fatalf("builder overwrote explicit priority: %d", tx.Patches[0].Priority)
	}
}

func TestBuilderSealedRejectsFurtherUse(t *testing.T) {
	b := NewBuilder("app")
	if err := b.SetLayer("background", nil); err != nil {
		t.Fatalf("SetLayer: %v", err)
	}
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := b.SetLayer("foreground", nil); !errors.Is(err, ErrBuilderSealed) {
		t.Fatalf("add after seal: %v", err)
	}
	if _, err := b.Build(); !errors.Is(err, ErrBuilderSealed) {
		t.Fatalf("second Build: %v", err)
	}
	if err := b.Cancel(); !errors.Is(err, ErrBuilderSealed) {
		t.Fatalf("cancel after seal: %v", err)
	}
}

func TestBuilderCancel(t *testing.T) {
	b := NewBuilder("app")
	if err := b.SetLayer("background", nil); err != nil {
		t.Fatalf("SetLayer: %v", err)
	}
	if err := b.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := b.SetLayer("foreground", nil); !errors.Is(err, ErrBuilderCancelled) {
		t.Fatalf("add after cancel: %v", err)
	}
	if _, err := b.Build(); !errors.Is(err, ErrBuilderCancelled) {
		t.Fatalf("build after cancel: %v", err)
	}
}

func TestBuilderDependencies(t *testing.T) {
	b := NewBuilder("app").DependsOn(3).DependsOn(4, 5)
	if err := b.CreateEntity(ref("app", 1), "probe"); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	tx, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []TransactionID{3, 4, 5}
	if len(tx.Dependencies) != len(want) {
		t.Fatalf("dependencies %v want %v", tx.Dependencies, want)
	}
	for i, id := range want {
		if tx.Dependencies[i] != id {
			t.Fatalf("dependencies %v want %v", tx.Dependencies, want)
		}
	}
}

func TestBuilderLen(t *testing.T) {
	b := NewBuilder("app")
	if b.Len() != 0 {
		t.Fatalf("fresh builder Len=%d", b.Len())
	}
	if err := b.RemoveComponent(ref("app", 1), "Position"); err != nil {
		t.Fatalf("RemoveComponent: %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("Len=%d want 1", b.Len())
	}
}
