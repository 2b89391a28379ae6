package patch

import "errors"

// ErrBuilderSealed is returned when patches are added to a builder after it
// produced its transaction. Adding after submission is a programming error
// and fails fast rather than being silently dropped.
var ErrBuilderSealed = errors.New("transaction builder already sealed")

// ErrBuilderCancelled is returned when a cancelled builder is used.
var ErrBuilderCancelled = errors.New("transaction builder cancelled")

// Builder accumulates patches for one transaction. It is not safe for
// concurrent use; each producer goroutine owns its builders.
type Builder struct {
	source    NamespaceID
	priority  int32
	patches   []Patch
	deps      []TransactionID
	sealed    bool
	cancelled bool
}

// NewBuilder starts a transaction for the given source namespace.
func NewBuilder(source NamespaceID) *Builder {
	return &Builder{source: source}
}

// SetPriority sets the priority stamped on subsequently added patches.
func (b *Builder) SetPriority(priority int32) *Builder {
	b.priority = priority
	return b
}

// DependsOn records transaction ids that must commit before this one is
// eligible to apply.
func (b *Builder) DependsOn(ids ...TransactionID) *Builder {
	b.deps = append(b.deps, ids...)
	return b
}

// Add appends a patch, stamping the builder's source and default priority
// when the patch carries none.
func (b *Builder) Add(p Patch) error {
	if b.sealed {
		return ErrBuilderSealed
	}
	if b.cancelled {
		return ErrBuilderCancelled
	}
	if p.Source == "" {
		p.Source = b.source
	}
	if p.Priority == 0 {
		p.Priority = b.priority
	}
	b.patches = append(b.patches, p)
	return nil
}

// CreateEntity appends an entity creation patch.
func (b *Builder) CreateEntity(ref EntityRef, archetype string) error {
	return b.Add(NewEntityCreate(b.source, ref, archetype))
}

// DestroyEntity appends an entity destruction patch.
func (b *Builder) DestroyEntity(ref EntityRef) error {
	return b.Add(NewEntityDestroy(b.source, ref))
}

// SetComponent appends a component set patch.
func (b *Builder) SetComponent(entity EntityRef, name string, value map[string]any) error {
	return b.Add(NewComponentSet(b.source, entity, name, value))
}

// UpdateComponent appends a component field-merge patch.
func (b *Builder) UpdateComponent(entity EntityRef, name string, fields map[string]any) error {
	return b.Add(NewComponentUpdate(b.source, entity, name, fields))
}

// RemoveComponent appends a component removal patch.
func (b *Builder) RemoveComponent(entity EntityRef, name string) error {
	return b.Add(NewComponentRemove(b.source, entity, name))
}

// SetLayer appends a layer set patch.
func (b *Builder) SetLayer(id string, descriptor map[string]any) error {
	return b.Add(NewLayerSet(b.source, id, descriptor))
}

// RemoveLayer appends a layer removal patch.
func (b *Builder) RemoveLayer(id string) error {
	return b.Add(NewLayerRemove(b.source, id))
}

// RegisterAsset appends an asset registration patch.
func (b *Builder) RegisterAsset(id string, descriptor map[string]any, blobKey string) error {
	return b.Add(NewAssetRegister(b.source, id, descriptor, blobKey))
}

// RemoveAsset appends an asset removal patch.
func (b *Builder) RemoveAsset(id string) error {
	return b.Add(NewAssetRemove(b.source, id))
}

// SetParent appends a reparenting patch.
func (b *Builder) SetParent(child, parent EntityRef) error {
	return b.Add(NewHierarchySetParent(b.source, child, parent))
}

// Cancel withdraws the builder. Only a building transaction can be
// cancelled; once sealed the transaction is on the bus and out of the
// producer's hands.
func (b *Builder) Cancel() error {
	if b.sealed {
		return ErrBuilderSealed
	}
	b.cancelled = true
	return nil
}

// Len returns the number of accumulated patches.
func (b *Builder) Len() int { return len(b.patches) }

// Build seals the builder and returns the transaction in Pending state with
// its id and created-frame unassigned; the bus fills both at submission.
func (b *Builder) Build() (Transaction, error) {
	if b.cancelled {
		return Transaction{}, ErrBuilderCancelled
	}
	if b.sealed {
		return Transaction{}, ErrBuilderSealed
	}
	b.sealed = true
	return Transaction{
		Source:       b.source,
		State:        StatePending,
		Patches:      append([]Patch(nil), b.patches...),
		Dependencies: append([]TransactionID(nil), b.deps...),
	}, nil
}
