package patch

// TransactionID is a globally unique, monotonically increasing transaction
// identifier. Ids are never reused within a kernel instance.
type TransactionID uint64

// TransactionState tracks a transaction through its lifecycle.
type TransactionState string

// Transaction lifecycle states. The only transitions are
// Building → Pending → Applying → {Committed | RolledBack} and
// Building/Pending → Cancelled.
const (
	// StateBuilding marks a transaction still accumulating patches.
	StateBuilding TransactionState = "building"
	// StatePending marks a validated transaction queued on the bus.
	StatePending TransactionState = "pending"
	// StateApplying marks a transaction handed to the applicator.
	StateApplying TransactionState = "applying"
	// StateCommitted marks a successfully applied transaction.
	StateCommitted TransactionState = "committed"
	// StateRolledBack marks a transaction whose application failed.
	StateRolledBack TransactionState = "rolled_back"
	// StateCancelled marks a transaction withdrawn before application.
	StateCancelled TransactionState = "cancelled"
)

// Transaction is an ordered, validated batch of patches from one namespace.
// All patches share the transaction's source unless the source is the kernel.
type Transaction struct {
	ID           TransactionID    `json:"id"`
	Source       NamespaceID      `json:"source"`
	State        TransactionState `json:"state"`
	Patches      []Patch          `json:"patches"`
	Dependencies []TransactionID  `json:"dependencies,omitempty"`
	CreatedFrame uint64           `json:"created_frame"`
	AppliedFrame uint64           `json:"applied_frame,omitempty"`
}

// DependenciesSatisfied reports whether every dependency id is present in the
// supplied committed set. Callers must pass a consistent snapshot of the
// commit log; the check itself never consults shared state.
func (t *Transaction) DependenciesSatisfied(committed map[TransactionID]struct{}) bool {
	for _, dep := range t.Dependencies {
		if _, ok := committed[dep]; !ok {
			return false
		}
	}
	return true
}

// MaxPriority returns the highest patch priority in the transaction, used to
// order ready transactions within a frame. Empty transactions rank lowest.
func (t *Transaction) MaxPriority() int32 {
	if len(t.Patches) == 0 {
		return -1 << 31
	}
	max := t.Patches[0].Priority
	for _, p := range t.Patches[1:] {
		if p.Priority > max {
			max = p.Priority
		}
	}
	return max
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() Transaction {
	cp := *t
	cp.Patches = make([]Patch, len(t.Patches))
	for i, p := range t.Patches {
		cp.Patches[i] = p.Clone()
	}
	cp.Dependencies = append([]TransactionID(nil), t.Dependencies...)
	return cp
}
