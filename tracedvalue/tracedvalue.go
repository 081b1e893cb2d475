// Package tracedvalue implements spec.md §4.2: a time-indexed log of a
// single value owned by one executive, readable and writable from any
// executive. It is the only sanctioned mechanism for cross-executive data
// sharing in this core (spec.md §5's shared-resource policy).
package tracedvalue

import (
	"sort"
	"sync"

	"github.com/SageSimulations/Sage-sub008/executive"
)

// entry is one historical record: value as of Time, inclusive, until the
// next entry's Time (or forever, for the tail).
type entry[V any] struct {
	when  executive.Time
	value V
}

// TracedValue is a time-versioned variable owned by exactly one Executive.
// The zero value is not usable; construct with New.
type TracedValue[V any] struct {
	owner *executive.Executive

	mu      sync.Mutex
	history []entry[V]

	rollbackSub executive.SubscriptionID
}

// New creates a TracedValue owned by owner, with initial. The history is
// never empty after construction, per spec.md §3.
func New[V any](owner *executive.Executive, initial V) *TracedValue[V] {
	tv := &TracedValue[V]{
		owner:   owner,
		history: []entry[V]{{when: owner.Now(), value: initial}},
	}
	tv.rollbackSub = owner.Subscribe(executive.SignalRolledback, tv.onRolledback)
	return tv
}

// Close unsubscribes from the owner's lifecycle signals. Not required for
// correctness; until Close, the owner's Rolledback subscription keeps a
// reference to this TracedValue and a listener slot in use.
func (tv *TracedValue[V]) Close() {
	tv.owner.Unsubscribe(executive.SignalRolledback, tv.rollbackSub)
}

// onRolledback implements step 5 of §4.1 rollback: truncate every entry
// with when > targetTime. Dispatched synchronously by Executive.Rollback, on
// whichever goroutine performs it: the owner's own run-loop goroutine, or a
// peer that holds the owner parked at a safe point.
func (tv *TracedValue[V]) onRolledback(sig executive.Signal) {
	targetTime := sig.Payload.(executive.Time)
	tv.mu.Lock()
	defer tv.mu.Unlock()
	i := sort.Search(len(tv.history), func(i int) bool { return tv.history[i].when > targetTime })
	if i < len(tv.history) {
		tv.history = tv.history[:i]
	}
	if len(tv.history) == 0 {
		// Never actually empty in practice (the initial entry's when is the
		// start time, and rollback clamps no earlier than start time), but
		// guard against it defensively rather than panicking on tail access.
		tv.history = append(tv.history, entry[V]{when: targetTime})
	}
}

// Get reads the value as observed by fromExec. See spec.md §4.2 for the full
// read decision matrix.
func (tv *TracedValue[V]) Get(fromExec *executive.Executive) (V, error) {
	if fromExec == tv.owner {
		tv.mu.Lock()
		defer tv.mu.Unlock()
		return tv.tailLocked(), nil
	}

	if !tv.owner.IsParallel() {
		var zero V
		return zero, &executive.IllegalCrossExecCallError{Owner: tv.owner.ID(), Caller: fromExec.ID()}
	}

	callerNow := fromExec.Now()
	ownerNow := tv.owner.Now()

	if callerNow <= ownerNow {
		tv.mu.Lock()
		defer tv.mu.Unlock()
		return tv.historicalLocked(callerNow), nil
	}

	// Future read: rendezvous with the owner via the co-executor.
	coord := tv.owner.Coordinator()
	if coord == nil {
		var zero V
		return zero, executive.ErrNoCoordinator
	}
	var result V
	err := coord.WakeCallerAt(tv.owner, fromExec, callerNow, func() {
		tv.mu.Lock()
		result = tv.historicalLocked(callerNow)
		tv.mu.Unlock()
	})
	return result, err
}

// Set writes value as observed by fromExec. See spec.md §4.2 for the full
// write decision matrix.
func (tv *TracedValue[V]) Set(value V, fromExec *executive.Executive) error {
	if fromExec == tv.owner {
		tv.localSet(value)
		return nil
	}

	if !tv.owner.IsParallel() {
		return &executive.IllegalCrossExecCallError{Owner: tv.owner.ID(), Caller: fromExec.ID()}
	}

	callerNow := fromExec.Now()
	ownerNow := tv.owner.Now()

	switch {
	case callerNow < ownerNow:
		// Writing into the owner's past: roll the owner back, then apply
		// the write as the onRollback continuation.
		return tv.owner.InitiateRollback(callerNow, func() { tv.localSet(value) })

	case callerNow == ownerNow:
		// Same instant: delegate via an immediate event on the owner.
		// §9: the final value is undefined if another thread also writes at
		// this instant; no attempt is made to order concurrent same-instant
		// writers beyond what the owner's own FEL ordering provides.
		_, err := tv.owner.RequestImmediateEvent(func(*executive.Executive, any) {
			tv.localSet(value)
		}, nil)
		return err

	default: // callerNow > ownerNow
		_, err := tv.owner.RequestEvent(func(*executive.Executive, any) {
			tv.localSet(value)
		}, callerNow, 0, nil, executive.Synchronous)
		return err
	}
}

// localSet implements the owner-thread write rule from §4.2: idempotent
// skip, tail overwrite at the same instant, or append.
func (tv *TracedValue[V]) localSet(value V) {
	now := tv.owner.Now()
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tail := &tv.history[len(tv.history)-1]
	if equalAny(tail.value, value) {
		return
	}
	if tail.when == now {
		tail.value = value
		return
	}
	tv.history = append(tv.history, entry[V]{when: now, value: value})
}

// historicalLocked returns the value of the latest entry with when <= at,
// or the initial value if at predates the first entry. Callers must hold
// tv.mu.
func (tv *TracedValue[V]) historicalLocked(at executive.Time) V {
	// Linear scan below ~15 entries per spec.md §4.2; binary search above.
	if len(tv.history) <= 15 {
		best := tv.history[0].value
		for _, e := range tv.history {
			if e.when > at {
				break
			}
			best = e.value
		}
		return best
	}
	i := sort.Search(len(tv.history), func(i int) bool { return tv.history[i].when > at })
	if i == 0 {
		return tv.history[0].value
	}
	return tv.history[i-1].value
}

func (tv *TracedValue[V]) tailLocked() V {
	return tv.history[len(tv.history)-1].value
}

// equalAny reports a == b for any V, via the any-typed comparison, which
// panics for non-comparable underlying types (slices, maps, funcs). That
// case is treated as never-equal, which only disables the idempotent-skip
// optimization for such V — every Set still appends or overwrites correctly.
func equalAny[V any](a, b V) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return any(a) == any(b)
}
