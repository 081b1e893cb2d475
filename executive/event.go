package executive

// Time is a simulated-time instant, local to the executive's own axis.
// Two executives' Time values are only meaningfully compared by domain code
// that has established a shared scale between them (the core never assumes
// one); TracedValue relies on exactly this comparability between an owner
// and its callers.
type Time float64

// EventID uniquely identifies a scheduled event within one run of an
// executive (see Executive.Reset, which bumps the run number and thereby
// invalidates prior ids).
type EventID uint64

// Kind distinguishes daemon events from synchronous ones. Daemon events
// never keep an executive's run loop alive on their own.
type Kind uint8

const (
	// Synchronous events keep the executive Running until served.
	Synchronous Kind = iota
	// Daemon events are served in FEL order like any other event, but their
	// pendency alone does not prevent the executive from becoming Finished.
	Daemon
)

func (k Kind) String() string {
	if k == Daemon {
		return "Daemon"
	}
	return "Synchronous"
}

// Callback is the opaque function invoked when a scheduled event fires.
// It receives the owning Executive (for re-scheduling, reading Now, etc.)
// and the userData supplied at RequestEvent time.
type Callback func(exec *Executive, userData any)

// immediatePriority is reserved for RequestImmediateEvent: it sorts before
// every priority above -1<<62 supplied via RequestEvent (RequestEvent does
// not reject lower values), under priority-ascending ordering (lower
// numeric priority fires first).
const immediatePriority = int64(-1 << 62)

// event is one FEL record. Ordering is (Time asc, Priority asc, seq asc).
type event struct {
	id       EventID
	when     Time
	priority int64
	seq      uint64
	cb       Callback
	userData any
	kind     Kind
	canceled bool
}

// Event is the read-only view of a scheduled event passed to lifecycle
// signal subscribers (EventAboutToFire, EventHasCompleted).
type Event struct {
	ID       EventID
	When     Time
	Priority int64
	Kind     Kind
	UserData any
}

func (e *event) snapshot() Event {
	return Event{ID: e.id, When: e.when, Priority: e.priority, Kind: e.kind, UserData: e.userData}
}

// EventHandle is returned by RequestEvent and friends. It supports
// cancellation and, for the minimal "detachable event" support spec.md §9
// permits omitting in full, a best-effort Join that waits for the event to
// have been served or canceled.
//
// EventHandle intentionally does not implement full cooperative-task
// suspension (the source's "detachable events"); spec.md §9 marks that
// feature as not required by the parallel core.
type EventHandle struct {
	ID   EventID
	exec *Executive
	done chan struct{}
}

// Cancel removes the pending event and releases Join. It is not an error to
// cancel an event that has already fired or was already canceled.
func (h EventHandle) Cancel() {
	if h.exec == nil {
		return
	}
	n, _ := h.exec.UnRequestEvents(func(ev Event) bool { return ev.ID == h.ID })
	if n > 0 && h.done != nil {
		close(h.done)
	}
}

// Join blocks until the event has fired or been canceled through Cancel, or
// ctxDone closes. Returns immediately if the event already completed.
func (h EventHandle) Join(ctxDone <-chan struct{}) {
	if h.done == nil {
		return
	}
	select {
	case <-h.done:
	case <-ctxDone:
	}
}
