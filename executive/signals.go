package executive

import "sync"

// SignalKind enumerates the lifecycle signals an Executive raises, per
// spec.md §6. Executive.Subscribe lists which goroutine raises each one.
type SignalKind uint8

const (
	SignalStartedSingleShot SignalKind = iota
	SignalStarted
	SignalStopped
	SignalFinished
	SignalReset
	SignalPaused
	SignalResumed
	SignalAborted
	SignalClockAboutToChange
	SignalEventAboutToFire
	SignalEventHasCompleted
	SignalRolledback
	SignalExecutiveErrored
)

func (k SignalKind) String() string {
	switch k {
	case SignalStartedSingleShot:
		return "StartedSingleShot"
	case SignalStarted:
		return "Started"
	case SignalStopped:
		return "Stopped"
	case SignalFinished:
		return "Finished"
	case SignalReset:
		return "Reset"
	case SignalPaused:
		return "Paused"
	case SignalResumed:
		return "Resumed"
	case SignalAborted:
		return "Aborted"
	case SignalClockAboutToChange:
		return "ClockAboutToChange"
	case SignalEventAboutToFire:
		return "EventAboutToFire"
	case SignalEventHasCompleted:
		return "EventHasCompleted"
	case SignalRolledback:
		return "Rolledback"
	case SignalExecutiveErrored:
		return "ExecutiveErrored"
	default:
		return "Unknown"
	}
}

// Signal is dispatched to subscribers of a SignalKind. Payload is one of:
// Time (ClockAboutToChange, Rolledback), Event (EventAboutToFire,
// EventHasCompleted), error (ExecutiveErrored), or nil for the bare
// life-cycle transitions.
type Signal struct {
	Kind     SignalKind
	Executive *Executive
	Payload  any
}

// SubscriptionID identifies a registered listener for removal, following the
// teacher's EventTarget (eventloop/eventtarget.go), which uses an id rather
// than comparing func values (Go funcs aren't comparable).
type SubscriptionID uint64

type signalListener struct {
	id       SubscriptionID
	fn       func(Signal)
	once     bool
}

// signals is a minimal DOM-EventTarget-style dispatcher, scoped to the fixed
// set of SignalKind values an Executive raises, rather than arbitrary string
// event types.
type signals struct {
	mu        sync.RWMutex
	listeners map[SignalKind][]signalListener
	nextID    SubscriptionID
}

func newSignals() *signals {
	return &signals{listeners: make(map[SignalKind][]signalListener), nextID: 1}
}

// Subscribe registers fn to be invoked, synchronously on the goroutine that
// raises kind (see Executive.Subscribe), whenever kind is raised.
func (s *signals) Subscribe(kind SignalKind, fn func(Signal)) SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[kind] = append(s.listeners[kind], signalListener{id: id, fn: fn})
	return id
}

// SubscribeOnce registers fn to fire at most once, then auto-unsubscribe.
func (s *signals) SubscribeOnce(kind SignalKind, fn func(Signal)) SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[kind] = append(s.listeners[kind], signalListener{id: id, fn: fn, once: true})
	return id
}

// Unsubscribe removes a previously registered listener.
func (s *signals) Unsubscribe(kind SignalKind, id SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.listeners[kind]
	for i, e := range entries {
		if e.id == id {
			s.listeners[kind] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// dispatch fires kind with the given payload, running every listener on the
// calling goroutine. Most signals are dispatched from the executive's own
// run-loop goroutine; Executive.Subscribe lists the ones that are not.
func (s *signals) dispatch(exec *Executive, kind SignalKind, payload any) {
	s.mu.RLock()
	entries := append([]signalListener(nil), s.listeners[kind]...)
	s.mu.RUnlock()

	if len(entries) == 0 {
		return
	}

	sig := Signal{Kind: kind, Executive: exec, Payload: payload}
	var toRemove []SubscriptionID
	for _, e := range entries {
		func() {
			defer func() { _ = recover() }()
			e.fn(sig)
		}()
		if e.once {
			toRemove = append(toRemove, e.id)
		}
	}
	if len(toRemove) != 0 {
		s.mu.Lock()
		for _, id := range toRemove {
			entries := s.listeners[kind]
			for i, e := range entries {
				if e.id == id {
					s.listeners[kind] = append(entries[:i], entries[i+1:]...)
					break
				}
			}
		}
		s.mu.Unlock()
	}
}
