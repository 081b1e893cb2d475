// Package executive implements the single-threaded discrete-event
// simulation engine described in spec.md §4.1: a future-event list, a
// simulated clock, a run loop on its own goroutine, event priorities and
// daemon events, lifecycle signals, and rollback.
//
// Multiple Executives cooperate through a Coordinator (see package
// coexecutor) and through TracedValues (see package tracedvalue); an
// Executive used on its own, with no coordinator, is a complete standalone
// DES engine.
package executive

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"
)

// Executive is a single-threaded DES engine driving one simulated-time axis
// on its own goroutine. The zero value is not usable; construct with New.
type Executive struct {
	id       string
	parallel bool
	log      Logger

	coordMu     sync.RWMutex
	coordinator Coordinator

	state  *atomicState
	thread threadID
	ing    ingress

	mu          sync.Mutex
	cond        *sync.Cond
	fel         fel
	now         Time
	startTime   Time
	nextSeq     uint64
	nextEventID uint64
	runNumber   uint64
	holdCount   int
	parked      bool

	sig *signals

	doneMu   sync.Mutex
	done     chan struct{}
	doneOnce *sync.Once
}

// New constructs an idle Executive. See Option for configuration knobs.
func New(opts ...Option) *Executive {
	cfg := resolveOptions(opts)
	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}
	e := &Executive{
		id:          id,
		parallel:    cfg.parallel,
		log:         cfg.logger,
		coordinator: cfg.coordinator,
		state:       newAtomicState(Idle),
		startTime:   cfg.startTime,
		now:         cfg.startTime,
		sig:         newSignals(),
		done:        make(chan struct{}),
		doneOnce:    new(sync.Once),
	}
	e.cond = sync.NewCond(&e.mu)
	e.closeDone() // never started yet; Done() should not block before Start
	return e
}

// ID returns this executive's stable identity.
func (e *Executive) ID() string { return e.id }

// IsParallel reports whether this executive was constructed with
// WithParallel(true), i.e. whether its traced values accept cross-executive
// access at all.
func (e *Executive) IsParallel() bool { return e.parallel }

// State returns the current RunState. Safe from any goroutine.
func (e *Executive) State() RunState { return e.state.Load() }

// Now returns the current simulated clock value. Safe from any goroutine,
// though a concurrent call on a running executive may observe a value that
// is about to change.
func (e *Executive) Now() Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// RunNumber returns the number of times Reset has completed.
func (e *Executive) RunNumber() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runNumber
}

// Done returns a channel closed when the run loop has exited, whether by
// Stop, Finished, Abort, or Reset. Closed initially, before the first Start.
func (e *Executive) Done() <-chan struct{} {
	e.doneMu.Lock()
	defer e.doneMu.Unlock()
	return e.done
}

// Coordinator returns the co-executor this Executive was registered with, or
// nil.
func (e *Executive) Coordinator() Coordinator {
	e.coordMu.RLock()
	defer e.coordMu.RUnlock()
	return e.coordinator
}

// SetCoordinator attaches or replaces the co-executor. Intended to be called
// by the co-executor itself during CoStart; safe from any goroutine.
func (e *Executive) SetCoordinator(c Coordinator) {
	e.coordMu.Lock()
	e.coordinator = c
	e.coordMu.Unlock()
}

// Subscribe registers fn for kind. fn runs synchronously on the goroutine
// that raises the signal: the run-loop goroutine for Started, Stopped,
// Finished, ClockAboutToChange, the event signals and ExecutiveErrored; the
// goroutine calling Pause, Resume or Reset for Paused, Resumed and Reset;
// the goroutine calling Abort for Aborted when no run loop is running; and,
// for Rolledback, the goroutine performing the rollback, which for a
// rollback initiated by a peer is that peer, holding this executive parked.
func (e *Executive) Subscribe(kind SignalKind, fn func(Signal)) SubscriptionID {
	return e.sig.Subscribe(kind, fn)
}

// SubscribeOnce is Subscribe, auto-removed after the first invocation.
func (e *Executive) SubscribeOnce(kind SignalKind, fn func(Signal)) SubscriptionID {
	return e.sig.SubscribeOnce(kind, fn)
}

// Unsubscribe removes a listener registered via Subscribe/SubscribeOnce.
func (e *Executive) Unsubscribe(kind SignalKind, id SubscriptionID) {
	e.sig.Unsubscribe(kind, id)
}

// SetStartTime sets the executive's initial clock value. Must be called
// before Start.
func (e *Executive) SetStartTime(t Time) error {
	if e.state.Load() != Idle {
		return &InvalidStateError{State: e.state.Load(), Op: "SetStartTime", Message: "SetStartTime must precede Start"}
	}
	e.mu.Lock()
	e.startTime = t
	e.now = t
	e.mu.Unlock()
	return nil
}

// Start transitions Idle -> Running and launches the run loop on a new
// goroutine.
func (e *Executive) Start() error {
	if !e.state.TryTransition(Idle, Running) {
		return &InvalidStateError{State: e.state.Load(), Op: "Start"}
	}
	e.doneMu.Lock()
	e.done = make(chan struct{})
	e.doneOnce = new(sync.Once)
	e.doneMu.Unlock()

	go func() {
		e.thread.set()
		e.mu.Lock()
		firstEver := e.runNumber == 0
		e.mu.Unlock()
		if firstEver {
			e.sig.dispatch(e, SignalStartedSingleShot, nil)
		}
		e.sig.dispatch(e, SignalStarted, nil)
		logTransition(e.log, e, "Start", Idle, Running)
		e.runLoop()
	}()
	return nil
}

// Stop requests an orderly shutdown: the in-flight event (if any) finishes,
// then the run loop exits.
func (e *Executive) Stop() error {
	st := e.state.Load()
	if st != Running && st != Paused {
		return &InvalidStateError{State: st, Op: "Stop"}
	}
	e.state.Store(Stopped)
	e.wake()
	return nil
}

// Pause parks the run loop between events until Resume.
func (e *Executive) Pause() error {
	if !e.state.TryTransition(Running, Paused) {
		return &InvalidStateError{State: e.state.Load(), Op: "Pause"}
	}
	e.wake()
	e.sig.dispatch(e, SignalPaused, nil)
	logTransition(e.log, e, "Pause", Running, Paused)
	return nil
}

// Resume releases a paused run loop.
func (e *Executive) Resume() error {
	if !e.state.TryTransition(Paused, Running) {
		return &InvalidStateError{State: e.state.Load(), Op: "Resume"}
	}
	e.wake()
	e.sig.dispatch(e, SignalResumed, nil)
	logTransition(e.log, e, "Resume", Paused, Running)
	return nil
}

// Abort forces the run loop to exit at the next safe point, from any state.
func (e *Executive) Abort() {
	old := e.state.Load()
	e.state.Store(Aborted)
	e.wake()
	if old == Idle {
		// no goroutine is running to notice the transition; finalize inline.
		e.finalize(Aborted)
	}
}

// Reset returns a Running or Paused executive to Idle: clears the FEL,
// restores Now to the start time, and bumps the run number (which
// invalidates outstanding EventIDs from the prior run; see UnRequestEvent).
// May be called from any goroutine.
func (e *Executive) Reset() error {
	if e.thread.isCurrent() {
		return e.resetLocked()
	}
	if st := e.state.Load(); st != Running && st != Paused {
		return &InvalidStateError{State: st, Op: "Reset"}
	}
	e.Hold()
	defer e.Release()
	return e.resetLocked()
}

func (e *Executive) resetLocked() error {
	e.mu.Lock()
	st := e.state.Load()
	if st != Running && st != Paused {
		e.mu.Unlock()
		return &InvalidStateError{State: st, Op: "Reset"}
	}
	if !e.state.TryTransition(st, Idle) {
		e.mu.Unlock()
		return &InvalidStateError{State: e.state.Load(), Op: "Reset"}
	}
	e.fel = nil
	e.now = e.startTime
	e.runNumber++
	e.nextEventID = 0
	e.nextSeq = 0
	e.cond.Broadcast()
	e.mu.Unlock()

	e.sig.dispatch(e, SignalReset, nil)
	logTransition(e.log, e, "Reset", st, Idle)
	return nil
}

// RequestEvent inserts a new event into the FEL. when must be >= Now at
// insertion time (inserting exactly at Now is allowed). May be called from
// any goroutine; if not called from the executive's own run-loop goroutine,
// the request is marshalled onto it and this call blocks for the result.
func (e *Executive) RequestEvent(cb Callback, when Time, priority int64, userData any, kind Kind) (EventID, error) {
	op := func() (EventID, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if when < e.now {
			return 0, &InvalidScheduleError{Now: e.now, When: when}
		}
		id := e.newEventIDLocked()
		heap.Push(&e.fel, &event{
			id: id, when: when, priority: priority, seq: e.nextSeqLocked(),
			cb: cb, userData: userData, kind: kind,
		})
		return id, nil
	}
	return callMutating(e, op)
}

// RequestEventHandle is RequestEvent, but returns an EventHandle whose Join
// resolves once the callback has run (or the event was canceled first
// through the handle's Cancel).
func (e *Executive) RequestEventHandle(cb Callback, when Time, priority int64, userData any, kind Kind) (EventHandle, error) {
	done := make(chan struct{})
	wrapped := func(exec *Executive, userData any) {
		defer close(done)
		cb(exec, userData)
	}
	id, err := e.RequestEvent(wrapped, when, priority, userData, kind)
	if err != nil {
		close(done)
		return EventHandle{}, err
	}
	return EventHandle{ID: id, exec: e, done: done}, nil
}

// RequestImmediateEvent enqueues cb at Now, ordered ahead of every other
// pending event at Now.
func (e *Executive) RequestImmediateEvent(cb Callback, userData any) (EventID, error) {
	op := func() (EventID, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		id := e.newEventIDLocked()
		heap.Push(&e.fel, &event{
			id: id, when: e.now, priority: immediatePriority, seq: e.nextSeqLocked(),
			cb: cb, userData: userData, kind: Synchronous,
		})
		return id, nil
	}
	return callMutating(e, op)
}

// UnRequestEvent removes a pending event. Not an error if id is absent or
// already fired. An id from a prior run (post-Reset) is reported as
// InvalidState, per spec.md's run-number supplement.
func (e *Executive) UnRequestEvent(id EventID) error {
	op := func() (struct{}, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if epochOf(id) != e.runNumber {
			return struct{}{}, &InvalidStateError{State: e.state.Load(), Op: "UnRequestEvent", Message: "event id belongs to a prior run"}
		}
		e.fel.removeByID(id)
		return struct{}{}, nil
	}
	_, err := callMutating(e, op)
	return err
}

// UnRequestEvents removes every pending event for which selector returns
// true, returning how many were removed.
func (e *Executive) UnRequestEvents(selector func(Event) bool) (int, error) {
	op := func() (int, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		removed := e.fel.removeMatching(selector)
		return len(removed), nil
	}
	return callMutating(e, op)
}

// callMutating runs op directly if the caller is already on this
// executive's run-loop goroutine, otherwise marshals it through the ingress
// queue and blocks for the result.
//
// If the run loop exits (Stop/Finished/Abort/Reset) before draining the
// job, nobody else will ever drain the ingress queue again, so the caller
// drains it itself once Done fires — safe, since the loop goroutine is then
// provably gone and the ingress mutex still serializes concurrent drainers.
func callMutating[T any](e *Executive, op func() (T, error)) (T, error) {
	if e.thread.isCurrent() {
		return op()
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	e.ing.push(func() {
		v, err := op()
		ch <- result{v, err}
	})
	e.wake()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-e.Done():
		for _, job := range e.ing.drain() {
			job()
		}
		// Our job was either run just now, or drained by a concurrent caller
		// racing the same Done close, which runs it and sends its result
		// along ch; either way the result arrives on ch.
		r := <-ch
		return r.v, r.err
	}
}

func epochOf(id EventID) uint64 { return uint64(id) >> 32 }

func (e *Executive) newEventIDLocked() EventID {
	e.nextEventID++
	return EventID(e.runNumber)<<32 | EventID(e.nextEventID)
}

func (e *Executive) nextSeqLocked() uint64 {
	e.nextSeq++
	return e.nextSeq
}

// wake broadcasts cond, so the run loop notices a state change, a new
// ingress job, or a hold/release, even if it is currently idle or paused.
func (e *Executive) wake() {
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Hold blocks until the run loop is confirmed parked at a safe point
// (between events), and keeps it parked until a matching Release. Safe to
// call from any goroutine, including nested holds from distinct callers.
func (e *Executive) Hold() {
	e.mu.Lock()
	e.holdCount++
	e.mu.Unlock()
	e.wake()

	e.mu.Lock()
	for !e.parked && !e.state.Load().IsTerminal() {
		e.cond.Wait()
	}
	e.mu.Unlock()
}

// Release undoes one Hold.
func (e *Executive) Release() {
	e.mu.Lock()
	if e.holdCount > 0 {
		e.holdCount--
	}
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Rollback performs the §4.1 rollback algorithm: clamps Now back to
// targetTime (no earlier than the start time) and publishes Rolledback, so
// every traced value owned by this executive truncates its history.
//
// The caller must either be this executive's own run-loop goroutine, or
// must have already called Hold (and will Release afterward): Rollback does
// not itself marshal onto the owner's goroutine, since the FEL/clock are
// guarded by a plain mutex that is safe to take from a confirmed-parked
// peer. InitiateRollback enforces this precondition for callers that don't
// already know which case they are in.
func (e *Executive) Rollback(targetTime Time, onRollback func()) error {
	e.mu.Lock()
	if targetTime >= e.now {
		e.mu.Unlock()
		return nil
	}
	if targetTime < e.startTime {
		targetTime = e.startTime
	}
	e.now = targetTime
	e.mu.Unlock()

	e.sig.dispatch(e, SignalRolledback, targetTime)
	if onRollback != nil {
		onRollback()
	}
	logRollback(e.log, e, targetTime)
	return nil
}

// InitiateRollback is the public entry point for §4.1 rollback: if called
// from this executive's own goroutine it rolls back directly; otherwise it
// asks the Coordinator to acquire a safe-point hold on this executive first.
func (e *Executive) InitiateRollback(targetTime Time, onRollback func()) error {
	if targetTime >= e.Now() {
		return nil // not in the past: a no-op, with or without a coordinator
	}
	if e.thread.isCurrent() {
		return e.Rollback(targetTime, onRollback)
	}
	c := e.Coordinator()
	if c == nil {
		return ErrNoCoordinator
	}
	return c.InitiateRollback(e, targetTime, onRollback)
}

// runLoop is the single goroutine that owns this executive's FEL and clock
// for its entire lifetime between Start and exit (Stop/Finished/Aborted, or
// Idle after Reset, which ends this goroutine so a later Start can spawn a
// fresh one).
func (e *Executive) runLoop() {
	for {
		e.mu.Lock()
		for e.holdCount > 0 || e.state.Load() == Paused {
			e.parked = true
			e.cond.Broadcast()
			e.cond.Wait()
		}
		e.parked = false

		st := e.state.Load()
		if st == Idle {
			e.mu.Unlock()
			e.closeDone()
			return
		}
		if st == Stopped || st == Finished || st == Aborted {
			e.mu.Unlock()
			e.finalize(st)
			return
		}
		e.mu.Unlock()

		for _, job := range e.ing.drain() {
			job()
		}

		e.mu.Lock()
		if e.holdCount > 0 || e.state.Load() != Running {
			e.mu.Unlock()
			continue
		}
		next := e.fel.peek()
		if next == nil || (next.kind == Daemon && e.fel.countLiveSynchronous(0, false) == 0) {
			if e.state.TryTransition(Running, Finished) {
				e.mu.Unlock()
				e.finalize(Finished)
				return
			}
			e.cond.Wait()
			e.mu.Unlock()
			continue
		}
		ev := heap.Pop(&e.fel).(*event)
		e.mu.Unlock()

		e.serveEvent(ev)
	}
}

func (e *Executive) serveEvent(ev *event) {
	newTime := ev.when

	if c := e.Coordinator(); c != nil {
		c.FireRendezvousUpTo(e, newTime)
	}

	e.mu.Lock()
	changed := newTime != e.now
	e.mu.Unlock()
	if changed {
		e.sig.dispatch(e, SignalClockAboutToChange, newTime)
	}
	e.mu.Lock()
	e.now = newTime
	e.mu.Unlock()

	if ev.canceled {
		return
	}

	snap := ev.snapshot()
	e.sig.dispatch(e, SignalEventAboutToFire, snap)
	logEventFiring(e.log, e, snap)

	err := e.invoke(ev)

	e.sig.dispatch(e, SignalEventHasCompleted, snap)
	logEventCompleted(e.log, e, snap, err)
	if err != nil {
		e.sig.dispatch(e, SignalExecutiveErrored, err)
		logError(e.log, e, err)
	}

	if c := e.Coordinator(); c != nil {
		c.Pace(e)
	}
}

func (e *Executive) invoke(ev *event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EventCallbackFailedError{EventID: ev.id, Cause: r}
		}
	}()
	ev.cb(e, ev.userData)
	return nil
}

func (e *Executive) finalize(st RunState) {
	var kind SignalKind
	switch st {
	case Stopped:
		kind = SignalStopped
	case Finished:
		kind = SignalFinished
	case Aborted:
		kind = SignalAborted
	}
	e.sig.dispatch(e, kind, nil)
	logTransition(e.log, e, "finalize", Running, st)
	e.closeDone()
}

func (e *Executive) closeDone() {
	e.doneMu.Lock()
	once := e.doneOnce
	e.doneMu.Unlock()
	once.Do(func() {
		e.doneMu.Lock()
		close(e.done)
		e.doneMu.Unlock()
	})
}
