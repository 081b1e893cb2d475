// Package coexecutor implements spec.md §4.3: starting a group of
// executives together, arbitrating cross-executive rendezvous, detecting
// global termination, and resolving two-party deadlocks between blocked
// future reads.
package coexecutor

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/SageSimulations/Sage-sub008/executive"
	"github.com/joeycumines/go-catrate"
)

// rendezvous is one registered WakeCallerAt request: callerID is blocked on
// ownerID's clock reaching target.
type rendezvous struct {
	callerID string
	ownerID  string
	target   executive.Time
	cont     func()
	done     chan error
}

// CoExecutor implements executive.Coordinator for a fixed group of member
// executives, per spec.md §4.3.
type CoExecutor struct {
	log Logger

	paceWindow float64
	pacer      *catrate.Limiter

	mu        sync.Mutex
	members   map[string]*executive.Executive
	pending   map[string][]*rendezvous // keyed by ownerID
	blockedOn map[string]string        // callerID -> ownerID it is blocked on
	finished  map[string]bool
}

// New constructs a CoExecutor with no members yet; CoStart registers them.
func New(opts ...Option) *CoExecutor {
	cfg := resolveOptions(opts)
	return &CoExecutor{
		log:        cfg.logger,
		paceWindow: cfg.paceWindow,
		pacer:      catrate.NewLimiter(cfg.paceRates),
		members:    make(map[string]*executive.Executive),
		pending:    make(map[string][]*rendezvous),
		blockedOn:  make(map[string]string),
		finished:   make(map[string]bool),
	}
}

// CoStart registers execs as members, starts each on its own goroutine, and
// blocks until every one of them has reached Finished, Stopped, or Aborted —
// which happens no later than terminateAt, since CoStart schedules a Stop on
// each member at that time.
func (co *CoExecutor) CoStart(execs []*executive.Executive, terminateAt executive.Time) error {
	// Validate terminateAt against every member's start time up front, before
	// starting any of them: scheduling the Stop event below would otherwise
	// fail for a member whose startTime is already past terminateAt, which
	// (if caught mid-loop, after other members are already running) would
	// leave those members running with nothing left to stop them.
	for _, e := range execs {
		if terminateAt < e.Now() {
			return &executive.InvalidScheduleError{Now: e.Now(), When: terminateAt}
		}
	}

	co.mu.Lock()
	for _, e := range execs {
		co.members[e.ID()] = e
		e.SetCoordinator(co)
	}
	co.mu.Unlock()

	for _, e := range execs {
		if err := e.Start(); err != nil {
			return err
		}
		// Done is taken only after Start: before it, Done is the closed
		// channel of a never-started executive.
		e, done := e, e.Done()
		go func() {
			<-done
			co.onTerminated(e)
		}()
	}

	// Stop sorts last among same-instant events (maximal priority), so an
	// event scheduled exactly at terminateAt still fires first, per
	// spec.md §8's boundary-behavior property.
	for _, e := range execs {
		if _, err := e.RequestEvent(func(exec *executive.Executive, _ any) {
			_ = exec.Stop()
		}, terminateAt, math.MaxInt64, nil, executive.Daemon); err != nil {
			return err
		}
	}

	for _, e := range execs {
		<-e.Done()
	}
	return nil
}

// FireRendezvousUpTo runs every rendezvous registered against owner whose
// target time is <= newTime, in increasing target-time order, synchronously
// on the calling goroutine (owner's own run-loop goroutine).
func (co *CoExecutor) FireRendezvousUpTo(owner *executive.Executive, newTime executive.Time) {
	for {
		rz := co.popEarliestDue(owner.ID(), newTime)
		if rz == nil {
			return
		}
		rz.cont()
		rz.done <- nil
	}
}

func (co *CoExecutor) popEarliestDue(ownerID string, newTime executive.Time) *rendezvous {
	co.mu.Lock()
	defer co.mu.Unlock()
	list := co.pending[ownerID]
	idx := -1
	for i, rz := range list {
		if rz.target > newTime {
			continue
		}
		if idx == -1 || rz.target < list[idx].target {
			idx = i
		}
	}
	if idx == -1 {
		return nil
	}
	rz := list[idx]
	co.pending[ownerID] = append(list[:idx:idx], list[idx+1:]...)
	delete(co.blockedOn, rz.callerID)
	return rz
}

// WakeCallerAt registers caller as blocked on owner's clock reaching
// targetTime, then blocks the calling goroutine until the rendezvous is
// satisfied, owner terminates, or caller is aborted. Detects and resolves
// the two-party deadlock case described in spec.md §4.3.
func (co *CoExecutor) WakeCallerAt(owner, caller *executive.Executive, targetTime executive.Time, continuation func()) error {
	co.mu.Lock()
	if co.finished[owner.ID()] {
		co.mu.Unlock()
		return &executive.OwnerTerminatedError{Owner: owner.ID()}
	}
	if waitingOn, ok := co.blockedOn[owner.ID()]; ok && waitingOn == caller.ID() {
		// Two-party cycle: owner is blocked on caller, and caller is about
		// to block on owner. Break it in favour of whichever side has the
		// lower current time.
		if lowerID(caller, owner) == caller.ID() {
			co.mu.Unlock()
			logDeadlockBreak(co.log, caller.ID(), owner.ID())
			continuation()
			return nil
		}
		co.releaseLocked(owner.ID())
		logDeadlockBreak(co.log, owner.ID(), caller.ID())
	}

	done := make(chan error, 1)
	rz := &rendezvous{callerID: caller.ID(), ownerID: owner.ID(), target: targetTime, cont: continuation, done: done}
	co.pending[owner.ID()] = append(co.pending[owner.ID()], rz)
	co.blockedOn[caller.ID()] = owner.ID()
	co.mu.Unlock()

	logRendezvous(co.log, owner.ID(), caller.ID(), float64(targetTime))

	select {
	case err := <-done:
		return err
	case <-owner.Done():
		co.removeBlocked(owner.ID(), caller.ID())
		return &executive.OwnerTerminatedError{Owner: owner.ID()}
	case <-caller.Done():
		co.removeBlocked(owner.ID(), caller.ID())
		return &executive.AbortedError{Executive: caller.ID()}
	}
}

// releaseLocked force-resolves owner's existing block (called with co.mu
// held), running its continuation immediately against whatever state the
// blocked-on executive currently holds — the "held constant" resolution
// spec.md §4.3 describes for no-forward-progress cases, applied here to
// break a live cycle instead.
func (co *CoExecutor) releaseLocked(blockedID string) {
	onID := co.blockedOn[blockedID]
	list := co.pending[onID]
	for i, rz := range list {
		if rz.callerID == blockedID {
			co.pending[onID] = append(list[:i:i], list[i+1:]...)
			delete(co.blockedOn, blockedID)
			go func(rz *rendezvous) {
				rz.cont()
				rz.done <- nil
			}(rz)
			return
		}
	}
}

func (co *CoExecutor) removeBlocked(ownerID, callerID string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	list := co.pending[ownerID]
	for i, rz := range list {
		if rz.callerID == callerID {
			co.pending[ownerID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	delete(co.blockedOn, callerID)
}

// lowerID returns whichever of a, b has the lower current simulated time,
// breaking ties by the lexicographically lower stable id.
func lowerID(a, b *executive.Executive) string {
	an, bn := a.Now(), b.Now()
	if an != bn {
		if an < bn {
			return a.ID()
		}
		return b.ID()
	}
	if a.ID() < b.ID() {
		return a.ID()
	}
	return b.ID()
}

// onTerminated releases every rendezvous pending against e, once e reaches
// a terminal state, with OwnerTerminated — per spec.md §4.3's termination
// paragraph. Also updates the global termination bookkeeping.
func (co *CoExecutor) onTerminated(e *executive.Executive) {
	co.mu.Lock()
	co.finished[e.ID()] = true
	list := co.pending[e.ID()]
	co.pending[e.ID()] = nil
	co.mu.Unlock()

	logTermination(co.log, e.ID())

	for _, rz := range list {
		co.mu.Lock()
		delete(co.blockedOn, rz.callerID)
		co.mu.Unlock()
		rz.done <- &executive.OwnerTerminatedError{Owner: e.ID()}
	}
}

// HoldToCurrentTimeslice and ReleaseFromCurrentTimeslice delegate directly
// to the target: Executive's hold/release already guards the FEL/clock
// mutex a peer needs, so no co-executor-level bookkeeping is required.
func (co *CoExecutor) HoldToCurrentTimeslice(target *executive.Executive) { target.Hold() }
func (co *CoExecutor) ReleaseFromCurrentTimeslice(target *executive.Executive) {
	target.Release()
}

// InitiateRollback acquires owner's safe-point hold, performs the rollback,
// and releases the hold.
func (co *CoExecutor) InitiateRollback(owner *executive.Executive, targetTime executive.Time, onRollback func()) error {
	owner.Hold()
	defer owner.Release()
	return owner.Rollback(targetTime, onRollback)
}

// Pace implements spec.md §4.3's advisory backpressure: an executive that
// has pulled far ahead of its slowest peer is probabilistically made to
// yield, via a catrate.Limiter gating how often that's actually honoured.
func (co *CoExecutor) Pace(exec *executive.Executive) {
	slowest, ok := co.slowestPeerNow(exec)
	if !ok || co.paceWindow <= 0 {
		return
	}
	ahead := float64(exec.Now() - slowest)
	if ahead <= 0 {
		return
	}
	p := ahead / co.paceWindow
	if p > 1 {
		p = 1
	}
	if rand.Float64() >= p {
		return
	}
	if _, allowed := co.pacer.Allow(exec.ID()); allowed {
		time.Sleep(time.Millisecond)
	}
}

func (co *CoExecutor) slowestPeerNow(exec *executive.Executive) (executive.Time, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	found := false
	var slowest executive.Time
	for id, peer := range co.members {
		if id == exec.ID() || co.finished[id] {
			continue
		}
		t := peer.Now()
		if !found || t < slowest {
			slowest = t
			found = true
		}
	}
	return slowest, found
}
