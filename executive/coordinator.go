package executive

// Coordinator is the set of cross-executive services a co-executor provides.
// It is declared here, rather than in package coexecutor, so that Executive
// can call back into it without coexecutor importing executive and executive
// importing coexecutor in turn; coexecutor is the (sole intended) concrete
// implementer.
//
// An Executive constructed without a Coordinator (WithCoordinator) still
// runs standalone; only the cross-executive operations below require one,
// and fail with ErrNoCoordinator otherwise.
type Coordinator interface {
	// FireRendezvousUpTo runs, synchronously on the caller's goroutine (which
	// must be owner's own run-loop goroutine), every rendezvous registered
	// against owner whose target time is <= newTime, before the owner's
	// clock advances to newTime.
	FireRendezvousUpTo(owner *Executive, newTime Time)

	// WakeCallerAt registers caller as blocked pending owner's clock reaching
	// targetTime (inclusive). When satisfied, continuation runs on owner's
	// thread and caller is released; when the coordinator breaks a two-party
	// deadlock instead, the favoured side's continuation runs at once, off
	// owner's thread, against owner's current data. Blocks the calling
	// goroutine until the rendezvous resolves (fires, owner terminates, or either side aborts).
	WakeCallerAt(owner, caller *Executive, targetTime Time, continuation func()) error

	// InitiateRollback acquires owner's safe-point hold, performs the §4.1
	// rollback, and releases the hold.
	InitiateRollback(owner *Executive, targetTime Time, onRollback func()) error

	// HoldToCurrentTimeslice and ReleaseFromCurrentTimeslice let a peer
	// temporarily prevent target from advancing past its current time, e.g.
	// to inspect traced-value state without racing target's clock.
	HoldToCurrentTimeslice(target *Executive)
	ReleaseFromCurrentTimeslice(target *Executive)

	// Pace gives the coordinator a chance to apply advisory backpressure
	// after exec has just served an event, per spec.md §4.3's pacing
	// mechanism. Must return promptly; correctness never depends on it.
	Pace(exec *Executive)
}
