package executive

import "sync/atomic"

// RunState represents the current life-cycle state of an Executive, per
// spec.md §4.1's state machine.
//
//	Idle -> Running                 [Start]
//	Running -> Paused               [Pause]
//	Paused -> Running                [Resume]
//	Running -> Stopped               [Stop, graceful]
//	Running -> Finished              [no sync event <= terminal time]
//	Running/Paused -> Idle           [Reset]
//	Any -> Aborted                   [Abort]
//
// TryTransition (CAS) is used for Start, Pause, Resume, Reset and the
// Running -> Finished transition; Store for Stopped and Aborted.
type RunState uint32

const (
	// Idle is the state of a freshly created executive, before Start.
	Idle RunState = iota
	// Running indicates the executive's run loop is actively serving events.
	Running
	// Paused indicates Pause was called; the run loop is parked.
	Paused
	// Stopped indicates Stop completed an orderly shutdown.
	Stopped
	// Finished indicates the FEL has no non-daemon event left to serve.
	Finished
	// Aborted indicates Abort was called; the loop exits at the next safe point.
	Aborted
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	case Finished:
		return "Finished"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the state is one the run loop never leaves.
func (s RunState) IsTerminal() bool {
	return s == Stopped || s == Finished || s == Aborted
}

// atomicState is a lock-free state machine guarding an Executive's RunState.
// It mirrors the teacher's cache-line padded FastState, generalized from the
// event loop's five states to the executive's six.
type atomicState struct { //nolint:govet // betteralign:ignore
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func newAtomicState(initial RunState) *atomicState {
	s := &atomicState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *atomicState) Load() RunState {
	return RunState(s.v.Load())
}

func (s *atomicState) Store(state RunState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts an atomic from->to transition, returning whether it
// succeeded.
func (s *atomicState) TryTransition(from, to RunState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
