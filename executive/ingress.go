package executive

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// ingress is a mutex-protected cross-goroutine command queue, draining via a
// batch swap rather than per-item locking on the consumer side. Grounded on
// the teacher's goja-style auxJobs/auxJobsSpare pattern (eventloop/loop.go
// runAux), simplified: the executive's run loop never needs the full
// ChunkedIngress/MicrotaskRing machinery since every drain happens between
// events, not on a hot per-task path.
type ingress struct {
	mu    sync.Mutex
	jobs  []func()
	spare []func()
}

// push enqueues fn to run on the executive's own goroutine at the next safe
// point. Safe to call from any goroutine, including the owner's own.
func (q *ingress) push(fn func()) {
	q.mu.Lock()
	q.jobs = append(q.jobs, fn)
	q.mu.Unlock()
}

// drain swaps out the pending queue and returns it for execution by the
// caller, which must be the owning executive's run-loop goroutine.
func (q *ingress) drain() []func() {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = q.spare
	q.mu.Unlock()
	q.spare = jobs[:0]
	return jobs
}

// empty reports whether the queue currently holds no pending jobs. Racy by
// nature (another goroutine may push immediately after); used only as a
// hint, e.g. to decide whether a run loop may safely idle.
func (q *ingress) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) == 0
}

// threadID identifies the goroutine currently executing the Executive's run
// loop, per the teacher's isLoopThread/getGoroutineID (eventloop/loop.go).
// No ecosystem or pack library exposes a goroutine id (the sibling
// goroutineid module ships no retrievable source in this pack — see
// DESIGN.md); runtime.Stack parsing is the teacher's own fallback for this,
// so it is reused verbatim rather than invented.
type threadID struct {
	v atomic.Uint64
}

func (t *threadID) set() {
	t.v.Store(currentGoroutineID())
}

func (t *threadID) isCurrent() bool {
	id := t.v.Load()
	return id != 0 && id == currentGoroutineID()
}

func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
