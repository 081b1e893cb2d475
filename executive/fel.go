package executive

import "container/heap"

// fel is the future-event list: a min-heap of *event ordered by
// (when asc, priority asc, seq asc), mirroring the teacher's timerHeap
// (eventloop/loop.go) but generalized from a single time-ordering key to
// the executive's (time, priority, insertion-sequence) total order.
type fel []*event

func (h fel) Len() int { return len(h) }

func (h fel) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.when != b.when {
		return a.when < b.when
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (h fel) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *fel) Push(x any) {
	*h = append(*h, x.(*event))
}

func (h *fel) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// peek returns the next event to serve without removing it.
func (h fel) peek() *event {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// removeByID removes and returns the event with the given id, if pending.
func (h *fel) removeByID(id EventID) *event {
	for i, e := range *h {
		if e.id == id {
			return heap.Remove(h, i).(*event)
		}
	}
	return nil
}

// removeMatching removes every pending event for which pred returns true,
// returning the removed events.
func (h *fel) removeMatching(pred func(Event) bool) []*event {
	var removed []*event
	old := *h
	kept := old[:0]
	for _, e := range old {
		if pred(e.snapshot()) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(old); i++ {
		old[i] = nil
	}
	*h = kept
	heap.Init(h)
	return removed
}

// countLiveSynchronous returns the number of pending Synchronous events at
// or before (and including) cutoff. Used by the Finished transition: an
// executive with only Daemon events pending is considered idle.
func (h fel) countLiveSynchronous(cutoff Time, hasCutoff bool) int {
	n := 0
	for _, e := range h {
		if e.kind == Daemon {
			continue
		}
		if hasCutoff && e.when > cutoff {
			continue
		}
		n++
	}
	return n
}
