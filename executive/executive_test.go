package executive

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Scenario 1 from spec.md §8: events at t=1,2,3 priority 0 fire in order.
func TestExecutive_FIFOOrder(t *testing.T) {
	e := New()
	var observed []Time
	done := make(chan struct{})

	for _, when := range []Time{1, 2, 3} {
		when := when
		_, err := e.RequestEvent(func(exec *Executive, _ any) {
			observed = append(observed, when)
			if when == 3 {
				close(done)
			}
		}, when, 0, nil, Synchronous)
		require.NoError(t, err)
	}

	require.NoError(t, e.Start())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events to fire")
	}
	<-e.Done()

	require.Equal(t, []Time{1, 2, 3}, observed)
	require.Equal(t, Finished, e.State())
}

func TestExecutive_RequestEventPastFails(t *testing.T) {
	e := New(WithStartTime(10))
	require.NoError(t, e.Start())
	<-e.Done() // immediately finished, no events

	// Now() stays at startTime since nothing ran.
	_, err := e.RequestEvent(func(*Executive, any) {}, 5, 0, nil, Synchronous)
	var scheduleErr *InvalidScheduleError
	require.ErrorAs(t, err, &scheduleErr)
}

func TestExecutive_StartTwiceFails(t *testing.T) {
	e := New()
	require.NoError(t, e.Start())
	err := e.Start()
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	<-e.Done()
}

func TestExecutive_DaemonEventsDontKeepAlive(t *testing.T) {
	e := New()
	fired := make(chan struct{})
	_, err := e.RequestEvent(func(*Executive, any) { close(fired) }, 100, 0, nil, Daemon)
	require.NoError(t, err)

	require.NoError(t, e.Start())
	<-e.Done()
	require.Equal(t, Finished, e.State())
	select {
	case <-fired:
		t.Fatal("daemon event should not have been served before Finished")
	default:
	}
}

func TestExecutive_UnRequestEvent(t *testing.T) {
	e := New()
	id, err := e.RequestEvent(func(*Executive, any) {
		t.Fatal("canceled event should not fire")
	}, 5, 0, nil, Synchronous)
	require.NoError(t, err)

	require.NoError(t, e.UnRequestEvent(id))

	done := make(chan struct{})
	_, err = e.RequestEvent(func(*Executive, any) { close(done) }, 10, 0, nil, Synchronous)
	require.NoError(t, err)

	require.NoError(t, e.Start())
	<-done
	<-e.Done()
}

func TestExecutive_UnRequestEventsSelector(t *testing.T) {
	e := New()
	for i := 0; i < 5; i++ {
		_, err := e.RequestEvent(func(*Executive, any) {}, Time(i+1), 0, i, Synchronous)
		require.NoError(t, err)
	}
	n, err := e.UnRequestEvents(func(ev Event) bool {
		i, _ := ev.UserData.(int)
		return i%2 == 0
	})
	require.NoError(t, err)
	require.Equal(t, 3, n) // 0, 2, 4
}

func TestExecutive_PauseResume(t *testing.T) {
	e := New()
	// Keep the run loop inside its one event until after Resume, so it can't
	// race ahead to Finished before Pause takes effect.
	release := make(chan struct{})
	_, err := e.RequestEvent(func(*Executive, any) { <-release }, 1000, 0, nil, Synchronous)
	require.NoError(t, err)

	require.NoError(t, e.Start())
	require.NoError(t, e.Pause())
	require.Equal(t, Paused, e.State())
	require.NoError(t, e.Resume())
	close(release)

	_, err = e.UnRequestEvents(func(Event) bool { return true })
	require.NoError(t, err)
	<-e.Done()
	require.Equal(t, Finished, e.State())
}

func TestExecutive_Reset(t *testing.T) {
	e := New()
	fired := 0
	_, err := e.RequestEvent(func(*Executive, any) { fired++ }, 1, 0, nil, Synchronous)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	<-e.Done()
	require.Equal(t, 1, fired)
	require.Equal(t, Finished, e.State())

	// Reset from Finished is not permitted by the state machine (only
	// Running/Paused -> Idle); restart by constructing again is the norm,
	// but exercise the Reset contract failure path here.
	err = e.Reset()
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestExecutive_RollbackIsNoopWhenNotPast(t *testing.T) {
	e := New(WithStartTime(5))
	var rolledBack bool
	e.Subscribe(SignalRolledback, func(Signal) { rolledBack = true })
	require.NoError(t, e.Start())
	<-e.Done()

	require.NoError(t, e.InitiateRollback(5, nil)) // InitiateRollback(Now) is a no-op
	require.False(t, rolledBack)
}

func TestExecutive_LifecycleSignalsFireInOrder(t *testing.T) {
	e := New()
	var kinds []SignalKind
	for _, k := range []SignalKind{SignalStarted, SignalEventAboutToFire, SignalEventHasCompleted, SignalFinished} {
		k := k
		e.Subscribe(k, func(Signal) { kinds = append(kinds, k) })
	}
	_, err := e.RequestEvent(func(*Executive, any) {}, 1, 0, nil, Synchronous)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	<-e.Done()

	require.Equal(t, []SignalKind{SignalStarted, SignalEventAboutToFire, SignalEventHasCompleted, SignalFinished}, kinds)
}

func TestExecutive_EventCallbackPanicSurfacesAsError(t *testing.T) {
	e := New()
	var gotErr error
	e.Subscribe(SignalExecutiveErrored, func(sig Signal) { gotErr, _ = sig.Payload.(error) })
	_, err := e.RequestEvent(func(*Executive, any) {
		panic("boom")
	}, 1, 0, nil, Synchronous)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	<-e.Done()

	require.Error(t, gotErr)
	var cbErr *EventCallbackFailedError
	require.ErrorAs(t, gotErr, &cbErr)
	require.Equal(t, "boom", cbErr.Cause)
}

func TestExecutive_CrossThreadRequestEvent(t *testing.T) {
	e := New()
	// An executive with an empty FEL finishes as soon as its run loop starts;
	// hold the loop in its Started signal until the request below is queued.
	e.Subscribe(SignalStarted, func(Signal) {
		for e.ing.empty() {
			runtime.Gosched()
		}
	})
	require.NoError(t, e.Start())

	done := make(chan struct{})
	// Called from the test goroutine, not the run loop's — exercises the
	// ingress marshaling path.
	_, err := e.RequestEvent(func(*Executive, any) { close(done) }, 1, 0, nil, Synchronous)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	<-e.Done()
}
