package executive

import (
	"os"

	"github.com/joeycumines/logiface"
	izerolog "github.com/joeycumines/logiface-zerolog"
	"github.com/rs/zerolog"
)

// Logger is the type accepted by the WithLogger option. It is the
// type-erased form of logiface.Logger, matching the teacher's preference
// (eventloop/logging.go) for a single injectable logger rather than a
// family of level-specific callbacks, but backed by logiface/logiface-zerolog
// instead of the teacher's hand-rolled Logger/LogEntry interface.
//
// A nil Logger is valid everywhere one is accepted: every call site below
// guards on it first, so an Executive built without WithLogger pays no
// logging overhead.
type Logger = *logiface.Logger[logiface.Event]

// NewDefaultLogger returns a Logger backed by zerolog, writing JSON lines to
// os.Stderr at Info level and above. Intended for examples and tests; real
// callers are expected to build their own *logiface.Logger[*izerolog.Event]
// and narrow it with Logger() (see izerolog.L.New).
func NewDefaultLogger() Logger {
	z := izerolog.L.New(
		izerolog.L.WithZerolog(zerolog.New(os.Stderr).With().Timestamp().Logger()),
		izerolog.L.WithLevel(izerolog.L.LevelInformational()),
	)
	return z.Logger()
}

// logTransition emits a structured Info line for a RunState change.
func logTransition(log Logger, exec *Executive, op string, from, to RunState) {
	if log == nil {
		return
	}
	log.Info().
		Str("executive", exec.id).
		Str("op", op).
		Str("from", from.String()).
		Str("to", to.String()).
		Float64("now", float64(exec.Now())).
		Log("executive state transition")
}

// logEventFiring emits a Trace line immediately before a callback runs.
// Per-event churn is logged at Trace, not Debug, since a busy executive may
// serve millions of events per simulated run.
func logEventFiring(log Logger, exec *Executive, e Event) {
	if log == nil {
		return
	}
	log.Trace().
		Str("executive", exec.id).
		Uint64("event_id", uint64(e.ID)).
		Float64("when", float64(e.When)).
		Int64("priority", e.Priority).
		Str("kind", e.Kind.String()).
		Log("event about to fire")
}

// logEventCompleted emits a Trace line after a callback returns, or a Warning
// line if it failed.
func logEventCompleted(log Logger, exec *Executive, e Event, err error) {
	if log == nil {
		return
	}
	if err != nil {
		log.Warning().
			Str("executive", exec.id).
			Uint64("event_id", uint64(e.ID)).
			Err(err).
			Log("event callback failed")
		return
	}
	log.Trace().
		Str("executive", exec.id).
		Uint64("event_id", uint64(e.ID)).
		Log("event completed")
}

// logRollback emits a Warning line when an executive's history is rolled
// back to an earlier time, as this discards already-observed effects.
func logRollback(log Logger, exec *Executive, to Time) {
	if log == nil {
		return
	}
	log.Warning().
		Str("executive", exec.id).
		Float64("to", float64(to)).
		Log("executive rolled back")
}

// logError emits an Error line for an unrecoverable executive-level failure.
func logError(log Logger, exec *Executive, err error) {
	if log == nil {
		return
	}
	log.Err().
		Str("executive", exec.id).
		Err(err).
		Log("executive errored")
}
