package coexecutor

import "github.com/joeycumines/logiface"

// Logger mirrors executive.Logger: the type-erased logiface logger. A nil
// Logger disables all co-executor logging overhead.
type Logger = *logiface.Logger[logiface.Event]

func logRendezvous(log Logger, ownerID, callerID string, targetTime float64) {
	if log == nil {
		return
	}
	log.Debug().
		Str("owner", ownerID).
		Str("caller", callerID).
		Float64("target", targetTime).
		Log("rendezvous registered")
}

func logDeadlockBreak(log Logger, winnerID, loserID string) {
	if log == nil {
		return
	}
	log.Warning().
		Str("winner", winnerID).
		Str("loser", loserID).
		Log("deadlock cycle broken")
}

func logTermination(log Logger, id string) {
	if log == nil {
		return
	}
	log.Info().
		Str("executive", id).
		Log("executive reached terminal state")
}
