// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import "time"

// State is the supervisor lifecycle state.
//
//	Starting -> Running -> Draining -> Terminated
//	Running  -> Terminated   (unexpected exit)
//	Starting -> Terminated   (spawn failure)
//
// Terminated is absorbing.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateTerminated
)

var stateNames = []string{"starting", "running", "draining", "terminated"}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// canTransition reports whether from -> to is a legal edge.
func canTransition(from, to State) bool {
	switch from {
	case StateStarting:
		return to == StateRunning || to == StateTerminated
	case StateRunning:
		return to == StateDraining || to == StateTerminated
	case StateDraining:
		return to == StateTerminated
	default:
		return false
	}
}

// Exit reasons recorded in ExitStatus.
const (
	ReasonClean       = "clean"
	ReasonError       = "error"
	ReasonShutdown    = "shutdown"
	ReasonKilled      = "killed"
	ReasonSpawnFailed = "spawn_failed"
	ReasonNotStarted  = "not_started"
)

// ExitStatus records how the encoder process ended.
type ExitStatus struct {
	Code      int
	Reason    string
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
	Stderr    []string
}

// Unexpected reports whether the process ended without a shutdown request.
func (e ExitStatus) Unexpected() bool {
	return e.Reason == ReasonClean || e.Reason == ReasonError || e.Reason == ReasonSpawnFailed
}
