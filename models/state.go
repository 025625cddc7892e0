package models

import "fmt"

// ServerState is the supervised process lifecycle state.
type ServerState string

const (
	StateStopped  ServerState = "stopped"
	StateStarting ServerState = "starting"
	StateRunning  ServerState = "running"
	StateStopping ServerState = "stopping"
	StateError    ServerState = "error"
)

// stateTransitions enumerates the legal lifecycle transitions:
//
//	stopped -> starting -> running -> stopping -> stopped
//
// "error" is entered when a starting process exits immediately or a running
// process dies unexpectedly, and is terminal until a retried start.
var stateTransitions = map[ServerState][]ServerState{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateError, StateStopped},
	StateRunning:  {StateStopping, StateError},
	StateStopping: {StateStopped, StateError},
	StateError:    {StateStarting},
}

// Valid reports whether s is a known server state.
func (s ServerState) Valid() bool {
	switch s {
	case StateStopped, StateStarting, StateRunning, StateStopping, StateError:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving to next.
func (s ServerState) CanTransition(next ServerState) bool {
	for _, t := range stateTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Transition is the single authoritative transition function for server
// states. Illegal transitions (e.g. stopped -> stopping) return an error
// instead of silently producing an inconsistent state.
func Transition(from, to ServerState) (ServerState, error) {
	if !from.Valid() {
		return from, fmt.Errorf("unknown server state: %q", from)
	}
	if !from.CanTransition(to) {
		return from, fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return to, nil
}
