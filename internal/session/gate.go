package session

import "github.com/1ureka/duel/internal/config"

// Phase is the local side's view of whose move it is.
type Phase int

const (
	WaitingForLocalMove Phase = iota
	WaitingForRemoteMove
)

func (p Phase) String() string {
	switch p {
	case WaitingForLocalMove:
		return "waiting for local move"
	case WaitingForRemoteMove:
		return "waiting for remote move"
	default:
		return "unknown"
	}
}

// ShouldListen reports whether a peer of the given role reads from the
// connection at this turn. Odd turns belong to the Host, so the Host listens
// on even turns and the Client on odd ones.
func ShouldListen(turn uint64, role config.Role) bool {
	return (turn%2 == 1) != (role == config.RoleHost)
}

// PhaseFor maps a turn counter to a Phase for the given role.
func PhaseFor(turn uint64, role config.Role) Phase {
	if ShouldListen(turn, role) {
		return WaitingForRemoteMove
	}
	return WaitingForLocalMove
}

// State is the lifecycle of a session's connection.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
