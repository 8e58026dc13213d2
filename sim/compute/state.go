package compute

import "fmt"

// HostState is the health of a host.
type HostState int

const (
	HostUp HostState = iota
	HostFailed
	// HostRecovering is a failed host waiting out its recovery delay.
	HostRecovering
)

func (s HostState) String() string {
	switch s {
	case HostUp:
		return "up"
	case HostFailed:
		return "failed"
	case HostRecovering:
		return "recovering"
	default:
		return fmt.Sprintf("host-state(%d)", int(s))
	}
}

// ServerState is a server's position in its lifecycle.
type ServerState int

const (
	StateRequested ServerState = iota
	StateQueued
	StateScheduled
	StateRunning
	StateTerminated
	StateFailed
	StateUnschedulable
	StateDeleted
)

var serverStateNames = [...]string{
	StateRequested:     "requested",
	StateQueued:        "queued",
	StateScheduled:     "scheduled",
	StateRunning:       "running",
	StateTerminated:    "terminated",
	StateFailed:        "failed",
	StateUnschedulable: "unschedulable",
	StateDeleted:       "deleted",
}

func (s ServerState) String() string {
	if s >= 0 && int(s) < len(serverStateNames) {
		return serverStateNames[s]
	}
	return fmt.Sprintf("server-state(%d)", int(s))
}

// Terminal reports whether no further transition can leave the state.
// Failed is terminal unless the service requeues failed servers.
func (s ServerState) Terminal() bool {
	switch s {
	case StateTerminated, StateFailed, StateUnschedulable, StateDeleted:
		return true
	}
	return false
}

// validTransitions lists the legal successor states.
var validTransitions = map[ServerState][]ServerState{
	StateRequested: {StateQueued, StateDeleted},
	StateQueued:    {StateScheduled, StateUnschedulable, StateDeleted},
	StateScheduled: {StateRunning, StateFailed},
	StateRunning:   {StateTerminated, StateFailed, StateDeleted},
	StateFailed:    {StateQueued},
}

// CanTransition reports whether from → to is legal.
func CanTransition(from, to ServerState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
