package flow

import "errors"

var (
	// ErrCyclicGraph is returned when a connection would close a cycle.
	ErrCyclicGraph = errors.New("cyclic flow graph")

	// ErrInvalidPort is returned when a connection violates the port
	// arity of a node role (e.g. a second input on a transformer).
	ErrInvalidPort = errors.New("invalid port")

	// ErrUnknownNode is returned for ids that were never registered or
	// have been removed.
	ErrUnknownNode = errors.New("unknown flow node")

	// ErrDuplicateEdge is returned when two nodes are connected twice.
	ErrDuplicateEdge = errors.New("duplicate flow edge")

	// ErrNodeFailed is the stop cause delivered when the graph is halted by
	// a failure of the resources it models.
	ErrNodeFailed = errors.New("flow node failed")

	// ErrDetached is the stop cause delivered when a node is removed from a
	// running graph before it finished.
	ErrDetached = errors.New("flow node detached")
)
