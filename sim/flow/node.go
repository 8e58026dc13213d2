package flow

import "fmt"

// NodeID is the stable arena index of a node within its Graph.
type NodeID int

// Kind enumerates the closed set of node roles.
type Kind int

const (
	KindSource Kind = iota
	KindSink
	KindMultiplexer
	KindTransformer
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindSink:
		return "sink"
	case KindMultiplexer:
		return "multiplexer"
	case KindTransformer:
		return "transformer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Role is implemented only by *Source, *Sink, *Multiplexer and *Transformer.
// The graph dispatches on the concrete type.
type Role interface {
	Kind() Kind
	sealed()
}

// Source produces a time-varying demand driven by its Behavior.
// It has no inputs and at most one output.
type Source struct {
	Behavior Behavior

	cmd      Command
	deadline int64 // absolute; -1 when the source has no deadline
}

func (*Source) Kind() Kind { return KindSource }
func (*Source) sealed()    {}

// Command returns the command issued at the last recomputation.
func (s *Source) Command() Command { return s.cmd }

// Sink consumes up to Capacity and shares it max-min fairly among its inputs.
type Sink struct {
	Capacity float64

	total float64 // integral of granted rate over time, rate·ms
}

func (*Sink) Kind() Kind { return KindSink }
func (*Sink) sealed()    {}

// Multiplexer arbitrates N inputs over M outputs with max-min fairness.
// A positive Capacity additionally bounds its throughput.
type Multiplexer struct {
	Capacity float64
}

func (*Multiplexer) Kind() Kind { return KindMultiplexer }
func (*Multiplexer) sealed()    {}

// Transformer maps its single input onto its single output through Mapping,
// accepting at most Capacity on the input side.
type Transformer struct {
	Capacity float64
	Mapping  Mapping
}

func (*Transformer) Kind() Kind { return KindTransformer }
func (*Transformer) sealed()    {}

// Node is a registered graph vertex.
type Node struct {
	id      NodeID
	name    string
	role    Role
	inputs  []int // edge indices, in connection order
	outputs []int

	demand   float64 // requested rate on the input side (output side for sources)
	granted  float64 // granted rate on the input side (output side for sources)
	output   float64 // rate delivered downstream
	capacity float64 // input-side capacity from the last capacity pass
}

func (n *Node) ID() NodeID     { return n.id }
func (n *Node) Name() string   { return n.name }
func (n *Node) Role() Role     { return n.role }
func (n *Node) Kind() Kind     { return n.role.Kind() }
func (n *Node) Demand() float64 { return n.demand }

// Granted returns the rate the node actually received at the last
// recomputation. It never exceeds Demand.
func (n *Node) Granted() float64 { return n.granted }

// Output returns the rate delivered downstream. For transformers this is in
// output units (e.g. watts).
func (n *Node) Output() float64 { return n.output }

// Capacity returns the input-side capacity seen at the last recomputation.
func (n *Node) Capacity() float64 { return n.capacity }

// Utilization returns Granted/Capacity, or 0 without capacity.
func (n *Node) Utilization() float64 {
	if n.capacity <= 0 {
		return 0
	}
	return n.granted / n.capacity
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d(%s)", n.role.Kind(), n.id, n.name)
}

// edge is a directed connection. demand and grant are in the units of the
// upstream node's output.
type edge struct {
	from, to NodeID
	demand   float64
	grant    float64
	live     bool
}
