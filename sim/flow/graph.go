package flow

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/fleetsim/fleet-sim/sim"
)

// Graph is a directed acyclic network of flow nodes sharing one engine.
//
// The graph recomputes rates only at interesting instants: the earliest
// deadline returned by its sources, or the instant at which a node's demand
// or the graph's structure changes. Several changes at the same instant
// collapse into a single recomputation.
type Graph struct {
	name      string
	engine    *sim.Engine
	nodes     []*Node // arena indexed by NodeID; nil once removed
	edges     []edge
	freeEdges []int
	order     []NodeID
	orderOK   bool

	running    bool
	updating   bool
	dirty      bool
	lastUpdate int64
	timer      sim.Handle
	updates    uint64

	observers []func(now int64)
	listeners []func(n *Node, ev Event)
}

// NewGraph creates a stopped graph. Call Start to begin recomputing.
func NewGraph(engine *sim.Engine, name string) *Graph {
	return &Graph{name: name, engine: engine}
}

func (g *Graph) Name() string { return g.name }

// Running reports whether the graph has been started and not stopped.
func (g *Graph) Running() bool { return g.running }

// Updates returns the number of recomputations performed.
func (g *Graph) Updates() uint64 { return g.updates }

// LastUpdate returns the virtual time of the last recomputation.
func (g *Graph) LastUpdate() int64 { return g.lastUpdate }

// Observe registers fn to run after every recomputation and after Stop.
func (g *Graph) Observe(fn func(now int64)) {
	g.observers = append(g.observers, fn)
}

// Listen registers fn to receive every lifecycle event of every node.
func (g *Graph) Listen(fn func(n *Node, ev Event)) {
	g.listeners = append(g.listeners, fn)
}

// AddSource registers a source driven by b.
func (g *Graph) AddSource(name string, b Behavior) NodeID {
	if b == nil {
		panic(fmt.Sprintf("flow: source %q has nil behavior", name))
	}
	return g.add(name, &Source{Behavior: b, deadline: -1})
}

// AddSink registers a sink with a fixed capacity.
func (g *Graph) AddSink(name string, capacity float64) NodeID {
	return g.add(name, &Sink{Capacity: math.Max(capacity, 0)})
}

// AddMultiplexer registers a multiplexer. A capacity of zero leaves its
// throughput bounded only by its outputs.
func (g *Graph) AddMultiplexer(name string, capacity float64) NodeID {
	return g.add(name, &Multiplexer{Capacity: math.Max(capacity, 0)})
}

// AddTransformer registers a transformer. A nil mapping is the identity.
func (g *Graph) AddTransformer(name string, capacity float64, m Mapping) NodeID {
	if m == nil {
		m = Identity{}
	}
	return g.add(name, &Transformer{Capacity: math.Max(capacity, 0), Mapping: m})
}

func (g *Graph) add(name string, role Role) NodeID {
	id := NodeID(len(g.nodes))
	n := &Node{id: id, name: name, role: role}
	g.nodes = append(g.nodes, n)
	g.orderOK = false
	if g.running {
		g.notify(n, Event{Kind: EventStart, Time: g.engine.Now()})
		g.invalidate()
	}
	return id
}

// Node returns the node registered under id, or nil.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns the live nodes in registration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (g *Graph) lookup(id NodeID) (*Node, error) {
	n := g.Node(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %d in graph %s", ErrUnknownNode, id, g.name)
	}
	return n, nil
}

// Connect adds the edge from → to. Port arity follows the node roles:
// sources have no inputs and one output, sinks no outputs, transformers one
// of each. A connection that would close a cycle fails with ErrCyclicGraph.
func (g *Graph) Connect(from, to NodeID) error {
	f, err := g.lookup(from)
	if err != nil {
		return err
	}
	t, err := g.lookup(to)
	if err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("%w: %s connected to itself", ErrCyclicGraph, f)
	}
	switch f.role.(type) {
	case *Sink:
		return fmt.Errorf("%w: %s has no output port", ErrInvalidPort, f)
	case *Source, *Transformer:
		if len(f.outputs) > 0 {
			return fmt.Errorf("%w: %s already has an output", ErrInvalidPort, f)
		}
	}
	switch t.role.(type) {
	case *Source:
		return fmt.Errorf("%w: %s has no input port", ErrInvalidPort, t)
	case *Transformer:
		if len(t.inputs) > 0 {
			return fmt.Errorf("%w: %s already has an input", ErrInvalidPort, t)
		}
	}
	for _, ei := range f.outputs {
		if g.edges[ei].to == to {
			return fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, f, t)
		}
	}
	if g.reachable(to, from) {
		return fmt.Errorf("%w: %s -> %s closes a cycle", ErrCyclicGraph, f, t)
	}

	e := edge{from: from, to: to, live: true}
	var ei int
	if k := len(g.freeEdges); k > 0 {
		ei = g.freeEdges[k-1]
		g.freeEdges = g.freeEdges[:k-1]
		g.edges[ei] = e
	} else {
		ei = len(g.edges)
		g.edges = append(g.edges, e)
	}
	f.outputs = append(f.outputs, ei)
	t.inputs = append(t.inputs, ei)
	g.orderOK = false
	g.invalidate()
	return nil
}

// Disconnect removes the edge from → to.
func (g *Graph) Disconnect(from, to NodeID) error {
	f, err := g.lookup(from)
	if err != nil {
		return err
	}
	for _, ei := range f.outputs {
		if g.edges[ei].to == to {
			g.detachEdge(ei)
			g.orderOK = false
			g.invalidate()
			return nil
		}
	}
	return fmt.Errorf("%w: no edge %d -> %d in graph %s", ErrUnknownNode, from, to, g.name)
}

// Remove detaches a node and delivers a stop event carrying cause.
func (g *Graph) Remove(id NodeID, cause error) error {
	n, err := g.lookup(id)
	if err != nil {
		return err
	}
	if g.updating {
		sim.Fatalf("flow graph %s: %s removed during recomputation", g.name, n)
	}
	g.unlink(n)
	g.notify(n, Event{Kind: EventStop, Time: g.engine.Now(), Cause: cause})
	g.invalidate()
	return nil
}

// OnDemandChanged requests a recomputation at the current instant, e.g.
// because a source's demand changed before its own deadline.
func (g *Graph) OnDemandChanged(id NodeID) error {
	if _, err := g.lookup(id); err != nil {
		return err
	}
	g.invalidate()
	return nil
}

// Start delivers start events to every node and schedules the first
// recomputation at the current instant.
func (g *Graph) Start() {
	if g.running {
		return
	}
	now := g.engine.Now()
	g.running = true
	g.lastUpdate = now
	for _, n := range g.Nodes() {
		g.notify(n, Event{Kind: EventStart, Time: now})
	}
	g.invalidate()
}

// Stop halts the graph. Every node receives a stop event; sources are
// removed since their demand cannot outlive the resources they ran on.
// Sources that complete at exactly this instant stop with a nil cause.
func (g *Graph) Stop(cause error) {
	if !g.running {
		return
	}
	if g.updating {
		sim.Fatalf("flow graph %s: stopped during recomputation", g.name)
	}
	now := g.engine.Now()
	completed := g.advance(now)
	g.running = false
	g.engine.Cancel(g.timer)
	g.timer = sim.Handle{}

	for _, n := range g.Nodes() {
		n.demand, n.granted, n.output = 0, 0, 0
		for _, ei := range n.outputs {
			g.edges[ei].demand, g.edges[ei].grant = 0, 0
		}
		ev := Event{Kind: EventStop, Time: now, Cause: cause}
		if _, ok := n.role.(*Source); ok {
			if completed[n.id] {
				ev.Cause = nil
			}
			g.unlink(n)
		}
		g.notify(n, ev)
	}
	logrus.Debugf("[t=%07d] flow graph %s stopped: %v", now, g.name, cause)
	for _, fn := range g.observers {
		fn(now)
	}
}

// Integral returns the time integral of a node's granted rate in rate·ms.
// Only sinks accumulate; other roles return 0.
func (g *Graph) Integral(id NodeID) float64 {
	n := g.Node(id)
	if n == nil {
		return 0
	}
	s, ok := n.role.(*Sink)
	if !ok {
		return 0
	}
	total := s.total
	if g.running {
		total += n.granted * float64(g.engine.Now()-g.lastUpdate)
	}
	return total
}

func (g *Graph) invalidate() {
	if !g.running {
		return
	}
	if g.updating {
		g.dirty = true
		return
	}
	now := g.engine.Now()
	if g.timer.Active() {
		if g.timer.Deadline() == now {
			return
		}
		g.engine.Cancel(g.timer)
	}
	g.timer = g.engine.MustScheduleAt(now, g.update)
}

func (g *Graph) notify(n *Node, ev Event) {
	if s, ok := n.role.(*Source); ok {
		s.Behavior.OnEvent(ev)
	}
	for _, fn := range g.listeners {
		fn(n, ev)
	}
}

func (g *Graph) unlink(n *Node) {
	for len(n.inputs) > 0 {
		g.detachEdge(n.inputs[0])
	}
	for len(n.outputs) > 0 {
		g.detachEdge(n.outputs[0])
	}
	g.nodes[n.id] = nil
	g.orderOK = false
}

func (g *Graph) detachEdge(ei int) {
	e := &g.edges[ei]
	if f := g.nodes[e.from]; f != nil {
		f.outputs = removeIndex(f.outputs, ei)
	}
	if t := g.nodes[e.to]; t != nil {
		t.inputs = removeIndex(t.inputs, ei)
	}
	*e = edge{}
	g.freeEdges = append(g.freeEdges, ei)
}

func removeIndex(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// reachable reports whether target can be reached from start along edges.
func (g *Graph) reachable(start, target NodeID) bool {
	seen := make(map[NodeID]bool)
	stack := []NodeID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, ei := range g.nodes[id].outputs {
			stack = append(stack, g.edges[ei].to)
		}
	}
	return false
}

// topo returns live node ids in topological order, ties broken by id.
func (g *Graph) topo() []NodeID {
	if g.orderOK {
		return g.order
	}
	indeg := make([]int, len(g.nodes))
	live := 0
	queue := make([]NodeID, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		live++
		indeg[n.id] = len(n.inputs)
		if indeg[n.id] == 0 {
			queue = append(queue, n.id)
		}
	}
	order := make([]NodeID, 0, live)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, ei := range g.nodes[id].outputs {
			to := g.edges[ei].to
			indeg[to]--
			if indeg[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if len(order) != live {
		sim.Fatalf("flow graph %s: cycle detected (%d of %d nodes ordered)", g.name, len(order), live)
	}
	g.order = order
	g.orderOK = true
	return order
}

// advance accounts the interval ending at now and collects the sources'
// commands for the next one. Finished sources are unlinked and reported.
func (g *Graph) advance(now int64) map[NodeID]bool {
	elapsed := now - g.lastUpdate
	g.lastUpdate = now
	var finished map[NodeID]bool
	for _, id := range g.topo() {
		n := g.nodes[id]
		switch r := n.role.(type) {
		case *Sink:
			r.total += n.granted * float64(elapsed)
		case *Source:
			cmd := r.Behavior.Next(now, elapsed, n.granted)
			if cmd.Done {
				if finished == nil {
					finished = make(map[NodeID]bool)
				}
				finished[id] = true
				r.cmd = cmd
				continue
			}
			if cmd.Rate < 0 || math.IsNaN(cmd.Rate) {
				cmd.Rate = 0
			}
			r.cmd = cmd
			n.demand = cmd.Rate
		}
	}
	return finished
}

func (g *Graph) update(now int64) {
	if !g.running {
		return
	}
	g.updating = true
	g.updates++

	finished := g.advance(now)
	var stopped []*Node
	for _, n := range g.Nodes() {
		if finished[n.id] {
			g.unlink(n)
			n.demand, n.granted, n.output = 0, 0, 0
			stopped = append(stopped, n)
		}
	}

	order := g.topo()
	g.capacityPass(order)
	g.demandPass(order)
	g.grantPass(order)

	next := int64(-1)
	for _, id := range order {
		n := g.nodes[id]
		r, ok := n.role.(*Source)
		if !ok {
			continue
		}
		n.granted = 0
		if len(n.outputs) == 1 {
			n.granted = g.edges[n.outputs[0]].grant
		}
		n.output = n.granted
		n.capacity = n.granted
		r.deadline = deadline(r.cmd, n.granted, now)
		if r.deadline >= 0 && (next < 0 || r.deadline < next) {
			next = r.deadline
		}
	}
	g.updating = false

	g.timer = sim.Handle{}
	if next >= 0 {
		g.timer = g.engine.MustScheduleAt(next, g.update)
	}
	logrus.Debugf("[t=%07d] flow graph %s recomputed (%d nodes, next=%d)", now, g.name, len(order), next)

	for _, id := range order {
		if n := g.nodes[id]; n != nil {
			g.notify(n, Event{Kind: EventInterval, Time: now, Rate: n.granted})
		}
	}
	for _, n := range stopped {
		g.notify(n, Event{Kind: EventStop, Time: now})
	}
	if g.dirty {
		g.dirty = false
		g.invalidate()
	}
	for _, fn := range g.observers {
		fn(now)
	}
}

// deadline returns the absolute instant at which a source issuing cmd and
// receiving granted must be re-evaluated, or -1.
func deadline(cmd Command, granted float64, now int64) int64 {
	d := int64(-1)
	if cmd.Duration >= 0 {
		d = now + max(cmd.Duration, 1)
	}
	if cmd.Work > 0 && granted > 0 {
		t := int64(math.Ceil(cmd.Work/granted - 1e-9))
		t = max(t, 1)
		if d < 0 || now+t < d {
			d = now + t
		}
	}
	return d
}

func ownCapacity(c float64) float64 {
	if c <= 0 {
		return math.Inf(1)
	}
	return c
}

// capacityPass propagates input-side capacities from sinks toward sources.
func (g *Graph) capacityPass(order []NodeID) {
	for i := len(order) - 1; i >= 0; i-- {
		n := g.nodes[order[i]]
		switch r := n.role.(type) {
		case *Sink:
			n.capacity = r.Capacity
		case *Transformer:
			c := ownCapacity(r.Capacity)
			if len(n.outputs) == 1 {
				down := g.nodes[g.edges[n.outputs[0]].to].capacity
				c = math.Min(c, r.Mapping.Inverse(down))
			}
			n.capacity = c
		case *Multiplexer:
			c := 0.0
			for _, ei := range n.outputs {
				c += g.nodes[g.edges[ei].to].capacity
			}
			if r.Capacity > 0 {
				c = math.Min(c, r.Capacity)
			}
			n.capacity = c
		case *Source:
			n.capacity = 0
		}
	}
}

// demandPass propagates requested rates from sources toward sinks.
func (g *Graph) demandPass(order []NodeID) {
	for _, id := range order {
		n := g.nodes[id]
		switch r := n.role.(type) {
		case *Source:
			if len(n.outputs) == 1 {
				g.edges[n.outputs[0]].demand = n.demand
			}
		case *Multiplexer:
			n.demand = g.inputDemand(n)
			g.splitDemand(n)
		case *Transformer:
			n.demand = g.inputDemand(n)
			if len(n.outputs) == 1 {
				x := math.Min(n.demand, ownCapacity(r.Capacity))
				g.edges[n.outputs[0]].demand = r.Mapping.Forward(x)
			}
		case *Sink:
			n.demand = g.inputDemand(n)
		}
	}
}

func (g *Graph) inputDemand(n *Node) float64 {
	d := 0.0
	for _, ei := range n.inputs {
		d += g.edges[ei].demand
	}
	return d
}

// splitDemand spreads a multiplexer's demand over its outputs in proportion
// to their capacity. The last output takes the remainder so nothing is lost
// to rounding.
func (g *Graph) splitDemand(n *Node) {
	outs := n.outputs
	switch len(outs) {
	case 0:
		return
	case 1:
		g.edges[outs[0]].demand = n.demand
		return
	}
	total := 0.0
	for _, ei := range outs {
		total += g.nodes[g.edges[ei].to].capacity
	}
	assigned := 0.0
	for i, ei := range outs {
		if i == len(outs)-1 {
			g.edges[ei].demand = math.Max(n.demand-assigned, 0)
			break
		}
		var share float64
		if total > 0 && !math.IsInf(total, 1) {
			share = n.demand * g.nodes[g.edges[ei].to].capacity / total
		} else {
			share = n.demand / float64(len(outs))
		}
		g.edges[ei].demand = share
		assigned += share
	}
}

// grantPass distributes what sinks accept back toward the sources.
func (g *Graph) grantPass(order []NodeID) {
	for i := len(order) - 1; i >= 0; i-- {
		n := g.nodes[order[i]]
		switch r := n.role.(type) {
		case *Sink:
			n.granted = g.shareInputs(n, n.capacity)
			n.output = n.granted
		case *Transformer:
			in := math.Min(n.demand, ownCapacity(r.Capacity))
			if len(n.outputs) == 1 {
				o := g.edges[n.outputs[0]]
				if o.grant < o.demand {
					in = math.Min(in, r.Mapping.Inverse(o.grant))
				}
				n.output = o.grant
			} else {
				n.output = r.Mapping.Forward(in)
			}
			if len(n.inputs) == 1 {
				g.edges[n.inputs[0]].grant = in
			} else {
				in = 0
			}
			n.granted = in
		case *Multiplexer:
			total := 0.0
			satisfied := len(n.outputs) > 0
			for _, ei := range n.outputs {
				total += g.edges[ei].grant
				if g.edges[ei].grant < g.edges[ei].demand {
					satisfied = false
				}
			}
			if satisfied {
				total = n.demand
			}
			if r.Capacity > 0 {
				total = math.Min(total, r.Capacity)
			}
			n.granted = g.shareInputs(n, total)
			n.output = n.granted
		}
	}
}

// shareInputs grants capacity across a node's input edges max-min fairly and
// returns the total granted.
func (g *Graph) shareInputs(n *Node, capacity float64) float64 {
	if len(n.inputs) == 0 {
		return 0
	}
	demands := make([]float64, len(n.inputs))
	for i, ei := range n.inputs {
		demands[i] = g.edges[ei].demand
	}
	grants := MaxMinFair(demands, capacity)
	sum := 0.0
	for i, ei := range n.inputs {
		g.edges[ei].grant = grants[i]
		sum += grants[i]
	}
	return sum
}
