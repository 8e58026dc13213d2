package compute

import (
	"fmt"
	"math"

	"github.com/fleetsim/fleet-sim/sim"
	"github.com/fleetsim/fleet-sim/sim/flow"
	"github.com/fleetsim/fleet-sim/sim/scheduler"
	"github.com/fleetsim/fleet-sim/sim/telemetry"
)

// Host is a machine in the fleet. Its servers run as sources on the host's
// flow graph: every server feeds a multiplexer that spreads demand over one
// transformer per CPU package, and the transformers draw power from the PSU
// sink.
type Host struct {
	spec  HostSpec
	index int
	state HostState

	graph *flow.Graph
	mux   flow.NodeID
	cpus  []flow.NodeID
	psu   flow.NodeID

	servers       []*Server // placement order
	usedCores     int
	usedMemoryMiB int64
	recovery      sim.Handle
}

// newHost builds the host's flow graph. The graph is not started.
func newHost(engine *sim.Engine, spec HostSpec, index int) (*Host, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	h := &Host{spec: spec, index: index, graph: flow.NewGraph(engine, spec.Name)}
	budget := math.Inf(1)
	if spec.PowerBudgetW > 0 {
		budget = spec.PowerBudgetW
	}
	h.mux = h.graph.AddMultiplexer("mux", 0)
	h.psu = h.graph.AddSink("psu", budget)

	total := spec.CapacityMHz()
	for i, c := range spec.CPUs {
		capacity := float64(c.Cores) * c.MHz
		ps := spec.powerSpec()
		frac := capacity / total
		ps.IdleW *= frac
		ps.MaxW *= frac
		model, err := flow.NewPowerModel(ps)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", spec.Name, err)
		}
		id := h.graph.AddTransformer(fmt.Sprintf("cpu%d", i), capacity, flow.PowerMapping{Model: model, Capacity: capacity})
		if err := h.graph.Connect(h.mux, id); err != nil {
			return nil, err
		}
		if err := h.graph.Connect(id, h.psu); err != nil {
			return nil, err
		}
		h.cpus = append(h.cpus, id)
	}
	return h, nil
}

func (h *Host) Name() string       { return h.spec.Name }
func (h *Host) Spec() HostSpec     { return h.spec }
func (h *Host) Index() int         { return h.index }
func (h *Host) State() HostState   { return h.state }
func (h *Host) Graph() *flow.Graph { return h.graph }

// Servers returns the servers placed on the host in placement order.
func (h *Host) Servers() []*Server {
	out := make([]*Server, len(h.servers))
	copy(out, h.servers)
	return out
}

func (h *Host) UsedCores() int       { return h.usedCores }
func (h *Host) UsedMemoryMiB() int64 { return h.usedMemoryMiB }

// Requested returns the CPU rate requested by the host's servers.
func (h *Host) Requested() float64 { return h.graph.Node(h.mux).Demand() }

// Granted returns the CPU rate the host's servers currently receive.
func (h *Host) Granted() float64 { return h.graph.Node(h.mux).Granted() }

// Power returns the current PSU output in watts.
func (h *Host) Power() float64 { return h.graph.Node(h.psu).Granted() }

// EnergyJ returns the energy consumed since the host was added.
func (h *Host) EnergyJ() float64 { return h.graph.Integral(h.psu) / 1000 }

// Utilization returns granted over total CPU capacity.
func (h *Host) Utilization() float64 {
	return h.Granted() / h.spec.CapacityMHz()
}

func (h *Host) view() scheduler.HostView {
	return scheduler.HostView{
		Name:          h.spec.Name,
		Index:         h.index,
		Up:            h.state == HostUp,
		Cores:         h.spec.Cores(),
		CoreMHz:       h.spec.CoreMHz(),
		MemoryMiB:     h.spec.MemoryMiB,
		UsedCores:     h.usedCores,
		UsedMemoryMiB: h.usedMemoryMiB,
		Instances:     len(h.servers),
	}
}

func (h *Host) record(now int64) telemetry.HostRecord {
	return telemetry.HostRecord{
		Time:      now,
		Host:      h.spec.Name,
		State:     h.state.String(),
		Capacity:  h.spec.CapacityMHz(),
		Requested: h.Requested(),
		Granted:   h.Granted(),
		Workloads: len(h.servers),
		Power:     h.Power(),
		EnergyJ:   h.EnergyJ(),
	}
}

func (h *Host) attach(s *Server) {
	h.servers = append(h.servers, s)
	h.usedCores += s.spec.Cores
	h.usedMemoryMiB += s.spec.MemoryMiB
}

func (h *Host) detach(s *Server) {
	for i, x := range h.servers {
		if x == s {
			h.servers = append(h.servers[:i], h.servers[i+1:]...)
			h.usedCores -= s.spec.Cores
			h.usedMemoryMiB -= s.spec.MemoryMiB
			return
		}
	}
	sim.Fatalf("server %s is not placed on host %s", s.ID(), h.Name())
}
