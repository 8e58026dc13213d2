// Package scenario wires a topology, a workload and a policy bundle into a
// runnable simulation.
package scenario

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fleetsim/fleet-sim/sim"
	"github.com/fleetsim/fleet-sim/sim/compute"
	"github.com/fleetsim/fleet-sim/sim/faults"
	"github.com/fleetsim/fleet-sim/sim/telemetry"
	"github.com/fleetsim/fleet-sim/sim/workload"
)

// Config is everything a run needs.
type Config struct {
	Topology *compute.Topology
	Workload *workload.WorkloadSpec
	// Policy nil runs the default scheduler without faults.
	Policy *PolicyBundle

	Seed int64
	// Horizon bounds the run in ms. Zero runs until nothing is scheduled,
	// which requires faults to stop at some point.
	Horizon int64

	// Level selects what the in-memory recorder keeps.
	Level telemetry.Level
	// Sink additionally receives every record, e.g. a PrometheusSink.
	Sink telemetry.Sink
}

// Validate checks the inputs without building anything.
func (c Config) Validate() error {
	if c.Topology == nil {
		return fmt.Errorf("topology is required")
	}
	if err := c.Topology.Validate(); err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	if c.Workload == nil {
		return fmt.Errorf("workload is required")
	}
	if err := c.Workload.Validate(); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	if c.Policy != nil {
		if err := c.Policy.Validate(); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
		if c.Horizon == 0 && c.Policy.Faults.Enabled && c.Policy.Faults.Until == 0 {
			return fmt.Errorf("faults without faults.until need a horizon")
		}
	}
	if c.Horizon < 0 {
		return fmt.Errorf("horizon must be non-negative, got %d", c.Horizon)
	}
	if !telemetry.IsValidLevel(string(c.Level)) {
		return fmt.Errorf("unknown trace level %q", c.Level)
	}
	return nil
}

// Simulation is a wired, not yet run, scenario.
type Simulation struct {
	Engine   *sim.Engine
	Service  *compute.Service
	Injector *faults.Injector
	Recorder *telemetry.Recorder
	RNG      *sim.PartitionedRNG

	cfg     Config
	servers []workload.ServerSpec
}

// Result is the outcome of Run.
type Result struct {
	EndTime int64
	Events  uint64
	Stats   compute.Stats
	Faults  faults.Stats
	Summary *telemetry.Summary
}

// New validates cfg and builds the engine, hosts, scheduler and injector.
func New(cfg Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy := cfg.Policy
	if policy == nil {
		policy = &PolicyBundle{}
	}
	pipeline, err := policy.Scheduler.Pipeline()
	if err != nil {
		return nil, err
	}
	mode, err := compute.ParseMode(policy.Scheduler.Mode)
	if err != nil {
		return nil, err
	}

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	servers, err := cfg.Workload.Expand(rng.Seed(sim.SubsystemWorkload))
	if err != nil {
		return nil, fmt.Errorf("workload: %w", err)
	}

	engine := sim.NewEngine()
	rec := telemetry.NewRecorder(cfg.Level)
	svc, err := compute.NewService(engine, compute.Options{
		Pipeline:      pipeline,
		Mode:          mode,
		RetryCeiling:  policy.Scheduler.RetryCeiling,
		RequeueFailed: policy.Scheduler.RequeueFailed,
		RecoveryDelay: policy.Scheduler.RecoveryDelayMs,
		Sink:          telemetry.Multi(rec, cfg.Sink),
		RNG:           rng.ForSubsystem(sim.SubsystemScheduler),
	})
	if err != nil {
		return nil, err
	}
	for _, h := range cfg.Topology.Expand() {
		if _, err := svc.AddHost(h); err != nil {
			return nil, err
		}
	}
	inj, err := faults.New(engine, svc, policy.Faults, rng.ForSubsystem(sim.SubsystemFaults))
	if err != nil {
		return nil, err
	}
	return &Simulation{
		Engine:   engine,
		Service:  svc,
		Injector: inj,
		Recorder: rec,
		RNG:      rng,
		cfg:      cfg,
		servers:  servers,
	}, nil
}

// Servers returns the expanded workload in submission order.
func (s *Simulation) Servers() []workload.ServerSpec { return s.servers }

// Run submits the workload, starts fault injection and advances the engine
// to the horizon, or until nothing is left to do.
func (s *Simulation) Run() (*Result, error) {
	for _, spec := range s.servers {
		if _, err := s.Service.Submit(spec); err != nil {
			return nil, err
		}
	}
	s.Injector.Start()
	logrus.Infof("running %d servers on %d hosts (horizon %d ms)", len(s.servers), len(s.Service.Hosts()), s.cfg.Horizon)

	if s.cfg.Horizon > 0 {
		s.Engine.RunUntil(s.cfg.Horizon)
	} else {
		s.Engine.RunUntilIdle()
	}
	s.Service.Flush()
	s.Injector.Close()
	s.Service.Close()

	res := &Result{
		EndTime: s.Engine.Now(),
		Events:  s.Engine.Fired(),
		Stats:   s.Service.Stats(),
		Faults:  s.Injector.Stats(),
		Summary: telemetry.Summarize(s.Recorder),
	}
	logrus.Infof("[t=%07d] run finished: %d events, %d placements, %d unschedulable",
		res.EndTime, res.Events, res.Stats.Placements, len(s.Service.Unschedulable()))
	return res, nil
}
