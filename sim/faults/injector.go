package faults

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/fleetsim/fleet-sim/sim"
	"github.com/fleetsim/fleet-sim/sim/compute"
	"github.com/fleetsim/fleet-sim/sim/workload"
)

// Stats counts what an injector has done.
type Stats struct {
	Faults     int // fault arrivals
	Failures   int // hosts failed
	Recoveries int
	Skipped    int // arrivals with no healthy host
}

// Injector fails and recovers hosts of a compute service.
type Injector struct {
	engine  *sim.Engine
	service *compute.Service
	cfg     Config
	rng     *rand.Rand

	interArrival workload.Sampler
	victim       workload.Sampler
	duration     workload.Sampler

	next       sim.Handle
	recoveries map[string]sim.Handle
	stats      Stats
	started    bool
	closed     bool
}

// New creates an injector. Faults draw from rng unless cfg.Seed is set.
func New(engine *sim.Engine, service *compute.Service, cfg Config, rng *rand.Rand) (*Injector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case cfg.Seed != 0:
		rng = rand.New(rand.NewSource(cfg.Seed))
	case rng == nil:
		rng = rand.New(rand.NewSource(0))
	}
	inj := &Injector{
		engine:     engine,
		service:    service,
		cfg:        cfg,
		rng:        rng,
		victim:     workload.ConstantSampler{},
		recoveries: make(map[string]sim.Handle),
	}
	if !cfg.Enabled {
		return inj, nil
	}
	var err error
	if inj.interArrival, err = workload.NewSampler(cfg.InterArrival, rng); err != nil {
		return nil, fmt.Errorf("inter_arrival: %w", err)
	}
	if !cfg.Victim.IsZero() {
		if inj.victim, err = workload.NewSampler(cfg.Victim, rng); err != nil {
			return nil, fmt.Errorf("victim: %w", err)
		}
	}
	if inj.duration, err = workload.NewSampler(cfg.Duration, rng); err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	return inj, nil
}

// Start schedules the first fault. A disabled injector does nothing.
func (inj *Injector) Start() {
	if !inj.cfg.Enabled || inj.started || inj.closed {
		return
	}
	inj.started = true
	inj.scheduleNext()
}

// Close cancels the pending fault and every pending recovery. Failed hosts
// stay failed.
func (inj *Injector) Close() {
	if inj.closed {
		return
	}
	inj.closed = true
	inj.engine.Cancel(inj.next)
	inj.next = sim.Handle{}
	for name, h := range inj.recoveries {
		inj.engine.Cancel(h)
		delete(inj.recoveries, name)
	}
}

// Until returns the instant after which no new faults are injected, or 0.
func (inj *Injector) Until() int64 { return inj.cfg.Until }

// Stats returns the injector's counters.
func (inj *Injector) Stats() Stats { return inj.stats }

// Pending reports whether a fault or a recovery is scheduled.
func (inj *Injector) Pending() bool {
	return inj.next.Active() || len(inj.recoveries) > 0
}

func (inj *Injector) scheduleNext() {
	at := inj.engine.Now() + max(workload.Millis(inj.interArrival.Rand()), 1)
	if inj.cfg.Until > 0 && at > inj.cfg.Until {
		logrus.Debugf("[t=%07d] next fault at %d is past %d, injector idle", inj.engine.Now(), at, inj.cfg.Until)
		inj.next = sim.Handle{}
		return
	}
	inj.next = inj.engine.MustScheduleAt(at, inj.fire)
}

func (inj *Injector) fire(now int64) {
	inj.next = sim.Handle{}
	inj.stats.Faults++

	var healthy []*compute.Host
	for _, h := range inj.service.Hosts() {
		if h.State() == compute.HostUp {
			healthy = append(healthy, h)
		}
	}
	if len(healthy) == 0 {
		inj.stats.Skipped++
		logrus.Debugf("[t=%07d] fault arrived with no healthy host", now)
		inj.scheduleNext()
		return
	}

	k := victimCount(inj.victim.Rand(), len(healthy))
	for _, h := range chooseVictims(inj.rng, healthy, k) {
		name := h.Name()
		if err := inj.service.FailHost(name, nil); err != nil {
			sim.Fatalf("failing host %s: %v", name, err)
		}
		inj.stats.Failures++
		down := workload.Millis(inj.duration.Rand())
		logrus.Warnf("[t=%07d] fault: host %s down for %d ms", now, name, down)
		inj.recoveries[name] = inj.engine.MustScheduleAt(now+down, func(int64) {
			delete(inj.recoveries, name)
			inj.stats.Recoveries++
			if err := inj.service.RecoverHost(name); err != nil {
				sim.Fatalf("recovering host %s: %v", name, err)
			}
		})
	}
	inj.scheduleNext()
}
