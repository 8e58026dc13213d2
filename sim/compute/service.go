package compute

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/fleetsim/fleet-sim/sim"
	"github.com/fleetsim/fleet-sim/sim/flow"
	"github.com/fleetsim/fleet-sim/sim/scheduler"
	"github.com/fleetsim/fleet-sim/sim/telemetry"
	"github.com/fleetsim/fleet-sim/sim/workload"
)

// Options configures a Service.
type Options struct {
	// Pipeline selects hosts. Nil uses the default filters and weighers.
	Pipeline *scheduler.Pipeline
	Mode     Mode
	// RetryCeiling is the number of failed cycles a server survives; the
	// next failure makes it unschedulable. Zero retries forever.
	RetryCeiling int
	// RequeueFailed puts servers of a failed host back in the queue.
	RequeueFailed bool
	// RecoveryDelay keeps a recovered host in HostRecovering for this many
	// ms before it accepts servers again.
	RecoveryDelay int64
	Sink          telemetry.Sink
	// RNG drives random-mode jitter when the mode carries no seed.
	RNG *rand.Rand
}

// Stats counts what the service has done so far.
type Stats struct {
	Submitted  int
	Cycles     int
	Placements int
	Queued     int
	ByState    map[ServerState]int
}

// Service places servers on hosts and tracks their lifecycle.
//
// All methods must be called from the engine's goroutine, either before the
// run starts or from inside engine callbacks.
type Service struct {
	engine   *sim.Engine
	opts     Options
	pipeline *scheduler.Pipeline
	sink     telemetry.Sink
	jitter   *rand.Rand
	start    int64

	hosts         []*Host
	hostByName    map[string]*Host
	servers       []*Server
	serverByID    map[string]*Server
	queue         WaitQueue
	unschedulable []*Server
	// requeue collects servers failed by one host stop, in stop order.
	requeue  []*Server
	stopping bool

	cycle      sim.Handle
	cycles     int
	placements int
	closed     bool
}

// NewService creates a service whose batch quanta are aligned to the
// engine's current time.
func NewService(engine *sim.Engine, opts Options) (*Service, error) {
	if opts.RetryCeiling < 0 {
		return nil, fmt.Errorf("retry ceiling must be non-negative, got %d", opts.RetryCeiling)
	}
	if opts.RecoveryDelay < 0 {
		return nil, fmt.Errorf("recovery delay must be non-negative, got %d", opts.RecoveryDelay)
	}
	switch opts.Mode.Kind {
	case ModeInteractive:
	case ModeBatch:
		if opts.Mode.Quantum <= 0 {
			return nil, fmt.Errorf("%w: batch quantum must be positive, got %d", ErrInvalidMode, opts.Mode.Quantum)
		}
	case ModeRandom:
		if opts.Mode.MaxJitter < 0 {
			return nil, fmt.Errorf("%w: max jitter must be non-negative, got %d", ErrInvalidMode, opts.Mode.MaxJitter)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, opts.Mode)
	}
	pipeline := opts.Pipeline
	if pipeline == nil {
		var err error
		pipeline, err = scheduler.NewPipeline(scheduler.DefaultFilterConfigs(), scheduler.DefaultWeigherConfigs())
		if err != nil {
			return nil, err
		}
	}
	sink := opts.Sink
	if sink == nil {
		sink = telemetry.Nop{}
	}
	s := &Service{
		engine:     engine,
		opts:       opts,
		pipeline:   pipeline,
		sink:       sink,
		start:      engine.Now(),
		hostByName: make(map[string]*Host),
		serverByID: make(map[string]*Server),
	}
	if opts.Mode.Kind == ModeRandom {
		switch {
		case opts.Mode.HasSeed:
			s.jitter = rand.New(rand.NewSource(opts.Mode.Seed))
		case opts.RNG != nil:
			s.jitter = opts.RNG
		default:
			s.jitter = rand.New(rand.NewSource(0))
		}
	}
	return s, nil
}

// AddHost registers and starts a host.
func (s *Service) AddHost(spec HostSpec) (*Host, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if _, dup := s.hostByName[spec.Name]; dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateHost, spec.Name)
	}
	h, err := newHost(s.engine, spec, len(s.hosts))
	if err != nil {
		return nil, err
	}
	h.graph.Observe(func(now int64) { s.sink.RecordHost(h.record(now)) })
	s.hosts = append(s.hosts, h)
	s.hostByName[spec.Name] = h
	h.graph.Start()
	logrus.Debugf("[t=%07d] host %s added (%d cores, %.0f MHz)", s.engine.Now(), spec.Name, spec.Cores(), spec.CapacityMHz())
	s.kick()
	return h, nil
}

// Host returns the named host, or nil.
func (s *Service) Host(name string) *Host { return s.hostByName[name] }

// Hosts returns the hosts in registration order.
func (s *Service) Hosts() []*Host {
	out := make([]*Host, len(s.hosts))
	copy(out, s.hosts)
	return out
}

// Server returns the server with the given id, or nil.
func (s *Service) Server(id string) *Server { return s.serverByID[id] }

// Servers returns all submitted servers in submission order.
func (s *Service) Servers() []*Server {
	out := make([]*Server, len(s.servers))
	copy(out, s.servers)
	return out
}

// Unschedulable returns the servers given up on, in the order they were.
func (s *Service) Unschedulable() []*Server {
	out := make([]*Server, len(s.unschedulable))
	copy(out, s.unschedulable)
	return out
}

// Queue returns the servers waiting for a cycle in FIFO order.
func (s *Service) Queue() []*Server {
	items := s.queue.Items()
	out := make([]*Server, len(items))
	copy(out, items)
	return out
}

// Stats returns counters and the current distribution of server states.
func (s *Service) Stats() Stats {
	st := Stats{
		Submitted:  len(s.servers),
		Cycles:     s.cycles,
		Placements: s.placements,
		Queued:     s.queue.Len(),
		ByState:    make(map[ServerState]int),
	}
	for _, srv := range s.servers {
		st.ByState[srv.state]++
	}
	return st
}

// Submit registers a server. It joins the queue at its submit time, or
// immediately when that time has passed.
func (s *Service) Submit(spec workload.ServerSpec) (*Server, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if _, dup := s.serverByID[spec.ID]; dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateServer, spec.ID)
	}
	srv := &Server{spec: spec, svc: s, state: StateRequested, submittedAt: -1, startedAt: -1, finishedAt: -1}
	s.servers = append(s.servers, srv)
	s.serverByID[spec.ID] = srv
	s.sink.RecordServer(telemetry.ServerRecord{Time: s.engine.Now(), Server: spec.ID, To: StateRequested.String()})

	now := s.engine.Now()
	if spec.SubmitMs > now {
		srv.hold = s.engine.MustScheduleAt(spec.SubmitMs, func(int64) {
			srv.hold = sim.Handle{}
			s.arrive(srv)
		})
		return srv, nil
	}
	s.arrive(srv)
	return srv, nil
}

func (s *Service) arrive(srv *Server) {
	srv.submittedAt = s.engine.Now()
	s.transition(srv, StateQueued, nil)
	s.queue.Enqueue(srv)
	s.kick()
}

// Delete removes a server: a pending or queued one never runs, a running one
// is evicted from its host.
func (s *Service) Delete(id string) error {
	srv := s.serverByID[id]
	if srv == nil {
		return fmt.Errorf("%w: %q", ErrUnknownServer, id)
	}
	switch srv.state {
	case StateRequested:
		s.engine.Cancel(srv.hold)
		srv.hold = sim.Handle{}
		s.finish(srv, StateDeleted, flow.ErrDetached)
	case StateQueued:
		s.queue.Remove(srv)
		s.finish(srv, StateDeleted, flow.ErrDetached)
	case StateScheduled, StateRunning:
		// The stop event transitions the server.
		if err := srv.host.graph.Remove(srv.node, flow.ErrDetached); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s is %s", ErrServerFinished, id, srv.state)
	}
	return nil
}

// FailHost takes a host down. Every server on it stops and moves to Failed
// (and back to the queue when failed servers are requeued). A nil cause
// defaults to flow.ErrNodeFailed.
func (s *Service) FailHost(name string, cause error) error {
	h := s.hostByName[name]
	if h == nil {
		return fmt.Errorf("%w: %q", ErrUnknownHost, name)
	}
	if h.state != HostUp {
		logrus.Debugf("[t=%07d] host %s already %s", s.engine.Now(), name, h.state)
		return nil
	}
	switch {
	case cause == nil:
		cause = flow.ErrNodeFailed
	case !errors.Is(cause, flow.ErrNodeFailed):
		cause = fmt.Errorf("%w: %v", flow.ErrNodeFailed, cause)
	}
	now := s.engine.Now()
	h.state = HostFailed
	logrus.Infof("[t=%07d] host %s failed with %d servers", now, name, len(h.servers))
	s.sink.RecordFault(telemetry.FaultRecord{Time: now, Host: name, Kind: telemetry.FaultFail})
	s.stopping = true
	h.graph.Stop(cause)
	s.stopping = false
	s.flushRequeue()
	s.kick()
	return nil
}

// RecoverHost brings a failed host back, after the configured recovery delay
// if any.
func (s *Service) RecoverHost(name string) error {
	h := s.hostByName[name]
	if h == nil {
		return fmt.Errorf("%w: %q", ErrUnknownHost, name)
	}
	if h.state != HostFailed {
		logrus.Debugf("[t=%07d] host %s is %s, not recovering", s.engine.Now(), name, h.state)
		return nil
	}
	if s.opts.RecoveryDelay == 0 {
		s.hostUp(h)
		return nil
	}
	h.state = HostRecovering
	s.sink.RecordHost(h.record(s.engine.Now()))
	h.recovery = s.engine.MustScheduleAt(s.engine.Now()+s.opts.RecoveryDelay, func(int64) {
		h.recovery = sim.Handle{}
		s.hostUp(h)
	})
	return nil
}

func (s *Service) hostUp(h *Host) {
	now := s.engine.Now()
	h.state = HostUp
	logrus.Infof("[t=%07d] host %s recovered", now, h.Name())
	s.sink.RecordFault(telemetry.FaultRecord{Time: now, Host: h.Name(), Kind: telemetry.FaultRecover})
	h.graph.Start()
	s.kick()
}

// Flush emits a host record for every host at the current instant, e.g. to
// capture energy at the end of a run.
func (s *Service) Flush() {
	now := s.engine.Now()
	for _, h := range s.hosts {
		s.sink.RecordHost(h.record(now))
	}
}

// Close cancels pending cycles, arrivals and recoveries. Running servers
// keep running; hosts keep their state.
func (s *Service) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.engine.Cancel(s.cycle)
	s.cycle = sim.Handle{}
	for _, srv := range s.servers {
		if srv.hold.Active() {
			s.engine.Cancel(srv.hold)
			srv.hold = sim.Handle{}
		}
	}
	for _, h := range s.hosts {
		s.engine.Cancel(h.recovery)
		h.recovery = sim.Handle{}
	}
}

// kick makes sure a cycle is pending when servers are waiting.
func (s *Service) kick() {
	if s.closed || s.queue.Len() == 0 || s.cycle.Active() {
		return
	}
	now := s.engine.Now()
	var at int64
	switch s.opts.Mode.Kind {
	case ModeInteractive:
		at = now
	case ModeBatch:
		q := s.opts.Mode.Quantum
		at = s.start + ((now-s.start)/q+1)*q
	case ModeRandom:
		at = now + s.jitter.Int63n(s.opts.Mode.MaxJitter+1)
	}
	s.cycle = s.engine.MustScheduleAt(at, s.runCycle)
}

// runCycle drains the queue once in FIFO order. Timed modes schedule the
// next cycle while servers wait, unless retries are unlimited and this cycle
// placed nothing; then only an arrival, a stop or a host coming up kicks.
func (s *Service) runCycle(now int64) {
	s.cycle = sim.Handle{}
	s.cycles++
	logrus.Debugf("[t=%07d] cycle %d: pending %s", now, s.cycles, &s.queue)
	pending := s.queue.Drain()

	placed := 0
	for _, srv := range pending {
		if srv.state != StateQueued {
			sim.Fatalf("server %s in queue while %s", srv.ID(), srv.state)
		}
		if h := s.selectHost(srv); h != nil {
			err := s.place(srv, h)
			if err == nil {
				placed++
				continue
			}
			logrus.Warnf("[t=%07d] placing %s on %s: %v", now, srv.ID(), h.Name(), err)
		}
		srv.attempts++
		if s.opts.RetryCeiling > 0 && srv.attempts > s.opts.RetryCeiling {
			logrus.Warnf("[t=%07d] server %s unschedulable after %d cycles", now, srv.ID(), srv.attempts)
			s.finish(srv, StateUnschedulable, nil)
			s.unschedulable = append(s.unschedulable, srv)
			continue
		}
		s.queue.Enqueue(srv)
	}

	switch {
	case s.opts.Mode.Kind == ModeInteractive:
	case placed == 0 && s.opts.RetryCeiling == 0:
		if s.queue.Len() > 0 {
			logrus.Debugf("[t=%07d] cycle %d placed nothing, waiting for capacity", now, s.cycles)
		}
	default:
		s.kick()
	}
}

// selectHost offers the pipeline only hosts that are up.
func (s *Service) selectHost(srv *Server) *Host {
	views := make([]scheduler.HostView, 0, len(s.hosts))
	for _, h := range s.hosts {
		if h.state == HostUp {
			views = append(views, h.view())
		}
	}
	v, ok := s.pipeline.Select(views, srv.request())
	if !ok {
		return nil
	}
	return s.hosts[v.Index]
}

// place starts srv on h: Scheduled, then Running once the host graph
// delivers the start event.
func (s *Service) place(srv *Server, h *Host) error {
	if srv.host != nil {
		sim.Fatalf("server %s placed on %s while already on %s", srv.ID(), h.Name(), srv.host.Name())
	}
	b, err := srv.newBehavior(h)
	if err != nil {
		return err
	}
	s.transition(srv, StateScheduled, h)
	srv.host = h
	srv.behavior = b
	srv.attempts = 0
	srv.placements++
	s.placements++
	h.attach(srv)

	srv.node = h.graph.AddSource(srv.ID(), b)
	if err := h.graph.Connect(srv.node, h.mux); err != nil {
		sim.Fatalf("connecting %s on host %s: %v", srv.ID(), h.Name(), err)
	}
	return nil
}

// onServerEvent receives the flow events of a placed server.
func (s *Service) onServerEvent(srv *Server, ev flow.Event) {
	switch ev.Kind {
	case flow.EventStart:
		if srv.state == StateScheduled {
			srv.startedAt = ev.Time
			s.transition(srv, StateRunning, srv.host)
		}
	case flow.EventStop:
		h := srv.host
		h.detach(srv)
		srv.host = nil
		srv.delivered += srv.behavior.delivered
		srv.behavior = nil
		switch {
		case ev.Cause == nil:
			s.finish(srv, StateTerminated, nil)
		case errors.Is(ev.Cause, flow.ErrDetached):
			s.finish(srv, StateDeleted, ev.Cause)
		default:
			s.finish(srv, StateFailed, ev.Cause)
			if s.opts.RequeueFailed && !s.closed {
				srv.finishedAt = -1
				s.transition(srv, StateQueued, nil)
				s.requeue = append(s.requeue, srv)
			}
		}
		if !s.stopping {
			s.flushRequeue()
		}
		s.kick()
	}
}

// flushRequeue puts collected failed servers at the queue front, keeping
// their placement order.
func (s *Service) flushRequeue() {
	if len(s.requeue) == 0 {
		return
	}
	s.queue.PrependAll(s.requeue)
	s.requeue = nil
}

// finish moves srv into a state that ends its current placement.
func (s *Service) finish(srv *Server, to ServerState, cause error) {
	srv.finishedAt = s.engine.Now()
	srv.cause = cause
	s.transition(srv, to, nil)
}

// transition moves srv to a new state and records the move. Illegal moves
// abort the run.
func (s *Service) transition(srv *Server, to ServerState, h *Host) {
	from := srv.state
	if !CanTransition(from, to) {
		sim.Fatalf("server %s: illegal transition %s -> %s", srv.ID(), from, to)
	}
	logrus.Debugf("[t=%07d] server %s: %s -> %s", s.engine.Now(), srv.ID(), from, to)
	srv.state = to
	rec := telemetry.ServerRecord{
		Time:   s.engine.Now(),
		Server: srv.ID(),
		From:   from.String(),
		To:     to.String(),
	}
	if h != nil {
		rec.Host = h.Name()
	}
	if to.Terminal() && srv.cause != nil {
		rec.Reason = srv.cause.Error()
	}
	s.sink.RecordServer(rec)
}
