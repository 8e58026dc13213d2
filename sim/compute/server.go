package compute

import (
	"fmt"
	"math"

	"github.com/fleetsim/fleet-sim/sim"
	"github.com/fleetsim/fleet-sim/sim/flow"
	"github.com/fleetsim/fleet-sim/sim/scheduler"
	"github.com/fleetsim/fleet-sim/sim/workload"
)

// Server is a virtual machine tracked by the compute service.
type Server struct {
	spec  workload.ServerSpec
	svc   *Service
	state ServerState

	host     *Host
	node     flow.NodeID
	behavior *serverSource
	hold     sim.Handle // pending arrival for future submit times

	attempts    int // consecutive failed scheduling cycles
	placements  int
	submittedAt int64
	startedAt   int64
	finishedAt  int64
	delivered   float64 // MHz·ms across all placements
	cause       error
}

func (s *Server) ID() string                { return s.spec.ID }
func (s *Server) Spec() workload.ServerSpec { return s.spec }
func (s *Server) State() ServerState        { return s.state }

// Host returns the host the server runs on, or nil.
func (s *Server) Host() *Host { return s.host }

// Attempts returns the number of consecutive failed scheduling cycles.
func (s *Server) Attempts() int { return s.attempts }

// Placements returns how many times the server was placed.
func (s *Server) Placements() int { return s.placements }

// SubmittedAt returns the instant the server entered the queue.
func (s *Server) SubmittedAt() int64 { return s.submittedAt }

// StartedAt returns the instant the server last started running, or -1.
func (s *Server) StartedAt() int64 { return s.startedAt }

// FinishedAt returns the instant the server reached a terminal state, or -1.
func (s *Server) FinishedAt() int64 { return s.finishedAt }

// Cause returns why the server last stopped, or nil.
func (s *Server) Cause() error { return s.cause }

// Delivered returns the CPU work granted to the server so far in MHz·ms.
func (s *Server) Delivered() float64 {
	d := s.delivered
	if s.behavior != nil {
		d += s.behavior.deliveredAt(s.svc.engine.Now())
	}
	return d
}

func (s *Server) String() string {
	host := "-"
	if s.host != nil {
		host = s.host.Name()
	}
	return fmt.Sprintf("%s(%s@%s)", s.spec.ID, s.state, host)
}

func (s *Server) request() scheduler.Request {
	var avoid map[string]bool
	if len(s.spec.AvoidHosts) > 0 {
		avoid = make(map[string]bool, len(s.spec.AvoidHosts))
		for _, h := range s.spec.AvoidHosts {
			avoid[h] = true
		}
	}
	return scheduler.Request{
		Server:     s.spec.ID,
		Cores:      s.spec.Cores,
		MemoryMiB:  s.spec.MemoryMiB,
		CoreMHz:    s.spec.PeakCoreMHz(),
		AvoidHosts: avoid,
	}
}

// newBehavior builds the flow behavior that replays the server's demand on
// host h. Rates are capped at the server's cores running at host speed.
func (s *Server) newBehavior(h *Host) (*serverSource, error) {
	coreMHz := h.spec.CoreMHz()
	var inner flow.Behavior
	if b := s.spec.Burst; b != nil {
		limit := float64(s.spec.Cores) * coreMHz
		rate := limit
		if b.RateMHz > 0 {
			rate = math.Min(b.RateMHz, limit)
		}
		inner = flow.NewBurstSource(b.Work, rate)
	} else {
		segs := make([]flow.Segment, len(s.spec.Fragments))
		for i, f := range s.spec.Fragments {
			limit := float64(s.spec.FragmentCores(f)) * coreMHz
			segs[i] = flow.Segment{Offset: f.OffsetMs, Duration: f.DurationMs, Rate: math.Min(f.RateMHz, limit)}
		}
		tr, err := flow.NewTraceSource(segs)
		if err != nil {
			return nil, fmt.Errorf("server %s: %w", s.spec.ID, err)
		}
		inner = tr
	}
	return &serverSource{srv: s, inner: inner}, nil
}

// serverSource adapts a demand behavior to report lifecycle events back to
// the service.
type serverSource struct {
	srv       *Server
	inner     flow.Behavior
	delivered float64
	rate      float64 // granted at the last recomputation
	last      int64   // end of the accounted span
}

func (b *serverSource) Next(now, elapsed int64, granted float64) flow.Command {
	b.delivered += granted * float64(elapsed)
	b.last = now
	return b.inner.Next(now, elapsed, granted)
}

// deliveredAt includes the work granted since the last recomputation.
func (b *serverSource) deliveredAt(now int64) float64 {
	if now <= b.last {
		return b.delivered
	}
	return b.delivered + b.rate*float64(now-b.last)
}

func (b *serverSource) OnEvent(ev flow.Event) {
	switch ev.Kind {
	case flow.EventStart:
		b.last = ev.Time
	case flow.EventInterval:
		b.rate = ev.Rate
	case flow.EventStop:
		// A detached source is not advanced to the stop instant.
		if ev.Time > b.last {
			b.delivered += b.rate * float64(ev.Time-b.last)
			b.last = ev.Time
		}
	}
	b.inner.OnEvent(ev)
	b.srv.svc.onServerEvent(b.srv, ev)
}
