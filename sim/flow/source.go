package flow

import (
	"fmt"
	"math"
)

// BurstSource consumes a fixed amount of work at a fixed requested rate and
// finishes once the work has been delivered.
type BurstSource struct {
	work      float64
	rate      float64
	remaining float64

	started  int64
	finished int64
	cause    error
	running  bool
}

// NewBurstSource returns a source requesting rate until work rate·ms units
// have been delivered.
func NewBurstSource(work, rate float64) *BurstSource {
	return &BurstSource{work: work, rate: rate, remaining: work, started: -1, finished: -1}
}

func (b *BurstSource) Next(now, elapsed int64, granted float64) Command {
	b.remaining -= granted * float64(elapsed)
	if b.remaining <= b.work*1e-12 {
		b.remaining = 0
		return Finish()
	}
	return Command{Rate: b.rate, Duration: -1, Work: b.remaining}
}

func (b *BurstSource) OnEvent(ev Event) {
	switch ev.Kind {
	case EventStart:
		if b.started < 0 {
			b.started = ev.Time
		}
		b.running = true
	case EventStop:
		b.finished = ev.Time
		b.cause = ev.Cause
		b.running = false
	}
}

// Remaining returns the work not yet delivered.
func (b *BurstSource) Remaining() float64 { return math.Max(b.remaining, 0) }

// Delivered returns the work delivered so far.
func (b *BurstSource) Delivered() float64 { return b.work - b.Remaining() }

// Started returns the instant the source first started, or -1.
func (b *BurstSource) Started() int64 { return b.started }

// Finished returns the instant the source stopped, or -1, and the stop cause.
func (b *BurstSource) Finished() (int64, error) { return b.finished, b.cause }

// Segment is one constant-rate slice of a trace, relative to the source's
// start.
type Segment struct {
	Offset   int64
	Duration int64
	Rate     float64
}

func (s Segment) end() int64 { return s.Offset + s.Duration }

// TraceSource replays a sequence of segments. Gaps between segments request
// nothing; the source finishes at the end of the last segment regardless of
// how much of the requested work was granted.
type TraceSource struct {
	segments  []Segment
	cursor    int
	start     int64
	lastRate  float64
	requested float64
	delivered float64
	finished  int64
	cause     error
}

// NewTraceSource validates segments and returns a source replaying them.
// Segments must be ordered by offset and must not overlap.
func NewTraceSource(segments []Segment) (*TraceSource, error) {
	var prevEnd int64
	for i, s := range segments {
		if s.Offset < 0 || s.Duration <= 0 {
			return nil, fmt.Errorf("segment %d: offset must be >= 0 and duration > 0, got offset=%d duration=%d", i, s.Offset, s.Duration)
		}
		if s.Rate < 0 || math.IsNaN(s.Rate) || math.IsInf(s.Rate, 0) {
			return nil, fmt.Errorf("segment %d: rate must be a finite non-negative number, got %v", i, s.Rate)
		}
		if s.Offset < prevEnd {
			return nil, fmt.Errorf("segment %d: starts at %d before previous segment ends at %d", i, s.Offset, prevEnd)
		}
		prevEnd = s.end()
	}
	cp := make([]Segment, len(segments))
	copy(cp, segments)
	return &TraceSource{segments: cp, start: -1, finished: -1}, nil
}

func (t *TraceSource) Next(now, elapsed int64, granted float64) Command {
	t.delivered += granted * float64(elapsed)
	t.requested += t.lastRate * float64(elapsed)
	t.lastRate = 0
	if t.start < 0 {
		t.start = now
	}
	rel := now - t.start
	for t.cursor < len(t.segments) && rel >= t.segments[t.cursor].end() {
		t.cursor++
	}
	if t.cursor == len(t.segments) {
		return Finish()
	}
	s := t.segments[t.cursor]
	if rel < s.Offset {
		return Consume(0, s.Offset-rel)
	}
	t.lastRate = s.Rate
	return Consume(s.Rate, s.end()-rel)
}

func (t *TraceSource) OnEvent(ev Event) {
	switch ev.Kind {
	case EventStart:
		if t.start < 0 {
			t.start = ev.Time
		}
	case EventStop:
		t.finished = ev.Time
		t.cause = ev.Cause
	}
}

// Requested returns the work requested so far, in rate·ms.
func (t *TraceSource) Requested() float64 { return t.requested }

// Delivered returns the work actually granted so far, in rate·ms.
func (t *TraceSource) Delivered() float64 { return t.delivered }

// Finished returns the instant the source stopped, or -1, and the stop cause.
func (t *TraceSource) Finished() (int64, error) { return t.finished, t.cause }
