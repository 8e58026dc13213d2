package flow

import "fmt"

// Command is the decision a source makes for the interval starting now.
type Command struct {
	// Rate is the requested rate for the interval.
	Rate float64
	// Duration bounds the interval in milliseconds; negative means no bound.
	Duration int64
	// Work, when positive, ends the interval once that many rate·ms units
	// have been delivered at the granted rate.
	Work float64
	// Done finishes the source; the graph removes it and delivers a stop
	// event with a nil cause.
	Done bool
}

// Consume requests rate for at most d milliseconds.
func Consume(rate float64, d int64) Command {
	return Command{Rate: rate, Duration: d}
}

// Idle requests nothing until the source is resumed with OnDemandChanged.
func Idle() Command {
	return Command{Duration: -1}
}

// Finish ends the source.
func Finish() Command {
	return Command{Done: true, Duration: -1}
}

func (c Command) String() string {
	if c.Done {
		return "finish"
	}
	return fmt.Sprintf("consume(rate=%.3f, duration=%d, work=%.3f)", c.Rate, c.Duration, c.Work)
}

// EventKind enumerates lifecycle notifications delivered to nodes.
type EventKind int

const (
	// EventStart is delivered when a node joins a running graph or the
	// graph starts.
	EventStart EventKind = iota
	// EventInterval is delivered after each recomputation with the granted rate.
	EventInterval
	// EventStop is terminal for sources: completion, failure or detachment.
	EventStop
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventInterval:
		return "interval"
	case EventStop:
		return "stop"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a lifecycle notification.
type Event struct {
	Kind EventKind
	Time int64
	// Rate is the granted rate for EventInterval.
	Rate float64
	// Cause is set on EventStop: nil when a source completed, ErrNodeFailed
	// or ErrDetached otherwise.
	Cause error
}

// Behavior drives a Source.
type Behavior interface {
	// Next accounts the interval that just ended (elapsed milliseconds at
	// the granted rate) and returns the command for the interval starting
	// at now.
	Next(now, elapsed int64, granted float64) Command
	// OnEvent delivers lifecycle notifications.
	OnEvent(ev Event)
}
