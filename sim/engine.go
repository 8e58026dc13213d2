package sim

import (
	"container/heap"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Callback is invoked by the Engine when a scheduled deadline is reached.
// now equals the engine clock at the time of the call.
type Callback func(now int64)

// entry is a single scheduled callback. index is its position in the heap,
// -1 once it has fired or been cancelled.
type entry struct {
	deadline int64
	seq      uint64
	fn       Callback
	index    int
}

// eventQueue is a min-heap ordered by (deadline, seq).
// Equal deadlines pop in insertion order.
type eventQueue []*entry

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].deadline != q[j].deadline {
		return q[i].deadline < q[j].deadline
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Handle identifies a scheduled callback. The zero Handle refers to nothing
// and may be cancelled safely.
type Handle struct {
	e *entry
}

// Active reports whether the callback is still waiting to fire.
func (h Handle) Active() bool {
	return h.e != nil && h.e.index >= 0
}

// Deadline returns the virtual time the callback was scheduled for.
func (h Handle) Deadline() int64 {
	if h.e == nil {
		return 0
	}
	return h.e.deadline
}

// Engine owns the virtual clock and the event queue. It is single-threaded:
// callbacks run one at a time and may schedule or cancel further callbacks.
type Engine struct {
	clock int64
	seq   uint64
	queue eventQueue
	fired uint64
}

// NewEngine returns an engine with its clock at zero.
func NewEngine() *Engine {
	return &Engine{queue: make(eventQueue, 0)}
}

// Now returns the current virtual time in milliseconds.
func (e *Engine) Now() int64 {
	return e.clock
}

// Pending returns the number of callbacks waiting to fire.
func (e *Engine) Pending() int {
	return len(e.queue)
}

// Fired returns the number of callbacks executed so far.
func (e *Engine) Fired() uint64 {
	return e.fired
}

// ScheduleAt registers fn to run at deadline. A deadline before Now is
// rejected with ErrInvalidDeadline.
func (e *Engine) ScheduleAt(deadline int64, fn Callback) (Handle, error) {
	if deadline < e.clock {
		return Handle{}, fmt.Errorf("%w: deadline %d is before now %d", ErrInvalidDeadline, deadline, e.clock)
	}
	if fn == nil {
		return Handle{}, fmt.Errorf("schedule at %d: nil callback", deadline)
	}
	e.seq++
	en := &entry{deadline: deadline, seq: e.seq, fn: fn}
	heap.Push(&e.queue, en)
	return Handle{e: en}, nil
}

// ScheduleAfter registers fn to run delay milliseconds from now.
func (e *Engine) ScheduleAfter(delay int64, fn Callback) (Handle, error) {
	if delay < 0 {
		return Handle{}, fmt.Errorf("%w: negative delay %d", ErrInvalidDeadline, delay)
	}
	return e.ScheduleAt(e.clock+delay, fn)
}

// MustScheduleAt is ScheduleAt for internal callers whose deadlines are
// derived from the clock. A rejected deadline aborts the run.
func (e *Engine) MustScheduleAt(deadline int64, fn Callback) Handle {
	h, err := e.ScheduleAt(deadline, fn)
	if err != nil {
		Fatalf("%v", err)
	}
	return h
}

// Cancel removes the callback behind h from the queue. Cancelling a handle
// that already fired or was cancelled is a no-op. Reports whether anything
// was removed.
func (e *Engine) Cancel(h Handle) bool {
	if !h.Active() {
		return false
	}
	heap.Remove(&e.queue, h.e.index)
	return true
}

// Step pops the earliest callback, advances the clock to its deadline and
// runs it. Returns false when the queue is empty.
func (e *Engine) Step() bool {
	if len(e.queue) == 0 {
		return false
	}
	en := heap.Pop(&e.queue).(*entry)
	if en.deadline < e.clock {
		Fatalf("clock went backwards: %d < %d", en.deadline, e.clock)
	}
	e.clock = en.deadline
	e.fired++
	logrus.Tracef("[t=%07d] firing event #%d", e.clock, en.seq)
	en.fn(e.clock)
	return true
}

// RunUntil runs every callback with a deadline at or before horizon and then
// moves the clock to horizon. Callbacks past the horizon stay queued.
func (e *Engine) RunUntil(horizon int64) {
	for len(e.queue) > 0 && e.queue[0].deadline <= horizon {
		e.Step()
	}
	if horizon > e.clock {
		e.clock = horizon
	}
	logrus.Debugf("[t=%07d] run reached horizon, %d events pending", e.clock, len(e.queue))
}

// RunUntilIdle runs callbacks until the queue is empty.
func (e *Engine) RunUntilIdle() {
	for e.Step() {
	}
	logrus.Debugf("[t=%07d] event queue drained", e.clock)
}
