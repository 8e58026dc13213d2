package compute

import (
	"fmt"
	"strings"
)

// WaitQueue is the FIFO of servers waiting for a scheduling cycle.
type WaitQueue struct {
	queue []*Server
}

// Enqueue adds a server to the back of the queue.
func (wq *WaitQueue) Enqueue(s *Server) {
	wq.queue = append(wq.queue, s)
}

// String lists the queued server ids front to back, e.g. "[a b c]".
func (wq *WaitQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, s := range wq.queue {
		sb.WriteString(s.ID())
		if i < len(wq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of queued servers.
func (wq *WaitQueue) Len() int {
	return len(wq.queue)
}

// Drain removes and returns every queued server in FIFO order.
func (wq *WaitQueue) Drain() []*Server {
	out := wq.queue
	wq.queue = nil
	return out
}

// Remove deletes s from the queue. Reports whether it was present.
func (wq *WaitQueue) Remove(s *Server) bool {
	for i, q := range wq.queue {
		if q == s {
			wq.queue = append(wq.queue[:i], wq.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns the queue contents for iteration.
// The returned slice is the queue's internal storage; callers MUST NOT
// append to or reslice it.
func (wq *WaitQueue) Items() []*Server {
	return wq.queue
}

// PrependAll inserts servers at the front of the queue, ahead of everything
// already waiting, in the order given.
func (wq *WaitQueue) PrependAll(servers []*Server) {
	for _, s := range servers {
		if s == nil {
			panic(fmt.Sprintf("PrependAll: server must not be nil (queue %s)", wq))
		}
	}
	front := make([]*Server, 0, len(servers)+len(wq.queue))
	front = append(front, servers...)
	wq.queue = append(front, wq.queue...)
}
