package compute

import (
	"testing"

	"github.com/fleetsim/fleet-sim/sim/workload"
)

func queued(id string) *Server {
	return &Server{spec: workload.ServerSpec{ID: id}}
}

func TestWaitQueue_String_ListsFrontToBack(t *testing.T) {
	wq := &WaitQueue{}
	if wq.String() != "[]" {
		t.Errorf("empty queue: got %s, want []", wq.String())
	}
	wq.Enqueue(queued("A"))
	wq.Enqueue(queued("B"))
	if wq.String() != "[A B]" {
		t.Errorf("got %s, want [A B]", wq.String())
	}
}

func TestWaitQueue_PrependAll_KeepsBlockOrder(t *testing.T) {
	// GIVEN a queue with servers [A, B]
	wq := &WaitQueue{}
	for _, id := range []string{"A", "B"} {
		wq.Enqueue(queued(id))
	}

	// WHEN PrependAll(X, Y, Z) is called
	wq.PrependAll([]*Server{queued("X"), queued("Y"), queued("Z")})

	// THEN the block is served first in its own order and the rest follow
	if wq.String() != "[X Y Z A B]" {
		t.Errorf("PrependAll: got %s, want [X Y Z A B]", wq.String())
	}
	if wq.Len() != 5 {
		t.Errorf("PrependAll: Len() got %d, want 5", wq.Len())
	}
}

func TestWaitQueue_PrependAll_Empty_NoChange(t *testing.T) {
	wq := &WaitQueue{}
	wq.Enqueue(queued("A"))
	wq.PrependAll(nil)
	if wq.String() != "[A]" {
		t.Errorf("got %s, want [A]", wq.String())
	}
}

func TestWaitQueue_Remove(t *testing.T) {
	wq := &WaitQueue{}
	a, b, c := queued("A"), queued("B"), queued("C")
	wq.Enqueue(a)
	wq.Enqueue(b)
	wq.Enqueue(c)

	if !wq.Remove(b) {
		t.Fatal("Remove(B) reported absent")
	}
	if wq.Remove(b) {
		t.Error("second Remove(B) reported present")
	}
	if wq.String() != "[A C]" {
		t.Errorf("after Remove: got %s, want [A C]", wq.String())
	}
}

func TestWaitQueue_Drain_EmptiesQueue(t *testing.T) {
	wq := &WaitQueue{}
	wq.Enqueue(queued("A"))
	wq.Enqueue(queued("B"))

	got := wq.Drain()

	if len(got) != 2 || got[0].ID() != "A" || got[1].ID() != "B" {
		t.Errorf("Drain: got %v, want [A B]", got)
	}
	if wq.Len() != 0 {
		t.Errorf("Drain left %d servers", wq.Len())
	}
	wq.Enqueue(queued("C"))
	if got[0].ID() != "A" {
		t.Error("Enqueue after Drain overwrote the drained slice")
	}
}
