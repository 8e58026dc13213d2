package scheduler

import "fmt"

// HostView is the scheduler's snapshot of one host. The compute service
// rebuilds views from its own bookkeeping before every decision, so a view
// never lags behind a placement made earlier in the same cycle.
type HostView struct {
	Name string
	// Index is the host's position in the registry. Ties are broken by it.
	Index int
	Up    bool

	Cores     int
	CoreMHz   float64 // speed of the slowest core
	MemoryMiB int64

	UsedCores     int
	UsedMemoryMiB int64
	Instances     int // servers currently placed on the host
}

// FreeCores returns the cores still allocatable under an overcommit ratio.
func (h HostView) FreeCores(ratio float64) float64 {
	return float64(h.Cores)*ratio - float64(h.UsedCores)
}

// FreeMemoryMiB returns the memory still allocatable under an overcommit ratio.
func (h HostView) FreeMemoryMiB(ratio float64) float64 {
	return float64(h.MemoryMiB)*ratio - float64(h.UsedMemoryMiB)
}

func (h HostView) String() string {
	return fmt.Sprintf("%s(cores=%d/%d mem=%d/%d n=%d up=%t)",
		h.Name, h.UsedCores, h.Cores, h.UsedMemoryMiB, h.MemoryMiB, h.Instances, h.Up)
}

// Request describes the server being placed.
type Request struct {
	Server    string
	Cores     int
	MemoryMiB int64
	// CoreMHz is the peak per-core rate the server asks for; zero when the
	// server has no rate requirement.
	CoreMHz float64
	// AvoidHosts lists hosts the server must not land on.
	AvoidHosts map[string]bool
}
