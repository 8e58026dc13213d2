package scheduler

import (
	"fmt"
	"sort"
)

// Filter is a placement predicate. Hosts for which Test returns false are
// removed from the candidate list.
type Filter interface {
	Name() string
	Test(h HostView, req Request) bool
}

// validFilterNames maps filter names to whether they take a parameter.
// Unexported to prevent mutation.
var validFilterNames = map[string]bool{
	"compute":        false,
	"ram":            true,
	"vcpu":           true,
	"vcpu-capacity":  false,
	"different-host": false,
}

// IsValidFilter returns true if name is a recognized filter.
func IsValidFilter(name string) bool {
	_, ok := validFilterNames[name]
	return ok
}

// ValidFilterNames returns sorted valid filter names.
func ValidFilterNames() []string { return sortedKeys(validFilterNames) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// computeFilter keeps hosts that are up.
type computeFilter struct{}

func (computeFilter) Name() string                    { return "compute" }
func (computeFilter) Test(h HostView, _ Request) bool { return h.Up }

// ramFilter keeps hosts with enough free memory under an allocation ratio.
type ramFilter struct{ ratio float64 }

func (ramFilter) Name() string { return "ram" }
func (f ramFilter) Test(h HostView, req Request) bool {
	return float64(req.MemoryMiB) <= h.FreeMemoryMiB(f.ratio)
}

// vcpuFilter keeps hosts with enough free cores under an allocation ratio.
type vcpuFilter struct{ ratio float64 }

func (vcpuFilter) Name() string { return "vcpu" }
func (f vcpuFilter) Test(h HostView, req Request) bool {
	return float64(req.Cores) <= h.FreeCores(f.ratio)
}

// vcpuCapacityFilter keeps hosts whose cores are fast enough for the
// server's per-core demand.
type vcpuCapacityFilter struct{}

func (vcpuCapacityFilter) Name() string { return "vcpu-capacity" }
func (vcpuCapacityFilter) Test(h HostView, req Request) bool {
	return req.CoreMHz <= h.CoreMHz
}

// differentHostFilter keeps hosts the request does not ask to avoid.
type differentHostFilter struct{}

func (differentHostFilter) Name() string { return "different-host" }
func (differentHostFilter) Test(h HostView, req Request) bool {
	return !req.AvoidHosts[h.Name]
}

// NewFilter creates a filter by name. param is the allocation ratio for
// "ram" and "vcpu" and is ignored otherwise.
// Panics on unknown names (validation should catch this before reaching here).
func NewFilter(name string, param float64) Filter {
	switch name {
	case "compute":
		return computeFilter{}
	case "ram":
		return ramFilter{ratio: param}
	case "vcpu":
		return vcpuFilter{ratio: param}
	case "vcpu-capacity":
		return vcpuCapacityFilter{}
	case "different-host":
		return differentHostFilter{}
	default:
		panic(fmt.Sprintf("unknown filter %q", name))
	}
}
