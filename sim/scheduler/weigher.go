package scheduler

import "fmt"

// Weigher scores a candidate host. Scores are raw host quantities; the
// pipeline multiplies them by the configured multiplier and sums them.
type Weigher interface {
	Name() string
	Score(h HostView, req Request) float64
}

// validWeigherNames maps weigher names to validity. Unexported to prevent mutation.
var validWeigherNames = map[string]bool{
	"ram":            true,
	"core-ram":       true,
	"vcpu":           true,
	"instance-count": true,
	"vcpu-capacity":  true,
}

// IsValidWeigher returns true if name is a recognized weigher.
func IsValidWeigher(name string) bool { return validWeigherNames[name] }

// ValidWeigherNames returns sorted valid weigher names.
func ValidWeigherNames() []string { return sortedKeys(validWeigherNames) }

// ramWeigher prefers hosts with more free memory.
type ramWeigher struct{}

func (ramWeigher) Name() string { return "ram" }
func (ramWeigher) Score(h HostView, _ Request) float64 {
	return h.FreeMemoryMiB(1)
}

// coreRAMWeigher prefers hosts with more free memory per free core.
type coreRAMWeigher struct{}

func (coreRAMWeigher) Name() string { return "core-ram" }
func (coreRAMWeigher) Score(h HostView, _ Request) float64 {
	free := h.FreeCores(1)
	if free <= 0 {
		return 0
	}
	return h.FreeMemoryMiB(1) / free
}

// vcpuWeigher prefers hosts with more free cores.
type vcpuWeigher struct{}

func (vcpuWeigher) Name() string { return "vcpu" }
func (vcpuWeigher) Score(h HostView, _ Request) float64 {
	return h.FreeCores(1)
}

// instanceCountWeigher scores by the number of placed servers. Use a
// negative multiplier to spread.
type instanceCountWeigher struct{}

func (instanceCountWeigher) Name() string { return "instance-count" }
func (instanceCountWeigher) Score(h HostView, _ Request) float64 {
	return float64(h.Instances)
}

// vcpuCapacityWeigher prefers hosts with faster cores.
type vcpuCapacityWeigher struct{}

func (vcpuCapacityWeigher) Name() string { return "vcpu-capacity" }
func (vcpuCapacityWeigher) Score(h HostView, _ Request) float64 {
	return h.CoreMHz
}

// NewWeigher creates a weigher by name.
// Panics on unknown names (validation should catch this before reaching here).
func NewWeigher(name string) Weigher {
	switch name {
	case "ram":
		return ramWeigher{}
	case "core-ram":
		return coreRAMWeigher{}
	case "vcpu":
		return vcpuWeigher{}
	case "instance-count":
		return instanceCountWeigher{}
	case "vcpu-capacity":
		return vcpuCapacityWeigher{}
	default:
		panic(fmt.Sprintf("unknown weigher %q", name))
	}
}
