package compute

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fleetsim/fleet-sim/sim/flow"
)

// CPUSpec is one processor package: Cores cores running at MHz each.
type CPUSpec struct {
	Cores int     `yaml:"cores"`
	MHz   float64 `yaml:"mhz"`
}

// HostSpec describes a machine. Count replicates the entry in a topology
// file; AddHost ignores it.
type HostSpec struct {
	Name      string         `yaml:"name"`
	Count     int            `yaml:"count,omitempty"`
	CPUs      []CPUSpec      `yaml:"cpus"`
	MemoryMiB int64          `yaml:"memory_mib"`
	Power     flow.PowerSpec `yaml:"power,omitempty"`
	// PowerBudgetW caps the PSU output; zero means unlimited.
	PowerBudgetW float64 `yaml:"power_budget_w,omitempty"`
}

// Cores returns the total core count.
func (h HostSpec) Cores() int {
	n := 0
	for _, c := range h.CPUs {
		n += c.Cores
	}
	return n
}

// CoreMHz returns the speed of the slowest core.
func (h HostSpec) CoreMHz() float64 {
	speed := 0.0
	for i, c := range h.CPUs {
		if i == 0 || c.MHz < speed {
			speed = c.MHz
		}
	}
	return speed
}

// CapacityMHz returns the aggregate CPU capacity.
func (h HostSpec) CapacityMHz() float64 {
	total := 0.0
	for _, c := range h.CPUs {
		total += float64(c.Cores) * c.MHz
	}
	return total
}

// powerSpec returns the configured power model, or a host drawing nothing.
func (h HostSpec) powerSpec() flow.PowerSpec {
	if h.Power.Model == "" {
		return flow.PowerSpec{Model: "constant"}
	}
	return h.Power
}

// Validate checks a single host.
func (h HostSpec) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("host name must be set")
	}
	if h.Count < 0 {
		return fmt.Errorf("host %s: count must be non-negative, got %d", h.Name, h.Count)
	}
	if len(h.CPUs) == 0 {
		return fmt.Errorf("host %s: at least one cpu required", h.Name)
	}
	for i, c := range h.CPUs {
		if c.Cores < 1 {
			return fmt.Errorf("host %s: cpus[%d].cores must be at least 1, got %d", h.Name, i, c.Cores)
		}
		if c.MHz <= 0 || math.IsNaN(c.MHz) || math.IsInf(c.MHz, 0) {
			return fmt.Errorf("host %s: cpus[%d].mhz must be a finite positive number, got %v", h.Name, i, c.MHz)
		}
	}
	if h.MemoryMiB < 0 {
		return fmt.Errorf("host %s: memory_mib must be non-negative, got %d", h.Name, h.MemoryMiB)
	}
	if h.PowerBudgetW < 0 || math.IsNaN(h.PowerBudgetW) || math.IsInf(h.PowerBudgetW, 0) {
		return fmt.Errorf("host %s: power_budget_w must be a finite non-negative number, got %v", h.Name, h.PowerBudgetW)
	}
	if _, err := flow.NewPowerModel(h.powerSpec()); err != nil {
		return fmt.Errorf("host %s: %w", h.Name, err)
	}
	return nil
}

// Topology is the set of hosts a simulation starts with.
// Loaded from YAML via LoadTopology(path).
type Topology struct {
	Hosts []HostSpec `yaml:"hosts"`
}

// LoadTopology reads and parses a YAML topology file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}
	return ParseTopology(data)
}

// ParseTopology decodes a topology from YAML bytes.
func ParseTopology(data []byte) (*Topology, error) {
	var t Topology
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&t); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	return &t, nil
}

// Validate checks every host and that expanded names are unique.
func (t *Topology) Validate() error {
	if len(t.Hosts) == 0 {
		return fmt.Errorf("topology has no hosts")
	}
	for i, h := range t.Hosts {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("hosts[%d]: %w", i, err)
		}
	}
	seen := make(map[string]bool)
	for _, h := range t.Expand() {
		if seen[h.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateHost, h.Name)
		}
		seen[h.Name] = true
	}
	return nil
}

// Expand replicates entries with Count > 1 as name-0, name-1, ...
// in file order.
func (t *Topology) Expand() []HostSpec {
	var out []HostSpec
	for _, h := range t.Hosts {
		if h.Count <= 1 {
			h.Count = 0
			out = append(out, h)
			continue
		}
		n := h.Count
		for i := 0; i < n; i++ {
			c := h
			c.Name = fmt.Sprintf("%s-%d", h.Name, i)
			c.Count = 0
			c.CPUs = append([]CPUSpec(nil), h.CPUs...)
			out = append(out, c)
		}
	}
	return out
}
