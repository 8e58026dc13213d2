package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical inputs MUST produce
// bit-for-bit identical telemetry.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

const (
	// SubsystemWorkload drives synthetic workload generation.
	// Uses the master seed directly so --seed alone reproduces a workload.
	SubsystemWorkload = "workload"

	// SubsystemScheduler drives the jitter of random-mode scheduling cycles.
	SubsystemScheduler = "scheduler"

	// SubsystemFaults drives fault arrival, victim choice and duration.
	SubsystemFaults = "faults"
)

// PartitionedRNG provides deterministic, isolated RNG streams per subsystem.
//
// Derivation formula:
//   - SubsystemWorkload: masterSeed
//   - all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Drawing from one subsystem never perturbs another. Not thread-safe.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG for the named subsystem. The same name always
// returns the same *rand.Rand instance. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.Seed(name)))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the derived seed of a subsystem. Components that need a
// different generator family (e.g. gonum distributions) seed it from here.
func (p *PartitionedRNG) Seed(name string) int64 {
	if name == SubsystemWorkload {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
