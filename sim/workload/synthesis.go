package workload

import (
	"fmt"
	"math"
	"math/rand"
)

// SyntheticSpec generates servers from distributions. Arrival times
// accumulate inter-arrival samples from StartMs; every generated server is a
// burst running all its cores at full host speed.
type SyntheticSpec struct {
	Count        int      `yaml:"count"`
	Seed         int64    `yaml:"seed,omitempty"`
	Prefix       string   `yaml:"prefix,omitempty"`
	StartMs      int64    `yaml:"start_ms,omitempty"`
	InterArrival DistSpec `yaml:"inter_arrival"`
	Work         DistSpec `yaml:"work"`
	Cores        DistSpec `yaml:"cores"`
	MemoryMiB    DistSpec `yaml:"memory_mib,omitempty"`
}

// Validate checks counts and distributions.
func (s *SyntheticSpec) Validate() error {
	if s.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", s.Count)
	}
	if s.StartMs < 0 {
		return fmt.Errorf("start_ms must be non-negative, got %d", s.StartMs)
	}
	for name, d := range map[string]DistSpec{"inter_arrival": s.InterArrival, "work": s.Work, "cores": s.Cores} {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !s.MemoryMiB.IsZero() {
		if err := s.MemoryMiB.Validate(); err != nil {
			return fmt.Errorf("memory_mib: %w", err)
		}
	}
	return nil
}

// Generate draws Count servers. The spec's own seed wins over the given one.
func (s *SyntheticSpec) Generate(seed int64) ([]ServerSpec, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Seed != 0 {
		seed = s.Seed
	}
	rng := rand.New(rand.NewSource(seed))
	arrival, err := NewSampler(s.InterArrival, rng)
	if err != nil {
		return nil, fmt.Errorf("inter_arrival: %w", err)
	}
	work, err := NewSampler(s.Work, rng)
	if err != nil {
		return nil, fmt.Errorf("work: %w", err)
	}
	cores, err := NewSampler(s.Cores, rng)
	if err != nil {
		return nil, fmt.Errorf("cores: %w", err)
	}
	var memory Sampler = ConstantSampler{}
	if !s.MemoryMiB.IsZero() {
		if memory, err = NewSampler(s.MemoryMiB, rng); err != nil {
			return nil, fmt.Errorf("memory_mib: %w", err)
		}
	}

	prefix := s.Prefix
	if prefix == "" {
		prefix = "syn"
	}
	out := make([]ServerSpec, 0, s.Count)
	t := s.StartMs
	for i := 0; i < s.Count; i++ {
		t += Millis(arrival.Rand())
		out = append(out, ServerSpec{
			ID:        fmt.Sprintf("%s-%04d", prefix, i),
			SubmitMs:  t,
			Cores:     max(1, int(math.Round(cores.Rand()))),
			MemoryMiB: max(0, int64(math.Round(memory.Rand()))),
			Burst:     &BurstSpec{Work: math.Max(1, work.Rand())},
		})
	}
	return out, nil
}
