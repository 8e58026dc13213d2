package workload

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// WorkloadSpec is the top-level workload configuration.
// Loaded from YAML via LoadWorkloadSpec(path).
type WorkloadSpec struct {
	Version   string         `yaml:"version,omitempty"`
	Servers   []ServerSpec   `yaml:"servers"`
	Synthetic *SyntheticSpec `yaml:"synthetic,omitempty"`
	Trace     *TraceFiles    `yaml:"trace,omitempty"`
}

// ServerSpec describes one virtual machine: its resource request and the
// CPU demand it places on the host once running. Exactly one of Burst and
// Fragments is set.
type ServerSpec struct {
	ID        string `yaml:"id"`
	SubmitMs  int64  `yaml:"submit_ms"`
	Cores     int    `yaml:"cores"`
	MemoryMiB int64  `yaml:"memory_mib"`

	Burst     *BurstSpec     `yaml:"burst,omitempty"`
	Fragments []FragmentSpec `yaml:"fragments,omitempty"`

	// AvoidHosts lists hosts the server must not be placed on.
	AvoidHosts []string `yaml:"avoid_hosts,omitempty"`
}

// BurstSpec is a fixed amount of work in MHz·ms. RateMHz defaults to every
// requested core running at full host speed.
type BurstSpec struct {
	Work    float64 `yaml:"work"`
	RateMHz float64 `yaml:"rate_mhz,omitempty"`
}

// FragmentSpec is one constant-demand slice of a trace, relative to the
// moment the server starts running. Cores defaults to the server's cores.
type FragmentSpec struct {
	OffsetMs   int64   `yaml:"offset_ms"`
	DurationMs int64   `yaml:"duration_ms"`
	RateMHz    float64 `yaml:"rate_mhz"`
	Cores      int     `yaml:"cores,omitempty"`
}

// FragmentCores returns the cores a fragment runs on.
func (s *ServerSpec) FragmentCores(f FragmentSpec) int {
	if f.Cores > 0 {
		return f.Cores
	}
	return s.Cores
}

// PeakCoreMHz returns the highest per-core rate the server will request.
// A burst without an explicit rate asks for nothing beyond the host speed
// and returns 0.
func (s *ServerSpec) PeakCoreMHz() float64 {
	peak := 0.0
	if s.Burst != nil && s.Burst.RateMHz > 0 {
		peak = s.Burst.RateMHz / float64(max(s.Cores, 1))
	}
	for _, f := range s.Fragments {
		peak = math.Max(peak, f.RateMHz/float64(max(s.FragmentCores(f), 1)))
	}
	return peak
}

// LoadWorkloadSpec reads and parses a YAML workload specification file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadWorkloadSpec(path string) (*WorkloadSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload spec: %w", err)
	}
	spec, err := ParseWorkloadSpec(data)
	if err != nil {
		return nil, err
	}
	if spec.Trace != nil {
		dir := filepath.Dir(path)
		spec.Trace.Header = resolvePath(dir, spec.Trace.Header)
		spec.Trace.Data = resolvePath(dir, spec.Trace.Data)
	}
	return spec, nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// ParseWorkloadSpec decodes a workload spec from YAML bytes.
func ParseWorkloadSpec(data []byte) (*WorkloadSpec, error) {
	var spec WorkloadSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing workload spec: %w", err)
	}
	return &spec, nil
}

// Validate checks that all fields in the spec are valid.
func (s *WorkloadSpec) Validate() error {
	if len(s.Servers) == 0 && s.Synthetic == nil && s.Trace == nil {
		return fmt.Errorf("at least one server, a synthetic block or a trace required")
	}
	if s.Trace != nil && s.Trace.Data == "" {
		return fmt.Errorf("trace: data path required")
	}
	seen := make(map[string]bool, len(s.Servers))
	for i := range s.Servers {
		srv := &s.Servers[i]
		if err := srv.Validate(); err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		if seen[srv.ID] {
			return fmt.Errorf("servers[%d]: duplicate id %q", i, srv.ID)
		}
		seen[srv.ID] = true
	}
	if s.Synthetic != nil {
		if err := s.Synthetic.Validate(); err != nil {
			return fmt.Errorf("synthetic: %w", err)
		}
	}
	return nil
}

// Validate checks a single server.
func (s *ServerSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id must be set")
	}
	if s.SubmitMs < 0 {
		return fmt.Errorf("%s: submit_ms must be non-negative, got %d", s.ID, s.SubmitMs)
	}
	if s.Cores < 1 {
		return fmt.Errorf("%s: cores must be at least 1, got %d", s.ID, s.Cores)
	}
	if s.MemoryMiB < 0 {
		return fmt.Errorf("%s: memory_mib must be non-negative, got %d", s.ID, s.MemoryMiB)
	}
	switch {
	case s.Burst != nil && len(s.Fragments) > 0:
		return fmt.Errorf("%s: burst and fragments are mutually exclusive", s.ID)
	case s.Burst == nil && len(s.Fragments) == 0:
		return fmt.Errorf("%s: one of burst or fragments required", s.ID)
	case s.Burst != nil:
		if err := validateFinitePositive(s.ID+".burst.work", s.Burst.Work); err != nil {
			return err
		}
		if s.Burst.RateMHz != 0 {
			if err := validateFinitePositive(s.ID+".burst.rate_mhz", s.Burst.RateMHz); err != nil {
				return err
			}
		}
	default:
		var prevEnd int64
		for i, f := range s.Fragments {
			prefix := fmt.Sprintf("%s.fragments[%d]", s.ID, i)
			if f.OffsetMs < prevEnd {
				return fmt.Errorf("%s: offset_ms %d overlaps previous fragment ending at %d", prefix, f.OffsetMs, prevEnd)
			}
			if f.DurationMs <= 0 {
				return fmt.Errorf("%s: duration_ms must be positive, got %d", prefix, f.DurationMs)
			}
			if math.IsNaN(f.RateMHz) || math.IsInf(f.RateMHz, 0) || f.RateMHz < 0 {
				return fmt.Errorf("%s: rate_mhz must be a finite non-negative number, got %v", prefix, f.RateMHz)
			}
			if f.Cores < 0 || f.Cores > s.Cores {
				return fmt.Errorf("%s: cores must be within [0, %d], got %d", prefix, s.Cores, f.Cores)
			}
			prevEnd = f.OffsetMs + f.DurationMs
		}
	}
	return nil
}

// Expand returns the explicit servers followed by the trace and synthetic
// ones, ordered by submit time (stable, so equal times keep file order).
// seed drives synthesis when the synthetic block does not set its own.
func (s *WorkloadSpec) Expand(seed int64) ([]ServerSpec, error) {
	out := make([]ServerSpec, 0, len(s.Servers))
	out = append(out, s.Servers...)
	ids := make(map[string]bool, len(out))
	for _, srv := range out {
		ids[srv.ID] = true
	}
	if s.Trace != nil {
		trace, err := LoadTrace(s.Trace.Header, s.Trace.Data)
		if err != nil {
			return nil, err
		}
		traced, err := trace.Servers()
		if err != nil {
			return nil, err
		}
		for _, srv := range traced {
			if ids[srv.ID] {
				return nil, fmt.Errorf("trace server id %q collides with an explicit server", srv.ID)
			}
			ids[srv.ID] = true
		}
		out = append(out, traced...)
	}
	if s.Synthetic != nil {
		gen, err := s.Synthetic.Generate(seed)
		if err != nil {
			return nil, err
		}
		for _, srv := range gen {
			if ids[srv.ID] {
				return nil, fmt.Errorf("synthetic server id %q collides with an explicit server", srv.ID)
			}
		}
		out = append(out, gen...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmitMs < out[j].SubmitMs })
	return out, nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
