package scheduler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FilterConfig names a filter and its optional parameter (allocation ratio
// for "ram" and "vcpu", default 1.0).
type FilterConfig struct {
	Name  string  `yaml:"name"`
	Param float64 `yaml:"param,omitempty"`
}

// WeigherConfig names a weigher and its multiplier.
type WeigherConfig struct {
	Name       string  `yaml:"name"`
	Multiplier float64 `yaml:"multiplier"`
}

// DefaultFilterConfigs returns the filters applied when none are configured.
func DefaultFilterConfigs() []FilterConfig {
	return []FilterConfig{
		{Name: "compute"},
		{Name: "vcpu", Param: 1.0},
		{Name: "ram", Param: 1.0},
	}
}

// DefaultWeigherConfigs returns the weighers applied when none are configured:
// prefer the host with the most free memory.
func DefaultWeigherConfigs() []WeigherConfig {
	return []WeigherConfig{{Name: "ram", Multiplier: 1.0}}
}

// ParseFilterConfigs parses a comma-separated list of filters, each either
// "name" or "name:param". Returns nil for empty input. Returns error for
// unknown names, duplicates, parameters on filters that take none, and
// non-finite or non-positive parameters.
func ParseFilterConfigs(s string) ([]FilterConfig, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	configs := make([]FilterConfig, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		name := strings.TrimSpace(kv[0])
		takesParam, ok := validFilterNames[name]
		if !ok {
			return nil, fmt.Errorf("%w %q; valid: %s", ErrUnknownFilter, name, strings.Join(ValidFilterNames(), ", "))
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate filter %q; each filter may appear at most once", ErrInvalidConfig, name)
		}
		seen[name] = true
		cfg := FilterConfig{Name: name}
		if takesParam {
			cfg.Param = 1.0
		}
		if len(kv) == 2 {
			if !takesParam {
				return nil, fmt.Errorf("%w: filter %q takes no parameter", ErrInvalidConfig, name)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid parameter for filter %q: %v", ErrInvalidConfig, name, err)
			}
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: filter %q parameter must be a finite positive number, got %v", ErrInvalidConfig, name, v)
			}
			cfg.Param = v
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// ParseWeigherConfigs parses a comma-separated string of "name:multiplier"
// pairs. Returns nil for empty input. Multipliers may be negative but must be
// finite and non-zero.
func ParseWeigherConfigs(s string) ([]WeigherConfig, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	configs := make([]WeigherConfig, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: invalid weigher config %q (expected name:multiplier)", ErrInvalidConfig, strings.TrimSpace(part))
		}
		name := strings.TrimSpace(kv[0])
		if !IsValidWeigher(name) {
			return nil, fmt.Errorf("%w %q; valid: %s", ErrUnknownWeigher, name, strings.Join(ValidWeigherNames(), ", "))
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate weigher %q; each weigher may appear at most once", ErrInvalidConfig, name)
		}
		seen[name] = true
		m, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid multiplier for weigher %q: %v", ErrInvalidConfig, name, err)
		}
		if m == 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("%w: weigher %q multiplier must be a finite non-zero number, got %v", ErrInvalidConfig, name, m)
		}
		configs = append(configs, WeigherConfig{Name: name, Multiplier: m})
	}
	return configs, nil
}

// validateFilterConfigs applies the same rules as ParseFilterConfigs to
// configs built in code or decoded from YAML.
func validateFilterConfigs(configs []FilterConfig) error {
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		takesParam, ok := validFilterNames[c.Name]
		if !ok {
			return fmt.Errorf("%w %q; valid: %s", ErrUnknownFilter, c.Name, strings.Join(ValidFilterNames(), ", "))
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate filter %q", ErrInvalidConfig, c.Name)
		}
		seen[c.Name] = true
		if takesParam && (c.Param < 0 || math.IsNaN(c.Param) || math.IsInf(c.Param, 0)) {
			return fmt.Errorf("%w: filter %q parameter must be a finite positive number, got %v", ErrInvalidConfig, c.Name, c.Param)
		}
	}
	return nil
}

func validateWeigherConfigs(configs []WeigherConfig) error {
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		if !IsValidWeigher(c.Name) {
			return fmt.Errorf("%w %q; valid: %s", ErrUnknownWeigher, c.Name, strings.Join(ValidWeigherNames(), ", "))
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate weigher %q", ErrInvalidConfig, c.Name)
		}
		seen[c.Name] = true
		if c.Multiplier == 0 || math.IsNaN(c.Multiplier) || math.IsInf(c.Multiplier, 0) {
			return fmt.Errorf("%w: weigher %q multiplier must be a finite non-zero number, got %v", ErrInvalidConfig, c.Name, c.Multiplier)
		}
	}
	return nil
}
