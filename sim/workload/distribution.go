package workload

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidDistribution is returned for unknown distribution types and
// missing or out-of-range parameters.
var ErrInvalidDistribution = errors.New("invalid distribution")

// DistSpec parameterizes a distribution by name.
//
//	constant:    value
//	exponential: mean (or rate)
//	uniform:     min, max
//	normal:      mu, sigma
//	lognormal:   mu, sigma
//	weibull:     k, lambda
//	gamma:       alpha, beta
//	pareto:      xm, alpha
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// IsZero reports whether the spec was left empty.
func (d DistSpec) IsZero() bool { return d.Type == "" && len(d.Params) == 0 }

func (d DistSpec) String() string {
	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := d.Type + "("
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%g", k, d.Params[k])
	}
	return s + ")"
}

// validDistTypes maps distribution names to validity. Unexported to prevent mutation.
var validDistTypes = map[string]bool{
	"constant":    true,
	"exponential": true,
	"uniform":     true,
	"normal":      true,
	"lognormal":   true,
	"weibull":     true,
	"gamma":       true,
	"pareto":      true,
}

// IsValidDistType returns true if name is a recognized distribution type.
func IsValidDistType(name string) bool { return validDistTypes[name] }

// ValidDistTypes returns sorted valid distribution type names.
func ValidDistTypes() []string {
	names := make([]string, 0, len(validDistTypes))
	for n := range validDistTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sampler draws real-valued samples. The gonum distuv distributions
// satisfy it directly.
type Sampler interface {
	Rand() float64
}

// ConstantSampler always returns the same value.
type ConstantSampler struct {
	Value float64
}

func (s ConstantSampler) Rand() float64 { return s.Value }

// requireParam checks that all required keys exist in a params map and hold
// finite values.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		v, ok := params[k]
		if !ok {
			return fmt.Errorf("%w: requires parameter %q", ErrInvalidDistribution, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: parameter %q must be finite, got %v", ErrInvalidDistribution, k, v)
		}
	}
	return nil
}

func requirePositive(params map[string]float64, keys ...string) error {
	if err := requireParam(params, keys...); err != nil {
		return err
	}
	for _, k := range keys {
		if params[k] <= 0 {
			return fmt.Errorf("%w: parameter %q must be positive, got %v", ErrInvalidDistribution, k, params[k])
		}
	}
	return nil
}

// Validate checks the type and parameters without building a sampler.
func (d DistSpec) Validate() error {
	_, err := NewSampler(d, rand.NewPCG(0, 0))
	return err
}

// NewSampler creates a Sampler from a DistSpec drawing from src.
func NewSampler(spec DistSpec, src rand.Source) (Sampler, error) {
	p := spec.Params
	switch spec.Type {
	case "constant":
		if err := requirePositive(p, "value"); err != nil {
			return nil, err
		}
		return ConstantSampler{Value: p["value"]}, nil

	case "exponential":
		if _, ok := p["mean"]; ok {
			if err := requirePositive(p, "mean"); err != nil {
				return nil, err
			}
			return distuv.Exponential{Rate: 1 / p["mean"], Src: src}, nil
		}
		if err := requirePositive(p, "rate"); err != nil {
			return nil, err
		}
		return distuv.Exponential{Rate: p["rate"], Src: src}, nil

	case "uniform":
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		if p["min"] < 0 || p["max"] <= p["min"] {
			return nil, fmt.Errorf("%w: uniform requires 0 <= min < max, got min=%v max=%v", ErrInvalidDistribution, p["min"], p["max"])
		}
		return distuv.Uniform{Min: p["min"], Max: p["max"], Src: src}, nil

	case "normal":
		if err := requireParam(p, "mu"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "sigma"); err != nil {
			return nil, err
		}
		return distuv.Normal{Mu: p["mu"], Sigma: p["sigma"], Src: src}, nil

	case "lognormal":
		if err := requireParam(p, "mu"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "sigma"); err != nil {
			return nil, err
		}
		return distuv.LogNormal{Mu: p["mu"], Sigma: p["sigma"], Src: src}, nil

	case "weibull":
		if err := requirePositive(p, "k", "lambda"); err != nil {
			return nil, err
		}
		return distuv.Weibull{K: p["k"], Lambda: p["lambda"], Src: src}, nil

	case "gamma":
		if err := requirePositive(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		return distuv.Gamma{Alpha: p["alpha"], Beta: p["beta"], Src: src}, nil

	case "pareto":
		if err := requirePositive(p, "xm", "alpha"); err != nil {
			return nil, err
		}
		return distuv.Pareto{Xm: p["xm"], Alpha: p["alpha"], Src: src}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q; valid: %v", ErrInvalidDistribution, spec.Type, ValidDistTypes())
	}
}

// Millis converts a sample into a non-negative whole number of milliseconds.
func Millis(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(math.Round(v))
}
