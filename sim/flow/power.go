package flow

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidPowerModel is returned for unknown model names or bad parameters.
var ErrInvalidPowerModel = errors.New("invalid power model")

// PowerModel maps a utilization in [0,1] onto a power draw in watts.
// Implementations must be non-decreasing in utilization.
type PowerModel interface {
	Power(utilization float64) float64
}

// PowerSpec describes a power model in a topology file.
type PowerSpec struct {
	Model string  `yaml:"model"`
	IdleW float64 `yaml:"idle_w"`
	MaxW  float64 `yaml:"max_w"`
	// Alpha shapes the asymptotic model (default 0.3).
	Alpha float64 `yaml:"alpha,omitempty"`
}

// validPowerModels maps model names to validity. Unexported to prevent mutation.
var validPowerModels = map[string]bool{
	"constant":   true,
	"linear":     true,
	"square":     true,
	"cubic":      true,
	"sqrt":       true,
	"asymptotic": true,
}

// IsValidPowerModel returns true if name is a recognized power model.
func IsValidPowerModel(name string) bool { return validPowerModels[name] }

// ValidPowerModelNames returns sorted valid power model names.
func ValidPowerModelNames() []string {
	names := make([]string, 0, len(validPowerModels))
	for n := range validPowerModels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type constantPower struct{ watts float64 }

func (m constantPower) Power(float64) float64 { return m.watts }

// curvePower is idle + (max-idle)·f(u).
type curvePower struct {
	idle, max float64
	f         func(u float64) float64
}

func (m curvePower) Power(u float64) float64 {
	return m.idle + (m.max-m.idle)*m.f(clamp01(u))
}

type asymptoticPower struct {
	idle, max, alpha float64
}

func (m asymptoticPower) Power(u float64) float64 {
	u = clamp01(u)
	return m.idle + (m.max-m.idle)/2*(1+u-math.Exp(-u/m.alpha))
}

// NewPowerModel builds a PowerModel from its spec.
func NewPowerModel(spec PowerSpec) (PowerModel, error) {
	if !IsValidPowerModel(spec.Model) {
		return nil, fmt.Errorf("%w: unknown model %q; valid: %v", ErrInvalidPowerModel, spec.Model, ValidPowerModelNames())
	}
	for name, v := range map[string]float64{"idle_w": spec.IdleW, "max_w": spec.MaxW, "alpha": spec.Alpha} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: %s must be a finite non-negative number, got %v", ErrInvalidPowerModel, name, v)
		}
	}
	if spec.MaxW < spec.IdleW {
		return nil, fmt.Errorf("%w: max_w %.1f is below idle_w %.1f", ErrInvalidPowerModel, spec.MaxW, spec.IdleW)
	}
	switch spec.Model {
	case "constant":
		return constantPower{watts: spec.MaxW}, nil
	case "linear":
		return curvePower{idle: spec.IdleW, max: spec.MaxW, f: func(u float64) float64 { return u }}, nil
	case "square":
		return curvePower{idle: spec.IdleW, max: spec.MaxW, f: func(u float64) float64 { return u * u }}, nil
	case "cubic":
		return curvePower{idle: spec.IdleW, max: spec.MaxW, f: func(u float64) float64 { return u * u * u }}, nil
	case "sqrt":
		return curvePower{idle: spec.IdleW, max: spec.MaxW, f: math.Sqrt}, nil
	case "asymptotic":
		alpha := spec.Alpha
		if alpha == 0 {
			alpha = 0.3
		}
		return asymptoticPower{idle: spec.IdleW, max: spec.MaxW, alpha: alpha}, nil
	default:
		panic(fmt.Sprintf("unhandled power model %q", spec.Model))
	}
}

// Mapping converts a transformer's input rate into its output rate and back.
type Mapping interface {
	Forward(rate float64) float64
	// Inverse returns the largest input rate whose output does not exceed out.
	Inverse(out float64) float64
}

// Identity passes rates through unchanged.
type Identity struct{}

func (Identity) Forward(rate float64) float64 { return rate }
func (Identity) Inverse(out float64) float64  { return out }

// PowerMapping converts a compute rate (MHz) into a power draw (W) for a
// processing resource of the given capacity.
type PowerMapping struct {
	Model    PowerModel
	Capacity float64
}

// Forward returns the power drawn when running at rate.
func (p PowerMapping) Forward(rate float64) float64 {
	if p.Capacity <= 0 {
		return p.Model.Power(0)
	}
	return p.Model.Power(rate / p.Capacity)
}

// Inverse returns the highest rate that fits a power budget of watts.
func (p PowerMapping) Inverse(watts float64) float64 {
	if watts >= p.Model.Power(1) {
		return p.Capacity
	}
	if watts < p.Model.Power(0) {
		return 0
	}
	lo, hi := 0.0, 1.0
	for i := 0; i < 64; i++ {
		mid := (lo + hi) / 2
		if p.Model.Power(mid) <= watts {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo * p.Capacity
}

func clamp01(u float64) float64 {
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}
