package faults

import (
	"fmt"

	"github.com/fleetsim/fleet-sim/sim/workload"
)

// ErrInvalidDistribution is returned for unknown distribution types and
// invalid parameters.
var ErrInvalidDistribution = workload.ErrInvalidDistribution

// Config describes the fault model.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Seed overrides the run's fault stream when non-zero.
	Seed int64 `yaml:"seed,omitempty"`

	// InterArrival is the time in ms between consecutive faults.
	InterArrival workload.DistSpec `yaml:"inter_arrival"`
	// Victim is the fraction of healthy hosts each fault takes down, clamped
	// to [0, 1]. At least one host always fails. Unset means one host.
	Victim workload.DistSpec `yaml:"victim,omitempty"`
	// Duration is how long in ms a failed host stays down.
	Duration workload.DistSpec `yaml:"duration"`

	// Until stops new faults after this instant; zero means never.
	// Recoveries already scheduled still fire.
	Until int64 `yaml:"until,omitempty"`
}

// Validate checks the distributions of an enabled fault model.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.InterArrival.IsZero() {
		return fmt.Errorf("%w: inter_arrival must be set", ErrInvalidDistribution)
	}
	if err := c.InterArrival.Validate(); err != nil {
		return fmt.Errorf("inter_arrival: %w", err)
	}
	if !c.Victim.IsZero() {
		if err := c.Victim.Validate(); err != nil {
			return fmt.Errorf("victim: %w", err)
		}
	}
	if c.Duration.IsZero() {
		return fmt.Errorf("%w: duration must be set", ErrInvalidDistribution)
	}
	if err := c.Duration.Validate(); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	if c.Until < 0 {
		return fmt.Errorf("until must be non-negative, got %d", c.Until)
	}
	return nil
}
