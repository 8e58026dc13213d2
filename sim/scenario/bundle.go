package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fleetsim/fleet-sim/sim/compute"
	"github.com/fleetsim/fleet-sim/sim/faults"
	"github.com/fleetsim/fleet-sim/sim/scheduler"
)

// PolicyBundle holds the scheduling and fault policy of a run, loadable
// from a YAML file. Empty strings mean "use the default".
type PolicyBundle struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Faults    faults.Config   `yaml:"faults"`
}

// SchedulerConfig holds the compute service policy.
type SchedulerConfig struct {
	// Filters uses ParseFilterConfigs syntax, e.g. "compute,vcpu:16,ram:1.5".
	Filters string `yaml:"filters"`
	// Weighers uses ParseWeigherConfigs syntax, e.g. "ram:1,instance-count:-1".
	Weighers string `yaml:"weighers"`
	// Mode is "interactive", "batch:<quantum>" or "random[:<seed>[:<max>]]".
	Mode string `yaml:"mode"`

	RetryCeiling    int   `yaml:"retry_ceiling"`
	RequeueFailed   bool  `yaml:"requeue_failed"`
	RecoveryDelayMs int64 `yaml:"recovery_delay_ms"`
}

// LoadPolicyBundle reads and parses a YAML policy configuration file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadPolicyBundle(path string) (*PolicyBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy config: %w", err)
	}
	return ParsePolicyBundle(data)
}

// ParsePolicyBundle decodes a policy bundle from YAML bytes.
func ParsePolicyBundle(data []byte) (*PolicyBundle, error) {
	var bundle PolicyBundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("parsing policy config: %w", err)
	}
	return &bundle, nil
}

// Validate checks policy names and parameter ranges.
func (b *PolicyBundle) Validate() error {
	if _, err := b.Scheduler.Pipeline(); err != nil {
		return err
	}
	if _, err := compute.ParseMode(b.Scheduler.Mode); err != nil {
		return err
	}
	if b.Scheduler.RetryCeiling < 0 {
		return fmt.Errorf("retry_ceiling must be non-negative, got %d", b.Scheduler.RetryCeiling)
	}
	if b.Scheduler.RecoveryDelayMs < 0 {
		return fmt.Errorf("recovery_delay_ms must be non-negative, got %d", b.Scheduler.RecoveryDelayMs)
	}
	if err := b.Faults.Validate(); err != nil {
		return fmt.Errorf("faults: %w", err)
	}
	return nil
}

// Pipeline builds the configured scheduler pipeline. Empty filter or
// weigher strings select the defaults.
func (c SchedulerConfig) Pipeline() (*scheduler.Pipeline, error) {
	filters := scheduler.DefaultFilterConfigs()
	if c.Filters != "" {
		var err error
		if filters, err = scheduler.ParseFilterConfigs(c.Filters); err != nil {
			return nil, err
		}
	}
	weighers := scheduler.DefaultWeigherConfigs()
	if c.Weighers != "" {
		var err error
		if weighers, err = scheduler.ParseWeigherConfigs(c.Weighers); err != nil {
			return nil, err
		}
	}
	return scheduler.NewPipeline(filters, weighers)
}
