package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsim/fleet-sim/sim/compute"
	"github.com/fleetsim/fleet-sim/sim/scheduler"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPolicyBundle_ValidYAML(t *testing.T) {
	path := writeTempYAML(t, `
scheduler:
  filters: compute,vcpu:16,ram:1.5
  weighers: ram:1,instance-count:-1
  mode: batch:300
  retry_ceiling: 3
  requeue_failed: true
  recovery_delay_ms: 20
faults:
  enabled: true
  seed: 11
  inter_arrival: {type: exponential, params: {mean: 3600000}}
  victim: {type: uniform, params: {min: 0, max: 0.2}}
  duration: {type: constant, params: {value: 600000}}
  until: 86400000
`)
	bundle, err := LoadPolicyBundle(path)
	require.NoError(t, err)
	require.NoError(t, bundle.Validate())

	assert.Equal(t, "batch:300", bundle.Scheduler.Mode)
	assert.Equal(t, 3, bundle.Scheduler.RetryCeiling)
	assert.True(t, bundle.Scheduler.RequeueFailed)
	assert.Equal(t, int64(20), bundle.Scheduler.RecoveryDelayMs)
	assert.True(t, bundle.Faults.Enabled)
	assert.Equal(t, int64(11), bundle.Faults.Seed)
	assert.Equal(t, "exponential", bundle.Faults.InterArrival.Type)
	assert.Equal(t, 3600000.0, bundle.Faults.InterArrival.Params["mean"])
	assert.Equal(t, int64(86400000), bundle.Faults.Until)

	mode, err := compute.ParseMode(bundle.Scheduler.Mode)
	require.NoError(t, err)
	assert.Equal(t, compute.Batch(300), mode)
}

func TestLoadPolicyBundle_UnknownKeyRejected(t *testing.T) {
	path := writeTempYAML(t, "scheduler:\n  filter: compute\n")
	_, err := LoadPolicyBundle(path)
	assert.Error(t, err)
}

func TestLoadPolicyBundle_MissingFile(t *testing.T) {
	_, err := LoadPolicyBundle(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPolicyBundle_EmptyIsValid(t *testing.T) {
	b := &PolicyBundle{}
	assert.NoError(t, b.Validate())
}

func TestPolicyBundle_Validate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		bundle PolicyBundle
		target error
	}{
		{"unknown filter", PolicyBundle{Scheduler: SchedulerConfig{Filters: "gpu"}}, scheduler.ErrUnknownFilter},
		{"unknown weigher", PolicyBundle{Scheduler: SchedulerConfig{Weighers: "cost:1"}}, scheduler.ErrUnknownWeigher},
		{"bad mode", PolicyBundle{Scheduler: SchedulerConfig{Mode: "batch:0"}}, compute.ErrInvalidMode},
		{"negative ceiling", PolicyBundle{Scheduler: SchedulerConfig{RetryCeiling: -1}}, nil},
		{"negative recovery delay", PolicyBundle{Scheduler: SchedulerConfig{RecoveryDelayMs: -1}}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.bundle.Validate()
			require.Error(t, err)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestSchedulerConfig_Pipeline_DefaultsWhenEmpty(t *testing.T) {
	p, err := SchedulerConfig{}.Pipeline()
	require.NoError(t, err)

	// The default pipeline drops failed hosts and prefers free memory.
	hosts := []scheduler.HostView{
		{Name: "down", Index: 0, Cores: 8, MemoryMiB: 65536},
		{Name: "small", Index: 1, Up: true, Cores: 8, MemoryMiB: 8192},
		{Name: "big", Index: 2, Up: true, Cores: 8, MemoryMiB: 32768},
	}
	got, ok := p.Select(hosts, scheduler.Request{Cores: 1, MemoryMiB: 1024})
	require.True(t, ok)
	assert.Equal(t, "big", got.Name)
}
