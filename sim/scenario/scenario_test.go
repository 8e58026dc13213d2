package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsim/fleet-sim/sim/compute"
	"github.com/fleetsim/fleet-sim/sim/faults"
	"github.com/fleetsim/fleet-sim/sim/telemetry"
	"github.com/fleetsim/fleet-sim/sim/workload"
)

func mustTopology(t *testing.T, src string) *compute.Topology {
	t.Helper()
	topo, err := compute.ParseTopology([]byte(src))
	require.NoError(t, err)
	return topo
}

func mustWorkload(t *testing.T, src string) *workload.WorkloadSpec {
	t.Helper()
	w, err := workload.ParseWorkloadSpec([]byte(src))
	require.NoError(t, err)
	return w
}

func mustPolicy(t *testing.T, src string) *PolicyBundle {
	t.Helper()
	b, err := ParsePolicyBundle([]byte(src))
	require.NoError(t, err)
	return b
}

const oneHost = `
hosts:
  - name: h0
    cpus: [{cores: 4, mhz: 1000}]
    memory_mib: 16384
    power: {model: linear, idle_w: 100, max_w: 200}
`

func TestRun_SingleBurst_EndsAtWorkOverCapacity(t *testing.T) {
	// GIVEN a 4x1000 MHz host and a 4-core burst of 4e6 MHz·ms
	s, err := New(Config{
		Topology: mustTopology(t, oneHost),
		Workload: mustWorkload(t, `
servers:
  - id: vm-0
    cores: 4
    memory_mib: 2048
    burst: {work: 4000000}
`),
	})
	require.NoError(t, err)

	// WHEN it runs until idle
	res, err := s.Run()
	require.NoError(t, err)

	// THEN the server terminates at 1000 ms having drawn 200 J
	assert.Equal(t, int64(1000), res.EndTime)
	srv := s.Service.Server("vm-0")
	assert.Equal(t, compute.StateTerminated, srv.State())
	assert.Equal(t, int64(1000), srv.FinishedAt())
	assert.Equal(t, 1, res.Summary.FinalStates["terminated"])
	assert.Equal(t, 1, res.Summary.Placements)
	assert.InDelta(t, 200.0, res.Summary.TotalEnergyJ, 1e-9)
	require.Len(t, res.Summary.Hosts, 1)
	assert.InDelta(t, 200.0, res.Summary.Hosts[0].PeakPower, 1e-9)
}

func TestRun_SharedHost_MaxMinFair(t *testing.T) {
	// GIVEN two 3000 MHz servers overcommitted onto one 4000 MHz host
	s, err := New(Config{
		Topology: mustTopology(t, oneHost),
		Workload: mustWorkload(t, `
servers:
  - {id: a, cores: 4, burst: {work: 1000000000, rate_mhz: 3000}}
  - {id: b, cores: 4, burst: {work: 1000000000, rate_mhz: 3000}}
`),
		Policy:  mustPolicy(t, "scheduler: {filters: \"compute,vcpu:2\"}\n"),
		Horizon: 500,
	})
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	// THEN each receives an equal 2000 MHz share
	for _, id := range []string{"a", "b"} {
		assert.InDelta(t, 2000*500.0, s.Service.Server(id).Delivered(), 1e-6, id)
	}
	assert.InDelta(t, 4000.0, s.Service.Host("h0").Granted(), 1e-9)
}

func TestRun_ConstantFaults_TenFailuresTenRecoveries(t *testing.T) {
	// GIVEN faults every 100 ms lasting 50 ms, injected until 1000 ms
	s, err := New(Config{
		Topology: mustTopology(t, oneHost),
		Workload: mustWorkload(t, "servers:\n  - {id: vm, cores: 1, burst: {work: 1}}\n"),
		Policy: mustPolicy(t, `
faults:
  enabled: true
  inter_arrival: {type: constant, params: {value: 100}}
  duration: {type: constant, params: {value: 50}}
  until: 1000
`),
		Level: telemetry.LevelEvents,
	})
	require.NoError(t, err)

	// WHEN it runs until idle
	res, err := s.Run()
	require.NoError(t, err)

	// THEN the host went down and came back exactly ten times
	assert.Equal(t, 10, res.Summary.Failures)
	assert.Equal(t, 10, res.Summary.Recoveries)
	assert.Equal(t, faults.Stats{Faults: 10, Failures: 10, Recoveries: 10}, res.Faults)
	assert.Equal(t, int64(1050), res.EndTime)
	assert.Equal(t, compute.HostUp, s.Service.Host("h0").State())
	want := telemetry.FaultFail
	for _, f := range s.Recorder.Faults {
		assert.Equal(t, want, f.Kind)
		if want == telemetry.FaultFail {
			want = telemetry.FaultRecover
		} else {
			want = telemetry.FaultFail
		}
	}
	assert.Empty(t, s.Recorder.Hosts)
}

func TestRun_BatchRetryCeiling_Unschedulable(t *testing.T) {
	// GIVEN a full host, batch cycles every 100 ms and a retry ceiling of 3
	s, err := New(Config{
		Topology: mustTopology(t, oneHost),
		Workload: mustWorkload(t, `
servers:
  - {id: hog, cores: 4, burst: {work: 1000000000000}}
  - {id: late, cores: 4, burst: {work: 1000}}
`),
		Policy:  mustPolicy(t, "scheduler: {mode: \"batch:100\", retry_ceiling: 3}\n"),
		Horizon: 1000,
	})
	require.NoError(t, err)

	res, err := s.Run()
	require.NoError(t, err)

	// THEN the waiting server is reported unschedulable on the fourth cycle
	late := s.Service.Server("late")
	assert.Equal(t, compute.StateUnschedulable, late.State())
	assert.Equal(t, int64(400), late.FinishedAt())
	assert.Equal(t, 1, res.Summary.Unschedulable)
	assert.Equal(t, 1, res.Stats.ByState[compute.StateRunning])
	assert.Equal(t, int64(1000), res.EndTime)
}

func TestRun_BatchUnlimitedRetries_ReturnsWithServerQueued(t *testing.T) {
	// GIVEN a server wider than the only host, batch cycles and no horizon
	cfg := Config{
		Topology: mustTopology(t, oneHost),
		Workload: mustWorkload(t, `
servers:
  - {id: wide, cores: 8, burst: {work: 1000000}}
`),
		Policy: mustPolicy(t, "scheduler: {mode: \"batch:100\"}\n"),
	}
	require.NoError(t, cfg.Validate())
	s, err := New(cfg)
	require.NoError(t, err)

	// WHEN it runs until idle
	res, err := s.Run()
	require.NoError(t, err)

	// THEN the run ends after the one fruitless cycle with the server still waiting
	assert.Equal(t, int64(100), res.EndTime)
	assert.Equal(t, 1, res.Stats.Cycles)
	assert.Equal(t, compute.StateQueued, s.Service.Server("wide").State())
	assert.Zero(t, s.Engine.Pending())
}

func TestRun_SameSeed_SameTelemetry(t *testing.T) {
	run := func(seed int64) *telemetry.Recorder {
		s, err := New(Config{
			Topology: mustTopology(t, `
hosts:
  - name: node
    count: 4
    cpus: [{cores: 8, mhz: 2000}]
    memory_mib: 32768
    power: {model: square, idle_w: 80, max_w: 250}
`),
			Workload: mustWorkload(t, `
synthetic:
  count: 40
  inter_arrival: {type: exponential, params: {mean: 50}}
  work: {type: lognormal, params: {mu: 13, sigma: 1}}
  cores: {type: uniform, params: {min: 1, max: 8}}
  memory_mib: {type: constant, params: {value: 2048}}
`),
			Policy: mustPolicy(t, `
scheduler:
  mode: random::200
  requeue_failed: true
faults:
  enabled: true
  inter_arrival: {type: exponential, params: {mean: 400}}
  victim: {type: uniform, params: {min: 0, max: 0.5}}
  duration: {type: weibull, params: {k: 1.5, lambda: 100}}
`),
			Seed:    seed,
			Horizon: 5000,
		})
		require.NoError(t, err)
		_, err = s.Run()
		require.NoError(t, err)
		return s.Recorder
	}

	first := run(7)
	assert.NotEmpty(t, first.Servers)
	assert.NotEmpty(t, first.Faults)
	assert.Equal(t, first, run(7))
	assert.NotEqual(t, first.Faults, run(8).Faults)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	topo := mustTopology(t, oneHost)
	wl := mustWorkload(t, "servers:\n  - {id: vm, cores: 1, burst: {work: 1}}\n")
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing topology", Config{Workload: wl}},
		{"missing workload", Config{Topology: topo}},
		{"unbounded faults", Config{Topology: topo, Workload: wl, Policy: mustPolicy(t, `
faults:
  enabled: true
  inter_arrival: {type: constant, params: {value: 100}}
  duration: {type: constant, params: {value: 50}}
`)}},
		{"negative horizon", Config{Topology: topo, Workload: wl, Horizon: -1}},
		{"bad level", Config{Topology: topo, Workload: wl, Level: "verbose"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestRun_PrometheusSinkReceivesRecords(t *testing.T) {
	prom := telemetry.NewPrometheusSink()
	s, err := New(Config{
		Topology: mustTopology(t, oneHost),
		Workload: mustWorkload(t, "servers:\n  - {id: vm, cores: 4, burst: {work: 4000000}}\n"),
		Sink:     prom,
	})
	require.NoError(t, err)
	_, err = s.Run()
	require.NoError(t, err)

	families, err := prom.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fleetsim_energy_joules"])
	assert.True(t, names["fleetsim_server_transitions_total"])
}
