package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsim/fleet-sim/sim/internal/testutil"
)

func TestRun_GoldenDataset(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	require.NotEmpty(t, dataset.Tests)

	for _, tc := range dataset.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			cfg := Config{
				Topology: mustTopology(t, tc.Topology),
				Workload: mustWorkload(t, tc.Workload),
				Seed:     tc.Seed,
				Horizon:  tc.HorizonMs,
			}
			if tc.Policy != "" {
				cfg.Policy = mustPolicy(t, tc.Policy)
			}
			s, err := New(cfg)
			require.NoError(t, err)
			res, err := s.Run()
			require.NoError(t, err)

			want := tc.Metrics
			assert.Equal(t, want.EndTimeMs, res.EndTime, "end_time_ms")
			assert.Equal(t, want.Terminated, res.Summary.FinalStates["terminated"], "terminated")
			assert.Equal(t, want.Placements, res.Summary.Placements, "placements")
			assert.Equal(t, want.Unschedulable, res.Summary.Unschedulable, "unschedulable")
			assert.Equal(t, want.Failures, res.Summary.Failures, "failures")
			assert.Equal(t, want.Recoveries, res.Summary.Recoveries, "recoveries")
			testutil.AssertFloat64Equal(t, "total_energy_j", want.TotalEnergyJ, res.Summary.TotalEnergyJ, 1e-9)
		})
	}
}
