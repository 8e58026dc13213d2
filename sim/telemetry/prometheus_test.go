package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSink_TracksLatestHostSample(t *testing.T) {
	// GIVEN a sink that saw two samples of one host
	p := NewPrometheusSink()
	p.RecordHost(HostRecord{Time: 10, Host: "h0", State: "up", Power: 150, Granted: 2000, Workloads: 2})
	p.RecordHost(HostRecord{Time: 20, Host: "h0", State: "failed", Power: 0, Granted: 0, EnergyJ: 42})

	// THEN gauges hold the latest values
	assert.Equal(t, 0.0, testutil.ToFloat64(p.power.WithLabelValues("h0")))
	assert.Equal(t, 42.0, testutil.ToFloat64(p.energy.WithLabelValues("h0")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.up.WithLabelValues("h0")))
	assert.Equal(t, 20.0, testutil.ToFloat64(p.simTime))
}

func TestPrometheusSink_CountsEvents(t *testing.T) {
	p := NewPrometheusSink()
	p.RecordServer(ServerRecord{Server: "a", To: "running"})
	p.RecordServer(ServerRecord{Server: "b", To: "running"})
	p.RecordServer(ServerRecord{Server: "b", To: "failed"})
	p.RecordFault(FaultRecord{Host: "h0", Kind: FaultFail})

	assert.Equal(t, 2.0, testutil.ToFloat64(p.transitions.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.transitions.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.faults.WithLabelValues("fail")))
}

func TestPrometheusSink_WriteTextfile(t *testing.T) {
	// GIVEN a sink with one sample
	p := NewPrometheusSink()
	p.RecordHost(HostRecord{Time: 5, Host: "h0", State: "up", Power: 120})
	path := filepath.Join(t.TempDir(), "fleet.prom")

	// WHEN written
	require.NoError(t, p.WriteTextfile(path))

	// THEN the file holds the exposition text
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `fleetsim_host_power_watts{host="h0"} 120`), string(data))
}
