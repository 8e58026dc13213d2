package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsim/fleet-sim/sim/scenario"
)

const (
	testTopology = `
hosts:
  - name: h
    count: 2
    cpus: [{cores: 4, mhz: 1000}]
    memory_mib: 8192
    power: {model: linear, idle_w: 100, max_w: 200}
`
	testWorkload = `
servers:
  - {id: vm-0, cores: 4, memory_mib: 1024, burst: {work: 4000000}}
  - {id: vm-1, submit_ms: 250, cores: 2, memory_mib: 1024, burst: {work: 1000000}}
`
	testPolicy = `
scheduler:
  mode: batch:100
  weighers: instance-count:-1
`
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCmd_ReportsCounts(t *testing.T) {
	// GIVEN valid input files
	dir := t.TempDir()
	args := []string{"validate",
		"--topology", writeFile(t, dir, "topology.yaml", testTopology),
		"--workload", writeFile(t, dir, "workload.yaml", testWorkload),
		"--policy", writeFile(t, dir, "policy.yaml", testPolicy),
	}

	// WHEN validate runs
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	// THEN it succeeds and counts expanded hosts and servers
	require.NoError(t, err)
	assert.Contains(t, out.String(), "OK: 2 hosts, 2 servers")
}

func TestValidateCmd_RejectsBadPolicy(t *testing.T) {
	dir := t.TempDir()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"validate",
		"--topology", writeFile(t, dir, "topology.yaml", testTopology),
		"--workload", writeFile(t, dir, "workload.yaml", testWorkload),
		"--policy", writeFile(t, dir, "policy.yaml", "scheduler: {mode: fifo}\n"),
	})
	assert.Error(t, rootCmd.Execute())
}

func TestValidateCmd_HonoursLogFlag(t *testing.T) {
	prev := logrus.GetLevel()
	t.Cleanup(func() {
		logrus.SetLevel(prev)
		logLevel = "error"
	})
	dir := t.TempDir()
	base := []string{"validate",
		"--topology", writeFile(t, dir, "topology.yaml", testTopology),
		"--workload", writeFile(t, dir, "workload.yaml", testWorkload),
		"--policy", writeFile(t, dir, "policy.yaml", testPolicy),
	}
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})

	// WHEN validate runs with --log debug
	rootCmd.SetArgs(append(base, "--log", "debug"))
	require.NoError(t, rootCmd.Execute())

	// THEN the logger level follows the flag
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	// AND an unknown level is rejected
	rootCmd.SetArgs(append(base, "--log", "loud"))
	assert.Error(t, rootCmd.Execute())
}

func TestBuildConfig_FlagsOverridePolicy(t *testing.T) {
	// GIVEN a policy file in batch mode
	dir := t.TempDir()
	cmd := validateCmd
	require.NoError(t, cmd.Flags().Set("topology", writeFile(t, dir, "topology.yaml", testTopology)))
	require.NoError(t, cmd.Flags().Set("workload", writeFile(t, dir, "workload.yaml", testWorkload)))
	require.NoError(t, cmd.Flags().Set("policy", writeFile(t, dir, "policy.yaml", testPolicy)))

	// WHEN --mode and --filters are given
	require.NoError(t, cmd.Flags().Set("mode", "random:3:50"))
	require.NoError(t, cmd.Flags().Set("filters", "compute"))
	cfg, err := buildConfig(cmd)
	require.NoError(t, err)

	// THEN they win over the file while untouched fields keep their values
	assert.Equal(t, "random:3:50", cfg.Policy.Scheduler.Mode)
	assert.Equal(t, "compute", cfg.Policy.Scheduler.Filters)
	assert.Equal(t, "instance-count:-1", cfg.Policy.Scheduler.Weighers)
	assert.NoError(t, cfg.Validate())
}

func TestReport_PrintAndSave(t *testing.T) {
	// GIVEN a finished run on two hosts spreading by instance count
	dir := t.TempDir()
	topologyPath = writeFile(t, dir, "topology.yaml", testTopology)
	workloadPath = writeFile(t, dir, "workload.yaml", testWorkload)
	policyPath = writeFile(t, dir, "policy.yaml", testPolicy)
	cfg, err := buildConfig(runCmd)
	require.NoError(t, err)
	cfg.Horizon = 0
	s, err := scenario.New(cfg)
	require.NoError(t, err)
	res, err := s.Run()
	require.NoError(t, err)

	// WHEN the report is built and printed
	report := NewReport(res, s.Service, time.Second)
	var out bytes.Buffer
	report.Print(&out)

	// THEN both servers terminated on different hosts
	assert.Contains(t, out.String(), "Simulation Metrics")
	assert.Contains(t, out.String(), "total_energy_j")
	assert.Equal(t, 2, report.FinalStates["terminated"])
	require.Len(t, report.ServerDetails, 2)
	assert.Equal(t, int64(100), report.ServerDetails[0].StartedAt)
	assert.Equal(t, int64(300), report.ServerDetails[1].StartedAt)
	require.Len(t, report.Hosts, 2)
	assert.Greater(t, report.TotalEnergyJ, 0.0)

	// AND it round-trips through a file
	path := filepath.Join(dir, "results.json")
	require.NoError(t, report.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"end_time_ms": 1100`)
}
