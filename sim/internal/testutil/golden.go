// Package testutil provides shared test infrastructure for the fleet
// simulator: the golden scenario dataset and assertion helpers.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one end-to-end scenario. Topology, workload and policy
// hold the YAML documents the CLI would load from files.
type GoldenTestCase struct {
	Name      string        `json:"name"`
	Topology  string        `json:"topology"`
	Workload  string        `json:"workload"`
	Policy    string        `json:"policy,omitempty"`
	Seed      int64         `json:"seed"`
	HorizonMs int64         `json:"horizon_ms"`
	Metrics   GoldenMetrics `json:"metrics"`
}

// GoldenMetrics represents the expected outcome of a golden test case.
type GoldenMetrics struct {
	// Exact match metrics
	EndTimeMs     int64 `json:"end_time_ms"`
	Terminated    int   `json:"terminated"`
	Placements    int   `json:"placements"`
	Unschedulable int   `json:"unschedulable"`
	Failures      int   `json:"failures"`
	Recoveries    int   `json:"recoveries"`

	// Energy is integrated from piecewise-constant power
	TotalEnergyJ float64 `json:"total_energy_j"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
