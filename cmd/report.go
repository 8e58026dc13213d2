package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fleetsim/fleet-sim/sim/compute"
	"github.com/fleetsim/fleet-sim/sim/scenario"
)

// HostReport is the per-host section of a Report.
type HostReport struct {
	Host            string  `json:"host"`
	State           string  `json:"state"`
	EnergyJ         float64 `json:"energy_j"`
	PeakPowerW      float64 `json:"peak_power_w"`
	MeanUtilization float64 `json:"mean_utilization"`
}

// ServerReport is the per-server section of a Report.
type ServerReport struct {
	ID             string  `json:"id"`
	State          string  `json:"state"`
	Host           string  `json:"host,omitempty"`
	SubmittedAt    int64   `json:"submitted_ms"`
	StartedAt      int64   `json:"started_ms"`
	FinishedAt     int64   `json:"finished_ms"`
	Placements     int     `json:"placements"`
	DeliveredMHzMs float64 `json:"delivered_mhz_ms"`
	Reason         string  `json:"reason,omitempty"`
}

// Report is the JSON summary of a run.
type Report struct {
	EndTimeMs      int64          `json:"end_time_ms"`
	Events         uint64         `json:"events"`
	WallTimeSec    float64        `json:"wall_time_sec"`
	Servers        int            `json:"servers"`
	FinalStates    map[string]int `json:"final_states"`
	Placements     int            `json:"placements"`
	Cycles         int            `json:"scheduling_cycles"`
	Unschedulable  int            `json:"unschedulable"`
	HostFailures   int            `json:"host_failures"`
	HostRecoveries int            `json:"host_recoveries"`
	TotalEnergyJ   float64        `json:"total_energy_j"`
	Hosts          []HostReport   `json:"hosts"`
	ServerDetails  []ServerReport `json:"server_details,omitempty"`
}

// NewReport assembles a report from a finished run.
func NewReport(res *scenario.Result, svc *compute.Service, elapsed time.Duration) *Report {
	r := &Report{
		EndTimeMs:      res.EndTime,
		Events:         res.Events,
		WallTimeSec:    elapsed.Seconds(),
		Servers:        res.Stats.Submitted,
		FinalStates:    make(map[string]int),
		Placements:     res.Stats.Placements,
		Cycles:         res.Stats.Cycles,
		Unschedulable:  len(svc.Unschedulable()),
		HostFailures:   res.Summary.Failures,
		HostRecoveries: res.Summary.Recoveries,
	}
	for state, n := range res.Stats.ByState {
		r.FinalStates[state.String()] = n
	}

	// Energy is read from the hosts; peaks and utilization need samples.
	utilization := make(map[string]float64)
	peak := make(map[string]float64)
	for _, h := range res.Summary.Hosts {
		utilization[h.Host] = h.MeanUtilization
		peak[h.Host] = h.PeakPower
	}
	for _, h := range svc.Hosts() {
		r.TotalEnergyJ += h.EnergyJ()
		r.Hosts = append(r.Hosts, HostReport{
			Host:            h.Name(),
			State:           h.State().String(),
			EnergyJ:         h.EnergyJ(),
			PeakPowerW:      peak[h.Name()],
			MeanUtilization: utilization[h.Name()],
		})
	}
	sort.Slice(r.Hosts, func(i, j int) bool { return r.Hosts[i].Host < r.Hosts[j].Host })

	for _, s := range svc.Servers() {
		sr := ServerReport{
			ID:             s.ID(),
			State:          s.State().String(),
			SubmittedAt:    s.SubmittedAt(),
			StartedAt:      s.StartedAt(),
			FinishedAt:     s.FinishedAt(),
			Placements:     s.Placements(),
			DeliveredMHzMs: s.Delivered(),
		}
		if h := s.Host(); h != nil {
			sr.Host = h.Name()
		}
		if err := s.Cause(); err != nil {
			sr.Reason = err.Error()
		}
		r.ServerDetails = append(r.ServerDetails, sr)
	}
	return r
}

// Print writes the report header and JSON to w.
func (r *Report) Print(w io.Writer) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "error marshalling report: %v\n", err)
		return
	}
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintln(w, string(data))
}

// Save writes the report as JSON to path.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
