package telemetry

import (
	"math"
	"testing"
)

func TestSummarize_Nil_ZeroValues(t *testing.T) {
	s := Summarize(nil)
	if s.Servers != 0 || s.TotalEnergyJ != 0 || len(s.Hosts) != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
	if s.FinalStates == nil {
		t.Error("FinalStates should be non-nil")
	}
}

func TestSummarize_ServerStates(t *testing.T) {
	// GIVEN transitions for three servers
	r := NewRecorder(LevelFull)
	for _, rec := range []ServerRecord{
		{Server: "a", From: "requested", To: "queued"},
		{Server: "a", From: "queued", To: "scheduled", Host: "h0"},
		{Server: "a", From: "scheduled", To: "running", Host: "h0"},
		{Server: "a", From: "running", To: "terminated", Host: "h0"},
		{Server: "b", From: "requested", To: "queued"},
		{Server: "b", From: "queued", To: "unschedulable"},
		{Server: "c", From: "requested", To: "queued"},
		{Server: "c", From: "queued", To: "scheduled", Host: "h1"},
		{Server: "c", From: "scheduled", To: "running", Host: "h1"},
	} {
		r.RecordServer(rec)
	}
	r.RecordFault(FaultRecord{Host: "h1", Kind: FaultFail})
	r.RecordFault(FaultRecord{Host: "h1", Kind: FaultRecover})

	// WHEN summarized
	s := Summarize(r)

	// THEN final states and counts match
	if s.Servers != 3 {
		t.Errorf("servers = %d, want 3", s.Servers)
	}
	want := map[string]int{"terminated": 1, "unschedulable": 1, "running": 1}
	for k, v := range want {
		if s.FinalStates[k] != v {
			t.Errorf("final %s = %d, want %d", k, s.FinalStates[k], v)
		}
	}
	if s.Placements != 2 || s.Unschedulable != 1 {
		t.Errorf("placements=%d unschedulable=%d", s.Placements, s.Unschedulable)
	}
	if s.Failures != 1 || s.Recoveries != 1 {
		t.Errorf("failures=%d recoveries=%d", s.Failures, s.Recoveries)
	}
}

func TestSummarize_HostEnergyAndUtilization(t *testing.T) {
	// GIVEN a host fully busy for 1000 ms then idle for 1000 ms
	r := NewRecorder(LevelFull)
	r.RecordHost(HostRecord{Time: 0, Host: "h0", Capacity: 4000, Granted: 4000, Power: 200})
	r.RecordHost(HostRecord{Time: 1000, Host: "h0", Capacity: 4000, Granted: 0, Power: 100, EnergyJ: 200})
	r.RecordHost(HostRecord{Time: 2000, Host: "h0", Capacity: 4000, Granted: 0, Power: 100, EnergyJ: 300})
	r.RecordHost(HostRecord{Time: 0, Host: "a-first", Capacity: 1, EnergyJ: 1})

	// WHEN summarized
	s := Summarize(r)

	// THEN energy is the last cumulative value and utilization is time-weighted
	if len(s.Hosts) != 2 || s.Hosts[0].Host != "a-first" {
		t.Fatalf("hosts = %+v", s.Hosts)
	}
	h := s.Hosts[1]
	if h.EnergyJ != 300 || h.PeakPower != 200 || h.PeakGranted != 4000 || h.Samples != 3 {
		t.Errorf("host summary = %+v", h)
	}
	if math.Abs(h.MeanUtilization-0.5) > 1e-12 {
		t.Errorf("mean utilization = %v, want 0.5", h.MeanUtilization)
	}
	if s.TotalEnergyJ != 301 {
		t.Errorf("total energy = %v, want 301", s.TotalEnergyJ)
	}
}
