package telemetry

import "sort"

// HostSummary aggregates the samples of one host.
type HostSummary struct {
	Host            string
	Samples         int
	EnergyJ         float64
	PeakPower       float64
	PeakGranted     float64
	MeanUtilization float64 // time-weighted over the sampled span
}

// Summary aggregates a Recorder.
type Summary struct {
	Servers       int
	FinalStates   map[string]int // state → servers ending in it
	Placements    int
	Unschedulable int
	Failures      int
	Recoveries    int
	TotalEnergyJ  float64
	Hosts         []HostSummary // sorted by host name
}

// Summarize computes aggregate statistics from a Recorder.
// Safe for nil or empty recorders (returns zero-value fields).
func Summarize(r *Recorder) *Summary {
	s := &Summary{FinalStates: make(map[string]int)}
	if r == nil {
		return s
	}

	final := make(map[string]string)
	for _, rec := range r.Servers {
		final[rec.Server] = rec.To
		switch rec.To {
		case "scheduled":
			s.Placements++
		case "unschedulable":
			s.Unschedulable++
		}
	}
	s.Servers = len(final)
	for _, state := range final {
		s.FinalStates[state]++
	}

	for _, f := range r.Faults {
		switch f.Kind {
		case FaultFail:
			s.Failures++
		case FaultRecover:
			s.Recoveries++
		}
	}

	type acc struct {
		sum      HostSummary
		lastTime int64
		lastUtil float64
		busy     float64
		start    int64
	}
	hosts := make(map[string]*acc)
	for _, rec := range r.Hosts {
		a, ok := hosts[rec.Host]
		if !ok {
			a = &acc{sum: HostSummary{Host: rec.Host}, start: rec.Time, lastTime: rec.Time}
			hosts[rec.Host] = a
		}
		a.busy += a.lastUtil * float64(rec.Time-a.lastTime)
		a.lastTime = rec.Time
		a.lastUtil = rec.Utilization()
		a.sum.Samples++
		a.sum.EnergyJ = rec.EnergyJ
		a.sum.PeakPower = max(a.sum.PeakPower, rec.Power)
		a.sum.PeakGranted = max(a.sum.PeakGranted, rec.Granted)
	}
	for _, a := range hosts {
		if span := a.lastTime - a.start; span > 0 {
			a.sum.MeanUtilization = a.busy / float64(span)
		}
		s.TotalEnergyJ += a.sum.EnergyJ
		s.Hosts = append(s.Hosts, a.sum)
	}
	sort.Slice(s.Hosts, func(i, j int) bool { return s.Hosts[i].Host < s.Hosts[j].Host })
	return s
}
