// Package telemetry records what happened during a fleet simulation.
// This package has no dependencies on sim/ or its sub-packages. It stores
// pure data types and the sinks that consume them.
package telemetry

// HostRecord samples one host after a flow recomputation. Rates are in MHz,
// power in watts and energy in joules since the host was added.
type HostRecord struct {
	Time      int64
	Host      string
	State     string
	Capacity  float64
	Requested float64
	Granted   float64
	Workloads int
	Power     float64
	EnergyJ   float64
}

// Utilization returns Granted/Capacity, or 0 for a host without capacity.
func (r HostRecord) Utilization() float64 {
	if r.Capacity <= 0 {
		return 0
	}
	return r.Granted / r.Capacity
}

// ServerRecord captures one server state transition. Host is empty when
// the server is not placed.
type ServerRecord struct {
	Time   int64
	Server string
	From   string
	To     string
	Host   string
	Reason string
}

// FaultKind distinguishes failures from recoveries.
type FaultKind string

const (
	FaultFail    FaultKind = "fail"
	FaultRecover FaultKind = "recover"
)

// FaultRecord captures a host failing or recovering.
type FaultRecord struct {
	Time int64
	Host string
	Kind FaultKind
}
