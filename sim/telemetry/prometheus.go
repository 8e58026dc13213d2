package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports the latest host samples and event counts as
// Prometheus metrics on its own registry.
type PrometheusSink struct {
	registry *prometheus.Registry

	simTime     prometheus.Gauge
	power       *prometheus.GaugeVec
	energy      *prometheus.GaugeVec
	requested   *prometheus.GaugeVec
	granted     *prometheus.GaugeVec
	workloads   *prometheus.GaugeVec
	up          *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	faults      *prometheus.CounterVec
}

// NewPrometheusSink creates a sink with every metric registered.
func NewPrometheusSink() *PrometheusSink {
	hostGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleetsim",
			Subsystem: "host",
			Name:      name,
			Help:      help,
		}, []string{"host"})
	}
	p := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleetsim",
			Name:      "virtual_time_ms",
			Help:      "Virtual time of the most recent record.",
		}),
		power:     hostGauge("power_watts", "Power drawn by the host's PSU."),
		energy:    hostGauge("energy_joules", "Energy consumed by the host since it was added."),
		requested: hostGauge("cpu_requested_mhz", "CPU rate requested by workloads on the host."),
		granted:   hostGauge("cpu_granted_mhz", "CPU rate granted to workloads on the host."),
		workloads: hostGauge("workloads", "Servers placed on the host."),
		up:        hostGauge("up", "1 when the host is up, 0 otherwise."),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetsim",
			Name:      "server_transitions_total",
			Help:      "Server state transitions by target state.",
		}, []string{"to"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetsim",
			Name:      "host_faults_total",
			Help:      "Host failures and recoveries.",
		}, []string{"kind"}),
	}
	p.registry.MustRegister(p.simTime, p.power, p.energy, p.requested, p.granted,
		p.workloads, p.up, p.transitions, p.faults)
	return p
}

// Registry returns the registry the metrics live on.
func (p *PrometheusSink) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusSink) RecordHost(r HostRecord) {
	p.simTime.Set(float64(r.Time))
	p.power.WithLabelValues(r.Host).Set(r.Power)
	p.energy.WithLabelValues(r.Host).Set(r.EnergyJ)
	p.requested.WithLabelValues(r.Host).Set(r.Requested)
	p.granted.WithLabelValues(r.Host).Set(r.Granted)
	p.workloads.WithLabelValues(r.Host).Set(float64(r.Workloads))
	up := 0.0
	if r.State == "up" {
		up = 1
	}
	p.up.WithLabelValues(r.Host).Set(up)
}

func (p *PrometheusSink) RecordServer(r ServerRecord) {
	p.simTime.Set(float64(r.Time))
	p.transitions.WithLabelValues(r.To).Inc()
}

func (p *PrometheusSink) RecordFault(r FaultRecord) {
	p.simTime.Set(float64(r.Time))
	p.faults.WithLabelValues(string(r.Kind)).Inc()
}

// WriteTextfile writes the current metrics in the text exposition format,
// suitable for the node exporter's textfile collector.
func (p *PrometheusSink) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
