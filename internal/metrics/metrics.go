// Package metrics holds the Prometheus collectors nodekeeper exports.
//
// A nil *Metrics is valid and records nothing, so components can take one
// as an optional dependency without guarding every call site.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nodekeeper"

// Registration cycle results.
const (
	ResultPublished     = "published"
	ResultFetchFailed   = "fetch_failed"
	ResultPublishFailed = "publish_failed"
	ResultReset         = "reset"
)

// Discovery attempt results.
const (
	DiscoveryFound = "found"
	DiscoveryEmpty = "empty"
	DiscoveryError = "error"
)

// Metrics groups every collector.
type Metrics struct {
	RegistrationCycles   *prometheus.CounterVec
	RegistrationTriggers prometheus.Counter
	QueueDepth           prometheus.Gauge
	ProcessExits         *prometheus.CounterVec
	ProcessLaunches      prometheus.Counter
	DiscoveryAttempts    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. reg may be nil,
// in which case the collectors work but are not exported.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RegistrationCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "cycles_total",
			Help:      "Registration cycles by how they ended.",
		}, []string{"result"}),
		RegistrationTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "triggers_total",
			Help:      "Trigger tokens enqueued.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "queue_depth",
			Help:      "Trigger tokens waiting for the machine to become idle.",
		}),
		ProcessExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Supervised process exits by clean or unclean status.",
		}, []string{"success"}),
		ProcessLaunches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "launches_total",
			Help:      "Supervised process launches, including the first.",
		}),
		DiscoveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "attempts_total",
			Help:      "Startup static-enode fetch attempts by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RegistrationCycles,
			m.RegistrationTriggers,
			m.QueueDepth,
			m.ProcessExits,
			m.ProcessLaunches,
			m.DiscoveryAttempts,
		)
	}
	return m
}

// Cycle counts one finished registration cycle.
func (m *Metrics) Cycle(result string) {
	if m == nil {
		return
	}
	m.RegistrationCycles.WithLabelValues(result).Inc()
}

// Triggered counts one trigger and records the resulting queue depth.
func (m *Metrics) Triggered(depth int) {
	if m == nil {
		return
	}
	m.RegistrationTriggers.Inc()
	m.QueueDepth.Set(float64(depth))
}

// Dequeued records the queue depth after a token was consumed.
func (m *Metrics) Dequeued(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// Exited counts one process exit.
func (m *Metrics) Exited(success bool) {
	if m == nil {
		return
	}
	m.ProcessExits.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// Launched counts one process launch.
func (m *Metrics) Launched() {
	if m == nil {
		return
	}
	m.ProcessLaunches.Inc()
}

// Discovery counts one startup discovery attempt.
func (m *Metrics) Discovery(result string) {
	if m == nil {
		return
	}
	m.DiscoveryAttempts.WithLabelValues(result).Inc()
}
