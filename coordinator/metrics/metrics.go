package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "dropcoord"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"
	OutcomeSkipped = "skipped"
)

// CycleBuckets covers module cycles from fast queries to slow relays.
var CycleBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Metrics holds the coordinator's instruments on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ModuleRunsTotal         *prometheus.CounterVec
	ModuleRunDuration       *prometheus.HistogramVec
	ModuleConsecutiveFails  *prometheus.GaugeVec
	TicksTotal              prometheus.Counter
	TickDuration            prometheus.Histogram
	RelayInvocationsTotal   *prometheus.CounterVec
	RelayQueryIDsTotal      prometheus.Counter
	FactoryDiscoveriesTotal *prometheus.CounterVec
	FactoryRoles            prometheus.Gauge
	PanicRecoveriesTotal    *prometheus.CounterVec
}

// New creates the instruments on a fresh registry that also carries Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ModuleRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "module",
			Name:      "runs_total",
			Help:      "Check cycles by module and outcome",
		}, []string{"module", "outcome"}),
		ModuleRunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "module",
			Name:      "run_duration_seconds",
			Help:      "Duration of check cycles",
			Buckets:   CycleBuckets,
		}, []string{"module"}),
		ModuleConsecutiveFails: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "module",
			Name:      "consecutive_failures",
			Help:      "Failed cycles since the last success",
		}, []string{"module"}),
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks executed",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of whole ticks",
			Buckets:   CycleBuckets,
		}),
		RelayInvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "relay",
			Name:      "invocations_total",
			Help:      "Relayer process invocations by result",
		}, []string{"result"}),
		RelayQueryIDsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "relay",
			Name:      "query_ids_total",
			Help:      "Interchain query identifiers handed to the relayer",
		}),
		FactoryDiscoveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "factory",
			Name:      "discoveries_total",
			Help:      "Factory discovery runs by result",
		}, []string{"result"}),
		FactoryRoles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "factory",
			Name:      "roles",
			Help:      "Contract roles known from the last discovery",
		}),
		PanicRecoveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "panic_recoveries_total",
			Help:      "Recovered panics by component",
		}, []string{"component"}),
	}
}

// ObserveModuleRun records one module cycle.
func (m *Metrics) ObserveModuleRun(module, outcome string, took time.Duration, consecutiveFailures int) {
	if m == nil {
		return
	}
	m.ModuleRunsTotal.WithLabelValues(module, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.ModuleRunDuration.WithLabelValues(module).Observe(took.Seconds())
	}
	m.ModuleConsecutiveFails.WithLabelValues(module).Set(float64(consecutiveFailures))
}

// ObserveTick records one scheduler tick.
func (m *Metrics) ObserveTick(took time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TickDuration.Observe(took.Seconds())
}

// ObserveRelay records one relayer invocation.
func (m *Metrics) ObserveRelay(ok bool, ids int) {
	if m == nil {
		return
	}
	result := OutcomeSuccess
	if !ok {
		result = OutcomeFailure
	}
	m.RelayInvocationsTotal.WithLabelValues(result).Inc()
	m.RelayQueryIDsTotal.Add(float64(ids))
}

// ObserveDiscovery records one factory discovery run.
func (m *Metrics) ObserveDiscovery(ok bool, roles int) {
	if m == nil {
		return
	}
	if !ok {
		m.FactoryDiscoveriesTotal.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.FactoryDiscoveriesTotal.WithLabelValues(OutcomeSuccess).Inc()
	m.FactoryRoles.Set(float64(roles))
}

// ObservePanic records a recovered panic.
func (m *Metrics) ObservePanic(component string) {
	if m == nil {
		return
	}
	m.PanicRecoveriesTotal.WithLabelValues(component).Inc()
}
