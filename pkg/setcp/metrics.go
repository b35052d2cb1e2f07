package setcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "setcp"

// Metrics exports solver activity as Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	propagations *prometheus.CounterVec
	exclusions   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	rounds       prometheus.Histogram
	nodes        prometheus.Counter
	solutions    prometheus.Counter
}

// NewMetrics creates the solver metrics and registers them with reg.
// Registering twice with the same registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		propagations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "propagations_total",
			Help:      "Number of propagator runs, by constraint kind.",
		}, []string{"constraint"}),
		exclusions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exclusions_total",
			Help:      "Number of values removed from upper bounds, by constraint kind.",
		}, []string{"constraint"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "Number of propagator runs that detected a contradiction, by constraint kind.",
		}, []string{"constraint"}),
		rounds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fixpoint_rounds",
			Help:      "Scheduling rounds needed per fixpoint computation.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		nodes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "search_nodes_total",
			Help:      "Number of search nodes explored.",
		}),
		solutions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "solutions_total",
			Help:      "Number of solutions found.",
		}),
	}
}

func (m *Metrics) propagation(kind string) {
	if m == nil {
		return
	}
	m.propagations.WithLabelValues(kind).Inc()
}

func (m *Metrics) exclusion(kind string) {
	if m == nil {
		return
	}
	m.exclusions.WithLabelValues(kind).Inc()
}

func (m *Metrics) failure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

func (m *Metrics) fixpoint(rounds int) {
	if m == nil {
		return
	}
	m.rounds.Observe(float64(rounds))
}

func (m *Metrics) node() {
	if m == nil {
		return
	}
	m.nodes.Inc()
}

func (m *Metrics) solution() {
	if m == nil {
		return
	}
	m.solutions.Inc()
}
