package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/reconciliation-engine/generic"
	"github.com/warp/reconciliation-engine/reconcile"
)

// Guard outcomes.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Metrics holds the engine's prometheus collectors on a private registry.
// It implements reconcile.Observer.
type Metrics struct {
	registry *prometheus.Registry

	guardSubmissions *prometheus.CounterVec
	closings         *prometheus.CounterVec
	variance         prometheus.Histogram
	aggregation      prometheus.Histogram
}

func NewMetrics() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		guardSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_guard_submissions_total",
			Help: "Guarded submissions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		closings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_closings_total",
			Help: "Closing lifecycle events.",
		}, []string{"event"}),
		variance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recon_closing_variance",
			Help:    "Absolute variance of created and updated closings.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		aggregation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recon_aggregation_seconds",
			Help:    "Period result computation latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(
		m.guardSubmissions,
		m.closings,
		m.variance,
		m.aggregation,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// GuardSubmission counts one guarded submission.
func (m *Metrics) GuardSubmission(operation, outcome string) {
	m.guardSubmissions.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) AggregationObserved(d time.Duration) {
	m.aggregation.Observe(d.Seconds())
}

func (m *Metrics) ClosingEvent(event string, variance generic.Amount) {
	m.closings.WithLabelValues(event).Inc()
	if event == reconcile.EventCreated || event == reconcile.EventUpdated {
		m.variance.Observe(variance.Abs().Float64())
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
