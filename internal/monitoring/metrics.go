// Package monitoring exports run results to Prometheus and summarizes the
// run log for operators.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fund-cli/internal/config"
	"github.com/sells-group/fund-cli/internal/fundsync"
)

const namespace = "fund_sync"

// Metrics holds the per-run Prometheus collectors. A run is a short-lived
// batch job, so results are pushed to a Pushgateway once at the end rather
// than scraped.
type Metrics struct {
	EntitiesTotal  *prometheus.CounterVec
	AdapterResults *prometheus.CounterVec
	RowsWritten    prometheus.Counter
	RunDuration    prometheus.Gauge
	LastCompletion prometheus.Gauge
	EntityDuration prometheus.Histogram

	url      string
	job      string
	registry *prometheus.Registry
	mu       sync.Mutex
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(cfg config.MetricsConfig) *Metrics {
	m := &Metrics{
		url:      cfg.PushgatewayURL,
		job:      cfg.Job,
		registry: prometheus.NewRegistry(),
	}
	if m.job == "" {
		m.job = "fund_cli"
	}

	m.EntitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Entities processed, by outcome",
		},
		[]string{"outcome"},
	)
	m.AdapterResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_results_total",
			Help:      "Adapter results, by adapter and status",
		},
		[]string{"adapter", "status"},
	)
	m.RowsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_written_total",
		Help:      "Fact rows written",
	})
	m.RunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	m.LastCompletion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_completion_timestamp_seconds",
		Help:      "Unix time the last run completed",
	})
	m.EntityDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "entity_duration_seconds",
		Help:      "Time spent on one entity",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	m.registry.MustRegister(
		m.EntitiesTotal,
		m.AdapterResults,
		m.RowsWritten,
		m.RunDuration,
		m.LastCompletion,
		m.EntityDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEntity records one entity result.
func (m *Metrics) ObserveEntity(res fundsync.EntityResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EntitiesTotal.WithLabelValues(string(res.Outcome)).Inc()
	for _, a := range res.Adapters {
		m.AdapterResults.WithLabelValues(string(a.Kind), string(a.Status)).Inc()
	}
	m.RowsWritten.Add(float64(res.RowsWritten))
	m.EntityDuration.Observe(res.Duration.Seconds())
}

// ObserveRun records the end of a run.
func (m *Metrics) ObserveRun(_ *fundsync.Summary, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RunDuration.Set(elapsed.Seconds())
	m.LastCompletion.SetToCurrentTime()
}

// Push sends every collector to the Pushgateway. Without a configured URL
// it does nothing.
func (m *Metrics) Push(ctx context.Context) error {
	if m.url == "" {
		return nil
	}
	if err := push.New(m.url, m.job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return eris.Wrap(err, "monitoring: push metrics")
	}
	return nil
}
