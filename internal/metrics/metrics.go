// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mcp-diet-opt/internal/optimizer"
)

const namespace = "diet_opt"

// Metrics records optimization runs. It implements optimizer.Observer.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	infeasibleRuns prometheus.Counter
	solveDuration  prometheus.Histogram
	activeFoods    prometheus.Gauge
	slackTotal     prometheus.Gauge
	totalCost      prometheus.Gauge
}

// New registers the collectors, plus the Go and process collectors, on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Optimization runs by solver status.",
		}, []string{"status"}),
		infeasibleRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "infeasible_runs_total",
			Help:      "Runs that finished with nonzero slack or without an optimum.",
		}),
		solveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Time spent building and solving the LP.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		activeFoods: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_foods",
			Help:      "Foods in the snapshot of the latest run.",
		}),
		slackTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_slack_total",
			Help:      "Sum of slack values of the latest run.",
		}),
		totalCost: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_total_cost",
			Help:      "Total food cost of the latest run.",
		}),
	}
}

func (m *Metrics) ObserveRun(run *optimizer.Run) {
	m.runsTotal.WithLabelValues(string(run.Status)).Inc()
	if !run.Feasible() {
		m.infeasibleRuns.Inc()
	}
	m.solveDuration.Observe(run.Duration.Seconds())
	m.activeFoods.Set(float64(len(run.Foods)))
	m.slackTotal.Set(run.SlackTotal())
	m.totalCost.Set(run.TotalCost())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
