package catalog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/groundlink/metric"
)

// builderMetrics holds Prometheus metrics for the catalog builder.
type builderMetrics struct {
	buildsTotal       *prometheus.CounterVec
	buildDuration     prometheus.Histogram
	nodes             prometheus.Gauge
	parametersDropped prometheus.Counter
}

// newBuilderMetrics creates and registers builder metrics.
func newBuilderMetrics(registry *metric.Registry) *builderMetrics {
	if registry == nil {
		return nil
	}

	m := &builderMetrics{
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundlink",
			Subsystem: "catalog",
			Name:      "builds_total",
			Help:      "Total catalog build attempts by result",
		}, []string{"result"}),

		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "groundlink",
			Subsystem: "catalog",
			Name:      "build_duration_seconds",
			Help:      "Catalog build duration",
			Buckets:   []float64{0.05, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
		}),

		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "groundlink",
			Subsystem: "catalog",
			Name:      "nodes",
			Help:      "Number of nodes in the built catalog",
		}),

		parametersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groundlink",
			Subsystem: "catalog",
			Name:      "parameters_dropped_total",
			Help:      "Parameters dropped because their parent folder could not be resolved",
		}),
	}

	_ = registry.RegisterCounterVec("catalog", "builds_total", m.buildsTotal)
	_ = registry.RegisterHistogram("catalog", "build_duration", m.buildDuration)
	_ = registry.RegisterGauge("catalog", "nodes", m.nodes)
	_ = registry.RegisterCounter("catalog", "parameters_dropped", m.parametersDropped)

	return m
}

func (m *builderMetrics) observeBuild(elapsed time.Duration, nodeCount int, err error) {
	m.buildDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.buildsTotal.WithLabelValues("error").Inc()
		return
	}
	m.buildsTotal.WithLabelValues("success").Inc()
	m.nodes.Set(float64(nodeCount))
}
