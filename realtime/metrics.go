package realtime

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/groundlink/metric"
)

// engineMetrics holds Prometheus metrics for the subscription engine.
type engineMetrics struct {
	framesReceived    prometheus.Counter
	samplesDispatched prometheus.Counter
	samplesDropped    prometheus.Counter
	commandsSent      *prometheus.CounterVec
	connectFailures   prometheus.Counter
	reconnectAttempts prometheus.Counter
	connectionState   prometheus.Gauge
	pendingQueueDepth prometheus.Gauge
}

// newEngineMetrics creates and registers engine metrics.
func newEngineMetrics(registry *metric.Registry) *engineMetrics {
	if registry == nil {
		return nil
	}

	m := &engineMetrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groundlink",
			Subsystem: "realtime",
			Name:      "frames_received_total",
			Help:      "Total inbound frames received",
		}),

		samplesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groundlink",
			Subsystem: "realtime",
			Name:      "samples_dispatched_total",
			Help:      "Total samples delivered to subscriber callbacks",
		}),

		samplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groundlink",
			Subsystem: "realtime",
			Name:      "samples_dropped_total",
			Help:      "Total samples dropped for identifiers with no registered callback",
		}),

		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groundlink",
			Subsystem: "realtime",
			Name:      "commands_sent_total",
			Help:      "Total outbound commands written by operation",
		}, []string{"operation"}),

		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groundlink",
			Subsystem: "realtime",
			Name:      "connect_failures_total",
			Help:      "Total failed connection attempts",
		}),

		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groundlink",
			Subsystem: "realtime",
			Name:      "reconnect_attempts_total",
			Help:      "Total reconnect attempts scheduled",
		}),

		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "groundlink",
			Subsystem: "realtime",
			Name:      "connection_state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=connected)",
		}),

		pendingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "groundlink",
			Subsystem: "realtime",
			Name:      "pending_queue_depth",
			Help:      "Commands queued while disconnected",
		}),
	}

	_ = registry.RegisterCounter("realtime", "frames_received", m.framesReceived)
	_ = registry.RegisterCounter("realtime", "samples_dispatched", m.samplesDispatched)
	_ = registry.RegisterCounter("realtime", "samples_dropped", m.samplesDropped)
	_ = registry.RegisterCounterVec("realtime", "commands_sent", m.commandsSent)
	_ = registry.RegisterCounter("realtime", "connect_failures", m.connectFailures)
	_ = registry.RegisterCounter("realtime", "reconnect_attempts", m.reconnectAttempts)
	_ = registry.RegisterGauge("realtime", "connection_state", m.connectionState)
	_ = registry.RegisterGauge("realtime", "pending_queue_depth", m.pendingQueueDepth)

	return m
}
