package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics contains HTTP-related Prometheus metrics
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// GRPCMetrics contains gRPC-related Prometheus metrics
type GRPCMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// WarehouseMetrics covers the outbox, agent runtime, and consumer.
type WarehouseMetrics struct {
	OutboxQueueSize    prometheus.Gauge
	OutboxPublishTotal *prometheus.CounterVec
	AgentInvocations   *prometheus.CounterVec
	AgentDuration      *prometheus.HistogramVec
	ConsumerRetries    prometheus.Counter
}

// NewHTTPMetrics creates HTTP metrics for a service
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// NewGRPCMetrics creates gRPC metrics for a service
func NewGRPCMetrics(serviceName string) *GRPCMetrics {
	return &GRPCMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_grpc_request_duration_seconds",
				Help:    "gRPC request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// NewWarehouseMetrics creates the outbox/agent/consumer series shared by
// the dispatcher and consumer binaries.
func NewWarehouseMetrics() *WarehouseMetrics {
	return &WarehouseMetrics{
		OutboxQueueSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "outbox_queue_size",
				Help: "Number of PENDING rows in the outbox table",
			},
		),
		OutboxPublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_publish_total",
				Help: "Outbox publish attempts by outcome",
			},
			[]string{"status"},
		),
		AgentInvocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_invocations_total",
				Help: "Agent invocations by agent name and outcome",
			},
			[]string{"agent", "result"},
		),
		AgentDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_duration_seconds",
				Help:    "Agent handler duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		ConsumerRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "consumer_retries_total",
				Help: "Total number of consumer-side message redeliveries",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric
func (m *HTTPMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGRPCRequest records a gRPC request metric
func (m *GRPCMetrics) RecordGRPCRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
