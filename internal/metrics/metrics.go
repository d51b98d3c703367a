package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GRPCServerHandlingSeconds is a histogram for gRPC server request latencies
	GRPCServerHandlingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_server_handling_seconds",
			Help:    "Histogram of response latency (seconds) of gRPC that had been application-level handled by the server.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "code"},
	)

	// HTTPRequestSeconds is a histogram for HTTP request latencies
	HTTPRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latency (seconds) by route and status.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route", "status"},
	)

	// InferenceLatencySeconds is a histogram for model evaluation latency only
	InferenceLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Histogram of model evaluation latency (seconds) excluding image decode and tensor conversion.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// ModelLoadsTotal counts model load attempts by result
	ModelLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_loads_total",
			Help: "Number of model load attempts by result (success, error).",
		},
		[]string{"result"},
	)

	// PipelineErrorsTotal counts failed pipeline runs by stage and error kind
	PipelineErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_errors_total",
			Help: "Number of failed style-transfer runs by stage and error kind.",
		},
		[]string{"stage", "kind"},
	)

	// CacheRequestsTotal counts result cache lookups by outcome
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_requests_total",
			Help: "Number of result cache lookups by outcome (hit, miss, error).",
		},
		[]string{"outcome"},
	)

	// HealthStatus is a gauge indicating the health status of the service
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordGRPCLatency records the latency of a gRPC method call
func RecordGRPCLatency(method, code string, seconds float64) {
	GRPCServerHandlingSeconds.WithLabelValues(method, code).Observe(seconds)
}

// RecordHTTPLatency records the latency of an HTTP request
func RecordHTTPLatency(route, status string, seconds float64) {
	HTTPRequestSeconds.WithLabelValues(route, status).Observe(seconds)
}

// RecordInferenceLatency records the latency of a model evaluation call
func RecordInferenceLatency(seconds float64) {
	InferenceLatencySeconds.Observe(seconds)
}

// RecordModelLoad records a model load attempt
func RecordModelLoad(ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	ModelLoadsTotal.WithLabelValues(result).Inc()
}

// RecordPipelineError records a failed pipeline stage
func RecordPipelineError(stage, kind string) {
	PipelineErrorsTotal.WithLabelValues(stage, kind).Inc()
}

// RecordCacheLookup records a result cache lookup outcome
func RecordCacheLookup(outcome string) {
	CacheRequestsTotal.WithLabelValues(outcome).Inc()
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
