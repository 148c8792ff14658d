// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the weft web surface.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestBuckets defines histogram buckets for request handling latencies,
// ranging from 1ms to 10s.
var RequestBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10}

// PhaseBuckets defines histogram buckets for initialization phases.
var PhaseBuckets = []float64{0.0001, 0.001, 0.01, 0.1, 1, 5, 30}

var (
	// RequestsTotal counts pipeline handlings by transport, method, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_requests_total",
			Help: "Requests handled by the pipeline",
		},
		[]string{"transport", "method", "status"},
	)

	// RequestDuration records pipeline handling duration in seconds by transport.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weft_request_duration_seconds",
			Help:    "Request duration",
			Buckets: RequestBuckets,
		},
		[]string{"transport"},
	)

	// HTTPRequestsTotal counts requests seen by an HTTP(S) listener, including
	// those answered before reaching the pipeline.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_http_requests_total",
			Help: "Requests received by HTTP(S) listeners",
		},
		[]string{"transport", "method", "status"},
	)

	// ChannelConnections tracks the number of open channel connections.
	ChannelConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weft_channel_connections_active",
			Help: "Active channel connections",
		},
	)

	// ChannelFramesTotal counts channel frames by direction (in/out/rejected).
	ChannelFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_channel_frames_total",
			Help: "Channel frames",
		},
		[]string{"direction"},
	)

	// HookFiresTotal counts hook firings by hook name and outcome (ok/error).
	HookFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_hook_fires_total",
			Help: "Hook firings",
		},
		[]string{"hook", "outcome"},
	)

	// InitPhaseDuration records how long each initialization phase took.
	InitPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weft_init_phase_duration_seconds",
			Help:    "Initialization phase duration",
			Buckets: PhaseBuckets,
		},
		[]string{"phase"},
	)

	// PipelineFailuresTotal counts requests answered by the terminal fallback.
	PipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_pipeline_failures_total",
			Help: "Requests converted to the fallback failure response",
		},
		[]string{"transport"},
	)

	// RateLimitRejectedTotal counts requests and channel frames rejected by
	// the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weft_ratelimit_rejected_total",
			Help: "Rate limit rejections by tier and budget scope",
		},
		[]string{"tier", "scope"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		HTTPRequestsTotal,
		ChannelConnections,
		ChannelFramesTotal,
		HookFiresTotal,
		InitPhaseDuration,
		PipelineFailuresTotal,
		RateLimitRejectedTotal,
	)
}

// ObserveRequest records one pipeline handling.
func ObserveRequest(transport, method string, status int, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(transport, method, StatusClass(status)).Inc()
	RequestDuration.WithLabelValues(transport).Observe(elapsed.Seconds())
}

// StatusClass builds a status class label like "2xx", "4xx", "5xx".
// A zero status counts as 200, which is what an unwritten response becomes.
func StatusClass(status int) string {
	if status == 0 {
		status = http.StatusOK
	}
	return strconv.Itoa(status/100) + "xx"
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
