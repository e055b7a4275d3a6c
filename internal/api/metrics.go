package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected prometheus.Counter
	stageDuration     *prometheus.HistogramVec
	transcodesTotal   *prometheus.CounterVec
	sourceBytesTotal  prometheus.Counter
	outputBytesTotal  prometheus.Counter
	recordFailures    prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_http_requests_total",
			Help: "Total HTTP requests handled by the proxy.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelproxy_http_request_duration_seconds",
			Help:    "Proxy request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelproxy_stage_duration_seconds",
			Help:    "Duration of each transcode stage.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"stage", "result"}),
		transcodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_transcodes_total",
			Help: "Total pipeline runs by output format and final state.",
		}, []string{"format", "state", "kind"}),
		sourceBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_source_bytes_total",
			Help: "Total bytes read from image sources.",
		}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_output_bytes_total",
			Help: "Total encoded bytes written to clients.",
		}),
		recordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_record_failures_total",
			Help: "Transcode records that could not be handed to the record sink.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.stageDuration,
		m.transcodesTotal,
		m.sourceBytesTotal,
		m.outputBytesTotal,
		m.recordFailures,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage implements pipeline.StageObserver.
func (m *metrics) ObserveStage(stage pipeline.State, kind pipeline.Kind, elapsed time.Duration) {
	result := "ok"
	if kind != 0 {
		result = kind.String()
	}
	m.stageDuration.WithLabelValues(stage.String(), result).Observe(elapsed.Seconds())
}

func (m *metrics) observeOutcome(out pipeline.Outcome) {
	format := string(out.Request.OutputFormat)
	if format == "" {
		format = "none"
	}
	kind := "none"
	if out.State == pipeline.StateFailed {
		kind = out.Kind.String()
	}

	m.transcodesTotal.WithLabelValues(format, out.State.String(), kind).Inc()
	m.sourceBytesTotal.Add(float64(out.SourceBytes))
	if out.State == pipeline.StateResponded {
		m.outputBytesTotal.Add(float64(out.OutputBytes))
	}
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel keeps label cardinality bounded; every transcode shares one route.
func routeLabel(path string) string {
	switch {
	case path == pipeline.HealthCheckPath:
		return pipeline.HealthCheckPath
	case strings.HasPrefix(path, "/png/"), strings.HasPrefix(path, "/jpg/"):
		return "/{format}/{width}/{height}/"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
