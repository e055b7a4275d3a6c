package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry         *prometheus.Registry
	recordsTotal     *prometheus.CounterVec
	writeDuration    prometheus.Histogram
	outcomesTotal    *prometheus.CounterVec
	outputBytesTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_recorder_tasks_total",
			Help: "Record tasks handled by the recorder by result.",
		}, []string{"result"}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelproxy_recorder_task_duration_seconds",
			Help:    "Time spent handling one record task.",
			Buckets: prometheus.DefBuckets,
		}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_recorder_outcomes_total",
			Help: "Stored transcode records by outcome and failure kind.",
		}, []string{"outcome", "kind"}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_recorder_output_bytes_total",
			Help: "Encoded bytes reported by stored transcode records.",
		}),
	}

	registry.MustRegister(
		m.recordsTotal,
		m.writeDuration,
		m.outcomesTotal,
		m.outputBytesTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
