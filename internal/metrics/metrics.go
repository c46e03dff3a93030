package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeBufferLimit = "buffer_limit"
	OutcomeError       = "error"
)

// Metrics holds the collectors for article fetches and streams. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchedBytes  prometheus.Counter
	streamedBytes prometheus.Counter
	activeStreams prometheus.Gauge
}

// New creates the collectors on a private registry, together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nzbstream_article_fetches_total",
			Help: "Article fetches by provider and outcome",
		}, []string{"provider", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nzbstream_article_fetch_duration_seconds",
			Help:    "Time to download and decode one article",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		fetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nzbstream_article_bytes_total",
			Help: "Decoded article bytes handed to segments",
		}),
		streamedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nzbstream_streamed_bytes_total",
			Help: "Bytes delivered to stream consumers",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nzbstream_active_streams",
			Help: "Streams currently open",
		}),
	}

	m.registry.MustRegister(
		m.fetches,
		m.fetchDuration,
		m.fetchedBytes,
		m.streamedBytes,
		m.activeStreams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFetch records one provider attempt.
func (m *Metrics) RecordFetch(provider, outcome string, d time.Duration, n int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(provider, outcome).Inc()
	m.fetchDuration.WithLabelValues(provider).Observe(d.Seconds())
	if n > 0 {
		m.fetchedBytes.Add(float64(n))
	}
}

func (m *Metrics) AddStreamed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.streamedBytes.Add(float64(n))
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamFinished() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}
