// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

var (
	metricQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rrdnstun_queries_total",
			Help: "DNS queries answered, by outcome.",
		},
		[]string{
			"outcome", // passthrough, undecodable, malformed_request, blocked, tunnel, upstream_error, replayed
		},
	)
	metricDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rrdnstun_dropped_total",
			Help: "Datagrams dropped without a reply.",
		},
	)
	metricPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rrdnstun_handler_panics_total",
			Help: "Query handlers that panicked and were recovered.",
		},
	)
	metricTruncated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rrdnstun_truncated_total",
			Help: "Packed HTTP responses cut to the answer payload limit.",
		},
	)
	metricUpstream = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rrdnstun_upstream_requests_total",
			Help: "Outbound HTTP requests, by status code. Failed requests count as 500.",
		},
		[]string{
			"code",
		},
	)
	metricUpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rrdnstun_upstream_duration_seconds",
			Help:    "Latency of outbound HTTP requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	metricInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rrdnstun_inflight",
			Help: "Queries currently being handled.",
		},
	)
)

func ObserveOutcome(o domain.Outcome) {
	metricQueries.WithLabelValues(string(o)).Inc()
}

func ObserveDropped() {
	metricDropped.Inc()
}

func ObservePanic() {
	metricPanics.Inc()
}

func ObserveTruncated() {
	metricTruncated.Inc()
}

func ObserveUpstream(status int, took time.Duration) {
	metricUpstream.WithLabelValues(strconv.Itoa(status)).Inc()
	metricUpstreamDuration.Observe(took.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func TrackInFlight() func() {
	metricInFlight.Inc()
	return metricInFlight.Dec
}

// NewServer returns an HTTP server exposing /metrics on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
