// Package metrics exposes the worker's Prometheus collectors and the
// /metrics HTTP handler, grounded on the promhttp.HandlerFor(registry, ...)
// pattern the reference corpus's telemetry setup uses. Metrics are additive
// telemetry, not part of any invariant the worker's correctness depends on.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds every metric the worker updates. A single instance is
// created at startup and threaded into the worker, document, and pump code
// that observes renders and session counts.
type Collectors struct {
	registry *prometheus.Registry

	RendersTotal    *prometheus.CounterVec
	RenderDuration  *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
	ActiveViews     prometheus.Gauge
	TileQueueDepth  prometheus.Gauge
}

// New builds a Collectors with every metric registered against a private
// registry, so multiple workers in the same test binary never collide on
// prometheus's default global registry.
func New() *Collectors {
	registry := prometheus.NewRegistry()

	c := &Collectors{
		registry: registry,
		RendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kitworker",
			Name:      "renders_total",
			Help:      "Number of tile renders completed, labeled by kind (tile|tilecombine) and outcome (ok|error).",
		}, []string{"kind", "outcome"}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kitworker",
			Name:      "render_duration_seconds",
			Help:      "Latency of successful renders, from paint start (including the wait for the engine lock) to PNG encode completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kitworker",
			Name:      "active_sessions",
			Help:      "Number of registered sessions, updated when a session opens; removals are not reflected until the next session opens.",
		}),
		ActiveViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kitworker",
			Name:      "active_views",
			Help:      "Document.ClientViews() as last observed.",
		}),
		TileQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kitworker",
			Name:      "tile_queue_depth",
			Help:      "Number of messages waiting in the tile queue.",
		}),
	}

	registry.MustRegister(c.RendersTotal, c.RenderDuration, c.ActiveSessions, c.ActiveViews, c.TileQueueDepth)
	return c
}

// ObserveRender records a completed render of kind ("tile" or
// "tilecombine") that took d to complete, with outcome "ok" or "error".
func (c *Collectors) ObserveRender(kind, outcome string, d time.Duration) {
	c.RendersTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == "ok" {
		c.RenderDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// Handler returns the http.Handler serving this Collectors' registry.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Server wraps an *http.Server bound to addr serving Handler(), started in
// its own goroutine. An empty addr disables metrics entirely; Serve then
// returns a nil Server and no listener is opened.
func Serve(addr string, c *Collectors) (*http.Server, error) {
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = err
		}
	}()
	return srv, nil
}

// Shutdown stops srv if non-nil, tolerating a nil receiver so callers can
// always defer-call it even when metrics were disabled.
func Shutdown(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
