// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listener

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/streamrelay/internal/health"
	rlog "github.com/ManuGH/streamrelay/internal/log"
)

// RouterConfig selects the optional parts of the HTTP surface.
type RouterConfig struct {
	StaticDir      string
	ConnRateLimit  int
	ConnRateWindow time.Duration
	// MountMetrics serves /metrics on this router instead of a separate listener.
	MountMetrics bool
	Tracing      bool
}

// NewRouter mounts the websocket endpoint, health probes and static files.
func NewRouter(cfg RouterConfig, l *Listener, hm *health.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rlog.Middleware())

	r.Get("/healthz", hm.ServeHealth)
	r.Get("/readyz", hm.ServeReady)
	if cfg.MountMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.With(RateLimit(RateLimitConfig{
		RequestLimit: cfg.ConnRateLimit,
		WindowSize:   cfg.ConnRateWindow,
	})).Handle("/ws", l)

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	if !cfg.Tracing {
		return r
	}
	// Sessions get their own span; the upgrade request would stay open for the whole stream.
	return otelhttp.NewHandler(r, "streamrelay.http",
		otelhttp.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/ws" }),
	)
}

// NewMetricsHandler serves /metrics for a dedicated metrics listener.
func NewMetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
