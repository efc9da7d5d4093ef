package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-etl/internal/observability"
)

// RouterConfig holds per-route protections for /run.
type RouterConfig struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter // nil disables rate limiting
	InFlight       *InFlightTracker
}

// NewRouter wires /run, /health and /metrics with the standard middleware chain.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	if cfg.InFlight != nil {
		router.Use(cfg.InFlight.Middleware)
	}
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	run := RateLimitMiddleware(cfg.Limiter)(TimeoutMiddleware(cfg.RequestTimeout)(http.HandlerFunc(h.PostRun)))
	router.Handle("/run", run).Methods(http.MethodPost)

	return router
}
