// Package weatheretl exposes the pipeline as an HTTP-triggered Cloud Function.
package weatheretl

import (
	"context"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-etl/internal/config"
	httphandler "github.com/kjstillabower/weather-etl/internal/http"
	"github.com/kjstillabower/weather-etl/internal/lifecycle"
	"github.com/kjstillabower/weather-etl/internal/observability"
	"github.com/kjstillabower/weather-etl/internal/pipeline"
)

func init() {
	functions.HTTP("RunWeatherETL", RunWeatherETL)
}

var (
	setupMu   sync.Mutex
	runHandle http.Handler
	logger    *zap.Logger

	buildHandler = setup
)

// handler returns the cached run handler. Only a successful build is cached, so an
// instance that failed setup tries again on its next invocation.
func handler() (http.Handler, error) {
	setupMu.Lock()
	defer setupMu.Unlock()
	if runHandle != nil {
		return runHandle, nil
	}
	h, err := buildHandler()
	if err != nil {
		return nil, err
	}
	runHandle = h
	return h, nil
}

// setup builds the pipeline; clients are reused across invocations.
func setup() (http.Handler, error) {
	if logger == nil {
		l, err := observability.NewLogger()
		if err != nil {
			return nil, err
		}
		logger = l
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return nil, err
	}
	if err := observability.InitErrorReporting(cfg.SentryDSN, cfg.EnvName, "function"); err != nil {
		logger.Warn("error reporting disabled", zap.Error(err))
	}

	p, _, err := pipeline.NewFromConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("pipeline setup", zap.Error(err))
		return nil, err
	}

	h := httphandler.NewHandler(lifecycle.NewRunGuard(p), logger, "function")
	return httphandler.CorrelationIDMiddleware(logger)(http.HandlerFunc(h.PostRun)), nil
}

// RunWeatherETL runs the pipeline once per invocation and answers like POST /run.
func RunWeatherETL(w http.ResponseWriter, r *http.Request) {
	h, err := handler()
	if err != nil {
		http.Error(w, "weather-etl is misconfigured", http.StatusInternalServerError)
		return
	}
	h.ServeHTTP(w, r)
	_ = observability.FlushTelemetry(r.Context(), logger)
}
