package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-etl/internal/config"
	httphandler "github.com/kjstillabower/weather-etl/internal/http"
	"github.com/kjstillabower/weather-etl/internal/lifecycle"
	"github.com/kjstillabower/weather-etl/internal/observability"
	"github.com/kjstillabower/weather-etl/internal/pipeline"
	"github.com/kjstillabower/weather-etl/internal/scheduler"
)

var version = "dev"

const drainCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	if err := observability.InitErrorReporting(cfg.SentryDSN, cfg.EnvName, version); err != nil {
		logger.Warn("error reporting disabled", zap.Error(err))
	}

	p, closeSinks, err := pipeline.NewFromConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("pipeline setup", zap.Error(err))
	}
	guard := lifecycle.NewRunGuard(p)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	handler := httphandler.NewHandler(guard, logger, version)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		InFlight:       inFlight,
	})

	var sched *scheduler.Scheduler
	if cfg.ScheduleInterval > 0 {
		sched = scheduler.New(guard, cfg.ScheduleInterval, cfg.RunTimeout, logger)
		if err := sched.Start(); err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight work", zap.Int64("requests", inFlight.Count()))
	if err := inFlight.WaitForZero(shutdownCtx, drainCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}
	if err := guard.Wait(shutdownCtx, drainCheckInterval); err != nil {
		logger.Warn("pipeline run still in progress at shutdown", zap.Error(err))
	}

	if err := closeSinks(); err != nil {
		logger.Error("close sinks", zap.Error(err))
	}
	if err := observability.FlushTelemetry(shutdownCtx, logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
