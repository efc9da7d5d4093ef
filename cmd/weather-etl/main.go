// Command weather-etl runs the pipeline once and exits 0 on success, 1 on any failure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-etl/internal/config"
	"github.com/kjstillabower/weather-etl/internal/observability"
	"github.com/kjstillabower/weather-etl/internal/pipeline"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = observability.FlushTelemetry(flushCtx, logger)
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return 1
	}

	if err := observability.InitErrorReporting(cfg.SentryDSN, cfg.EnvName, version); err != nil {
		logger.Warn("error reporting disabled", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, closeSinks, err := pipeline.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Error("pipeline setup", zap.Error(err))
		return 1
	}
	defer func() {
		if err := closeSinks(); err != nil {
			logger.Warn("close sinks", zap.Error(err))
		}
	}()

	// Run logs the outcome with the run id and failing stage.
	if _, err := p.Run(ctx); err != nil {
		return 1
	}
	return 0
}
