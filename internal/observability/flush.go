package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// FlushTelemetry flushes buffered error reports and logs before process exit.
// Prometheus is pull-based, so there is nothing to push for metrics.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	timeout := sentryFlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if sentryEnabled() && !sentry.Flush(timeout) {
		if logger != nil {
			logger.Warn("error reports not fully flushed", zap.Duration("timeout", timeout))
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("flush logs: %w", err)
		}
	}
	return nil
}
