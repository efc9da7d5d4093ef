package observability

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	sentryFlushTimeout   = 5 * time.Second
	sentryRequestTimeout = 5 * time.Second
)

var sentryOn atomic.Bool

// InitErrorReporting enables Sentry when dsn is non-empty. Without a DSN, ReportRunFailure is a no-op.
func InitErrorReporting(dsn, env, release string) error {
	if dsn == "" {
		return nil
	}
	transport := sentry.NewHTTPTransport()
	transport.Timeout = sentryRequestTimeout
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		ServerName:       "weather-etl",
		AttachStacktrace: true,
		Transport:        transport,
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	sentryOn.Store(true)
	return nil
}

func sentryEnabled() bool {
	return sentryOn.Load()
}

// ReportRunFailure sends a failed pipeline run to Sentry, tagged with the run id and failing stage.
func ReportRunFailure(runID, stage string, err error) {
	if !sentryEnabled() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", runID)
		scope.SetTag("stage", stage)
		scope.SetLevel(sentry.LevelError)
		sentry.CaptureException(err)
	})
}
