package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestInitErrorReporting_EmptyDSNIsNoop(t *testing.T) {
	if err := InitErrorReporting("", "dev", "test"); err != nil {
		t.Fatalf("InitErrorReporting() error = %v", err)
	}
	if sentryEnabled() {
		t.Fatal("sentryEnabled() = true, want false without DSN")
	}
	// Must not panic or block when disabled.
	ReportRunFailure("run-1", "fetch", errors.New("boom"))
	if err := FlushTelemetry(context.Background(), zap.NewNop()); err != nil {
		t.Errorf("FlushTelemetry() error = %v", err)
	}
}

func TestInitErrorReporting_InvalidDSN(t *testing.T) {
	if err := InitErrorReporting("not a dsn", "dev", "test"); err == nil {
		t.Error("InitErrorReporting() error = nil, want error for malformed DSN")
	}
	if sentryEnabled() {
		t.Error("sentryEnabled() = true after failed init")
	}
}
