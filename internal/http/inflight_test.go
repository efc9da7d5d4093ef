package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInFlightTracker_Middleware(t *testing.T) {
	tracker := &InFlightTracker{}
	release := make(chan struct{})
	entered := make(chan struct{})

	h := tracker.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}))

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/run", nil))
		close(done)
	}()
	<-entered

	if got := tracker.Count(); got != 1 {
		t.Errorf("Count() during request = %d, want 1", got)
	}

	close(release)
	<-done
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() after request = %d, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.count.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- tracker.WaitForZero(ctx, 5*time.Millisecond)
	}()

	time.Sleep(10 * time.Millisecond)
	tracker.count.Add(-1)

	if err := <-done; err != nil {
		t.Errorf("WaitForZero() error = %v, want nil", err)
	}
}

func TestInFlightTracker_WaitForZero_Timeout(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.count.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); err != context.DeadlineExceeded {
		t.Errorf("WaitForZero() error = %v, want %v", err, context.DeadlineExceeded)
	}
}
