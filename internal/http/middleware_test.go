package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-etl/internal/lifecycle"
	"github.com/kjstillabower/weather-etl/internal/observability"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	lifecycle.SetShuttingDown(false)
	router, _ := newTestRouter(&mockRunner{}, RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run", nil))

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	var gotRunID string
	var gotLogger *zap.Logger

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		gotRunID = observability.RunIDFrom(r.Context())
		gotLogger = loggerFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	if gotRunID != "client-provided-id" {
		t.Errorf("run id in context = %q, want client-provided-id", gotRunID)
	}
	if gotLogger == nil {
		t.Error("request logger missing from context")
	}
}

func TestMiddleware_MetricsUsesRouteTemplate(t *testing.T) {
	lifecycle.SetShuttingDown(false)
	router, _ := newTestRouter(&mockRunner{}, RouterConfig{})

	before := testutil.ToFloat64(observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "2xx"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	after := testutil.ToFloat64(observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "2xx"))
	if after != before+1 {
		t.Errorf("httpRequestsTotal{/health,2xx} = %v, want %v", after, before+1)
	}
}

func TestMiddleware_RateLimit(t *testing.T) {
	lifecycle.SetShuttingDown(false)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	router, _ := newTestRouter(&mockRunner{}, RouterConfig{Limiter: limiter})

	before := testutil.ToFloat64(observability.RateLimitDeniedTotal)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	errObj, _ := decodeBody(t, w)["error"].(map[string]interface{})
	if errObj["code"] != "RATE_LIMITED" {
		t.Errorf("code = %v, want RATE_LIMITED", errObj["code"])
	}
	if got := testutil.ToFloat64(observability.RateLimitDeniedTotal); got != before+1 {
		t.Errorf("rateLimitDeniedTotal = %v, want %v", got, before+1)
	}

	// /health is not rate limited.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMiddleware_Timeout(t *testing.T) {
	lifecycle.SetShuttingDown(false)
	runner := &mockRunner{block: make(chan struct{})}
	router, _ := newTestRouter(runner, RouterConfig{RequestTimeout: 20 * time.Millisecond})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run", nil))

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", w.Code, http.StatusGatewayTimeout)
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	h := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/run", nil))
	if !hasDeadline {
		t.Error("request context has no deadline")
	}

	hasDeadline = true
	h = TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/run", nil).WithContext(context.Background()))
	if hasDeadline {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{409, "4xx"},
		{502, "5xx"},
	}
	for _, tt := range tests {
		if got := statusCodeString(tt.code); got != tt.want {
			t.Errorf("statusCodeString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
