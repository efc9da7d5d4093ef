package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that all metrics can be used without panic, ensuring
// label dimensions match usage across client, pipeline, sink and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/run", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/run").Observe(0.5)
	WeatherAPICallsTotal.WithLabelValues("success").Inc()
	WeatherAPIDuration.WithLabelValues("success").Observe(0.1)
	SinkBytesUploadedTotal.WithLabelValues("gcs").Add(128)
	PipelineStageErrorsTotal.WithLabelValues("transform", "schema").Inc()
	LocalRowsWrittenTotal.Inc()
	WarehouseRowsAppendedTotal.Inc()
	RunConflictsTotal.Inc()
}

func TestRecordStage(t *testing.T) {
	before := testutil.ToFloat64(PipelineStageErrorsTotal.WithLabelValues("upload", "upload"))
	RecordStage("upload", 20*time.Millisecond, "")
	if got := testutil.ToFloat64(PipelineStageErrorsTotal.WithLabelValues("upload", "upload")); got != before {
		t.Errorf("errors after success = %v, want %v", got, before)
	}
	RecordStage("upload", 20*time.Millisecond, "upload")
	if got := testutil.ToFloat64(PipelineStageErrorsTotal.WithLabelValues("upload", "upload")); got != before+1 {
		t.Errorf("errors after failure = %v, want %v", got, before+1)
	}
}

func TestRecordRun(t *testing.T) {
	successBefore := testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("success"))
	failureBefore := testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("failure"))
	finished := time.Unix(1700000000, 0)

	RecordRun(true, time.Second, finished)
	RecordRun(false, time.Second, time.Time{})

	if got := testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("success")); got != successBefore+1 {
		t.Errorf("success runs = %v, want %v", got, successBefore+1)
	}
	if got := testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("failure")); got != failureBefore+1 {
		t.Errorf("failure runs = %v, want %v", got, failureBefore+1)
	}
	if got := testutil.ToFloat64(PipelineLastSuccessTimestamp); got != 1700000000 {
		t.Errorf("last success = %v, want 1700000000", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	PipelineRunsTotal.WithLabelValues("success").Add(0)
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pipelineRunsTotal") {
		t.Error("MetricsHandler response should contain pipelineRunsTotal")
	}
}
