package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Completed pipeline runs by outcome. Watch for: any failure; a scheduled job should be all success.
	PipelineRunsTotal *prometheus.CounterVec

	// End-to-end run latency. Watch for: runs creeping toward run.timeout.
	PipelineRunDuration prometheus.Histogram

	// Per-stage latency (fetch, transform, write_local, upload, load). Watch for: which stage dominates.
	PipelineStageDuration *prometheus.HistogramVec

	// Stage failures by error category. Watch for: schema errors (provider changed shape), auth errors.
	PipelineStageErrorsTotal *prometheus.CounterVec

	// Unix time of the last successful run. Alert when now - value exceeds the schedule interval.
	PipelineLastSuccessTimestamp prometheus.Gauge

	// OpenWeatherMap API call rate. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 approaching weather_api.timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API. Only non-zero when fetch.retry_max_attempts > 1.
	WeatherAPIRetriesTotal prometheus.Counter

	// Rows appended to the local CSV file.
	LocalRowsWrittenTotal prometheus.Counter

	// Bytes written to the object store by backend (gcs, s3).
	SinkBytesUploadedTotal *prometheus.CounterVec

	// Rows appended to the warehouse table. Duplicates on re-run are expected.
	WarehouseRowsAppendedTotal prometheus.Counter

	// HTTP request rate on the trigger service.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. /run latency is the run latency plus overhead.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Rate limit denials on /run.
	RateLimitDeniedTotal prometheus.Counter

	// /run requests rejected because a run was already in progress.
	RunConflictsTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipelineRunsTotal",
			Help: "Total number of pipeline runs by status",
		},
		[]string{"status"},
	)
	PipelineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipelineRunDurationSeconds",
			Help:    "End-to-end pipeline run latency in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipelineStageDurationSeconds",
			Help:    "Pipeline stage latency in seconds",
			Buckets: []float64{.001, .01, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)
	PipelineStageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipelineStageErrorsTotal",
			Help: "Total number of pipeline stage failures by stage and error category",
		},
		[]string{"stage", "category"},
	)
	PipelineLastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipelineLastSuccessTimestampSeconds",
			Help: "Unix timestamp of the last successful pipeline run",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	LocalRowsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localRowsWrittenTotal",
			Help: "Total number of rows appended to the local CSV file",
		},
	)
	SinkBytesUploadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sinkBytesUploadedTotal",
			Help: "Total bytes uploaded to the object store by backend",
		},
		[]string{"backend"},
	)
	WarehouseRowsAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warehouseRowsAppendedTotal",
			Help: "Total number of rows appended to the warehouse table",
		},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	RunConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runConflictsTotal",
			Help: "Total number of run requests rejected because a run was in progress (409)",
		},
	)

	registry.MustRegister(
		PipelineRunsTotal, PipelineRunDuration, PipelineStageDuration, PipelineStageErrorsTotal,
		PipelineLastSuccessTimestamp,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		LocalRowsWrittenTotal, SinkBytesUploadedTotal, WarehouseRowsAppendedTotal,
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		RateLimitDeniedTotal, RunConflictsTotal,
	)
}

// RecordStage observes a stage's latency and, when category is non-empty, counts a failure.
func RecordStage(stage string, d time.Duration, category string) {
	PipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if category != "" {
		PipelineStageErrorsTotal.WithLabelValues(stage, category).Inc()
	}
}

// RecordRun records a finished run. finishedAt is only used on success.
func RecordRun(success bool, d time.Duration, finishedAt time.Time) {
	PipelineRunDuration.Observe(d.Seconds())
	if success {
		PipelineRunsTotal.WithLabelValues("success").Inc()
		PipelineLastSuccessTimestamp.Set(float64(finishedAt.Unix()))
		return
	}
	PipelineRunsTotal.WithLabelValues("failure").Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
