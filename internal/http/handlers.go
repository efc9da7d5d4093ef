package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-etl/internal/client"
	"github.com/kjstillabower/weather-etl/internal/lifecycle"
	"github.com/kjstillabower/weather-etl/internal/models"
	"github.com/kjstillabower/weather-etl/internal/observability"
	"github.com/kjstillabower/weather-etl/internal/pipeline"
)

const serviceName = "weather-etl"

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	guard            *lifecycle.RunGuard
	logger           *zap.Logger
	version          string
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. Runs go through guard so HTTP and scheduled triggers never overlap.
func NewHandler(guard *lifecycle.RunGuard, logger *zap.Logger, version string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if version == "" {
		version = "dev"
	}
	return &Handler{guard: guard, logger: logger, version: version}
}

type runResponse struct {
	Status   string               `json:"status"`
	RunID    string               `json:"runId"`
	Record   models.WeatherRecord `json:"record"`
	Duration string               `json:"duration"`
}

// PostRun handles POST /run: one synchronous pipeline run.
func (h *Handler) PostRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.guard.TryRun(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, runResponse{
			Status:   "success",
			RunID:    res.RunID,
			Record:   res.Record,
			Duration: res.Duration.String(),
		})
	case errors.Is(err, lifecycle.ErrRunInProgress):
		observability.RunConflictsTotal.Inc()
		writeError(w, r, http.StatusConflict, "RUN_IN_PROGRESS", "A pipeline run is already in progress")
	case errors.Is(err, lifecycle.ErrShuttingDown):
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down")
	default:
		h.writeRunError(w, r, err)
	}
}

// writeRunError maps a failed run to 502 (504 when the run hit its deadline) with the
// failing stage and a code derived from the error category.
func (h *Handler) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	category := pipeline.CategorizeError(err)
	status := http.StatusBadGateway
	if category == client.ErrorCategoryTimeout {
		status = http.StatusGatewayTimeout
	}

	stage := ""
	var se *pipeline.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}

	if logger := loggerFromContext(r.Context()); logger != nil {
		logger.Debug("run failed", zap.String("stage", stage), zap.Error(err))
	}

	writeJSON(w, status, map[string]interface{}{
		"status": "failure",
		"error": map[string]string{
			"code":      strings.ToUpper(string(category)),
			"message":   "Pipeline failed at " + stage + " stage",
			"stage":     stage,
			"requestId": observability.RunIDFrom(r.Context()),
		},
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode := "healthy", http.StatusOK
	if lifecycle.IsShuttingDown() {
		status, statusCode = "shutting-down", http.StatusServiceUnavailable
	}

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    status,
		"service":   serviceName,
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if last, ok := h.guard.LastRun(); ok {
		resp["lastRun"] = last
	}
	writeJSON(w, statusCode, resp)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.RunIDFrom(r.Context()),
		},
	})
}
