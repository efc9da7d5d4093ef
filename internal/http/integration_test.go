//go:build integration
// +build integration

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/weather-etl/internal/client"
	"github.com/kjstillabower/weather-etl/internal/lifecycle"
	"github.com/kjstillabower/weather-etl/internal/localstore"
	"github.com/kjstillabower/weather-etl/internal/models"
	"github.com/kjstillabower/weather-etl/internal/observability"
	"github.com/kjstillabower/weather-etl/internal/pipeline"
	testhelpers "github.com/kjstillabower/weather-etl/internal/testhelpers"
)

// discardSink accepts uploads and loads without touching cloud services.
type discardSink struct {
	uploads int
	loads   int
}

func (d *discardSink) Upload(ctx context.Context, localPath string, rec models.WeatherRecord, raw map[string]any) error {
	d.uploads++
	return nil
}

func (d *discardSink) Load(ctx context.Context, rec models.WeatherRecord) error {
	d.loads++
	return nil
}

// TestRun_Integration triggers a real fetch through POST /run with local-only sinks.
func TestRun_Integration(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	lifecycle.SetShuttingDown(false)

	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	fetcher, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, models.Location{City: "Thessaloniki", Country: "GR"}, "metric", 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	snk := &discardSink{}
	writer := localstore.NewCSVWriter(filepath.Join(t.TempDir(), "current_weather.csv"))
	p := pipeline.New(fetcher, writer, snk, logger, 30*time.Second)

	router := NewRouter(NewHandler(lifecycle.NewRunGuard(p), logger, "integration"), logger, RouterConfig{RequestTimeout: 35 * time.Second})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp runResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Record.City == "" {
		t.Error("record city is empty")
	}
	if snk.uploads != 1 || snk.loads != 1 {
		t.Errorf("uploads/loads = %d/%d, want 1/1", snk.uploads, snk.loads)
	}
}
