//go:build integration
// +build integration

package client

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-etl/internal/models"
	"github.com/kjstillabower/weather-etl/internal/testhelpers"
)

func TestOpenWeatherClient_Fetch_Integration(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)

	client, err := NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, models.Location{City: "London", Country: "GB"}, "metric", 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	payload, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v (API key may not be activated yet)", err)
	}

	for _, key := range []string{"name", "dt", "main", "weather"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("Fetch() payload missing %q", key)
		}
	}
}
