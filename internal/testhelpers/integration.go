//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey          string
	APIURL          string
	CredentialsPath string
	ProjectID       string
	DatasetID       string
	BucketName      string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5/weather"
	}

	cfg := cloudConfig()
	cfg.APIKey = apiKey
	cfg.APIURL = apiURL
	return cfg
}

// GetCloudConfig returns the GCP identifiers used by sink integration tests.
// Skips test unless GCP_PROJECT_ID and BUCKET_NAME are set.
func GetCloudConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	cfg := cloudConfig()
	if cfg.ProjectID == "" || cfg.BucketName == "" {
		t.Skip("GCP_PROJECT_ID or BUCKET_NAME not set, skipping cloud integration test")
	}
	return cfg
}

func cloudConfig() IntegrationTestConfig {
	datasetID := os.Getenv("BQ_DATASET_ID")
	if datasetID == "" {
		datasetID = "weather_etl_integration"
	}
	return IntegrationTestConfig{
		CredentialsPath: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		ProjectID:       os.Getenv("GCP_PROJECT_ID"),
		DatasetID:       datasetID,
		BucketName:      os.Getenv("BUCKET_NAME"),
	}
}
