package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-etl/internal/client"
	"github.com/kjstillabower/weather-etl/internal/config"
	"github.com/kjstillabower/weather-etl/internal/localstore"
	"github.com/kjstillabower/weather-etl/internal/sink"
)

// NewFromConfig wires the OpenWeather client, CSV writer and cloud sink described by cfg.
// The returned close function releases the cloud clients.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, func() error, error) {
	fetcher, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.Location,
		cfg.Units,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("weather client: %w", err)
	}

	snk, err := sink.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("sink: %w", err)
	}

	writer := localstore.NewCSVWriter(cfg.LocalPath)
	p := New(fetcher, writer, snk, logger, cfg.RunTimeout)
	p.transform.AllowEmptyCity = cfg.Location.HasCoordinates()
	return p, snk.Close, nil
}
