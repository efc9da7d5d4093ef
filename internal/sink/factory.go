package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-etl/internal/config"
)

// NewFromConfig builds the object store selected by cfg.SinkBackend and the BigQuery warehouse.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Sink, error) {
	var store ObjectStore
	switch cfg.SinkBackend {
	case config.BackendGCS:
		gcs, err := NewGCSStore(ctx, cfg.BucketName, cfg.CredentialsPath)
		if err != nil {
			return nil, err
		}
		store = gcs
	case config.BackendS3:
		s3, err := NewS3Store(cfg.BucketName, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		store = s3
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.SinkBackend)
	}

	warehouse, err := NewBigQueryWarehouse(ctx, cfg.ProjectID, cfg.DatasetID, cfg.TableID, cfg.DatasetLocation, cfg.CredentialsPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return New(store, warehouse, Options{
		ObjectKey:  cfg.ObjectKey,
		ArchiveRaw: cfg.ArchiveRaw,
		RawPrefix:  cfg.RawPrefix,
	}, logger), nil
}
