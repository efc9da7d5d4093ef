// Package sink delivers pipeline output to an object store and a data warehouse.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-etl/internal/models"
)

var (
	// ErrUpload means the object store rejected or failed the upload.
	ErrUpload = errors.New("upload error")
	// ErrLoad means the warehouse load job failed or could not be submitted.
	ErrLoad = errors.New("load error")
)

const (
	ContentTypeCSV  = "text/csv"
	ContentTypeJSON = "application/json"

	rawTimestampLayout = "2006-01-02-15-04-05"
)

// ObjectStore writes objects to a bucket, overwriting any existing object at the key.
type ObjectStore interface {
	Upload(ctx context.Context, key, localPath, contentType string) error
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) error
	Backend() string
	Close() error
}

// Warehouse appends records to a table.
type Warehouse interface {
	Append(ctx context.Context, records []models.WeatherRecord) error
	Close() error
}

// Options controls object naming.
type Options struct {
	ObjectKey  string
	ArchiveRaw bool
	RawPrefix  string
}

// Sink uploads the local file (and optionally the raw payload) then loads the
// run's record. The two steps are independent: a load failure does not undo the upload.
type Sink struct {
	store     ObjectStore
	warehouse Warehouse
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

func New(store ObjectStore, warehouse Warehouse, opts Options, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		store:     store,
		warehouse: warehouse,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Upload puts the local CSV at the configured object key. When raw archiving is on,
// the provider payload is stored under {raw_prefix}/{city}/{timestamp}.json as well.
func (s *Sink) Upload(ctx context.Context, localPath string, rec models.WeatherRecord, raw map[string]any) error {
	if err := s.store.Upload(ctx, s.opts.ObjectKey, localPath, ContentTypeCSV); err != nil {
		return err
	}
	s.logger.Info("uploaded local file",
		zap.String("backend", s.store.Backend()),
		zap.String("key", s.opts.ObjectKey),
	)

	if !s.opts.ArchiveRaw || raw == nil {
		return nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: encode raw payload: %v", ErrUpload, err)
	}
	key := s.RawKey(rec.City)
	if err := s.store.UploadBytes(ctx, key, data, ContentTypeJSON); err != nil {
		return err
	}
	s.logger.Info("archived raw payload", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Load appends the run's record to the warehouse table.
func (s *Sink) Load(ctx context.Context, rec models.WeatherRecord) error {
	if err := s.warehouse.Append(ctx, []models.WeatherRecord{rec}); err != nil {
		return err
	}
	s.logger.Info("appended record to warehouse", zap.String("city", rec.City))
	return nil
}

// RawKey returns the archive key for a payload fetched now.
func (s *Sink) RawKey(city string) string {
	if city == "" {
		city = "unnamed"
	}
	return path.Join(s.opts.RawPrefix, city, s.now().UTC().Format(rawTimestampLayout)+".json")
}

// Close releases both clients.
func (s *Sink) Close() error {
	return errors.Join(s.store.Close(), s.warehouse.Close())
}
