package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/kjstillabower/weather-etl/internal/observability"
)

// GCSStore uploads objects to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a storage client. An empty credentialsPath uses Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsPath string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create storage client: %v", ErrUpload, err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Backend() string { return "gcs" }

func (s *GCSStore) Upload(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUpload, localPath, err)
	}
	defer f.Close()
	return s.put(ctx, key, f, contentType)
}

func (s *GCSStore) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	return s.put(ctx, key, bytes.NewReader(data), contentType)
}

func (s *GCSStore) put(ctx context.Context, key string, r io.Reader, contentType string) error {
	// Canceling the writer's context is the only way to abort a GCS upload.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	n, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("%w: gs://%s/%s: %v", ErrUpload, s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: gs://%s/%s: %v", ErrUpload, s.bucket, key, err)
	}

	observability.SinkBytesUploadedTotal.WithLabelValues(s.Backend()).Add(float64(n))
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
