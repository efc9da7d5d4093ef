package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/kjstillabower/weather-etl/internal/observability"
)

// S3Store uploads objects to an S3 bucket. Credentials come from the standard AWS chain.
type S3Store struct {
	uploader *s3manager.Uploader
	bucket   string
}

func NewS3Store(bucket, region string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create aws session: %v", ErrUpload, err)
	}
	return NewS3StoreWithSession(sess, bucket), nil
}

// NewS3StoreWithSession uses an existing session, e.g. one pointed at an S3-compatible endpoint.
func NewS3StoreWithSession(sess *session.Session, bucket string) *S3Store {
	uploader := s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		u.PartSize = 20 << 20 // 20MB
	})
	return &S3Store{uploader: uploader, bucket: bucket}
}

func (s *S3Store) Backend() string { return "s3" }

func (s *S3Store) Upload(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUpload, localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrUpload, localPath, err)
	}
	return s.put(ctx, key, f, info.Size(), contentType)
}

func (s *S3Store) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	return s.put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (s *S3Store) put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("%w: s3://%s/%s: %v", ErrUpload, s.bucket, key, err)
	}

	observability.SinkBytesUploadedTotal.WithLabelValues(s.Backend()).Add(float64(size))
	return nil
}

func (s *S3Store) Close() error { return nil }
