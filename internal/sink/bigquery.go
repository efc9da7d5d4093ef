package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kjstillabower/weather-etl/internal/localstore"
	"github.com/kjstillabower/weather-etl/internal/models"
	"github.com/kjstillabower/weather-etl/internal/observability"
)

// BigQueryWarehouse appends records to {project}.{dataset}.{table} with CSV load jobs.
type BigQueryWarehouse struct {
	client    *bigquery.Client
	datasetID string
	tableID   string
	location  string

	mu           sync.Mutex
	datasetReady bool
}

func NewBigQueryWarehouse(ctx context.Context, projectID, datasetID, tableID, location, credentialsPath string) (*BigQueryWarehouse, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create bigquery client: %v", ErrLoad, err)
	}
	return NewBigQueryWarehouseWithClient(client, datasetID, tableID, location), nil
}

// NewBigQueryWarehouseWithClient wraps an existing client. The warehouse owns it and closes it on Close.
func NewBigQueryWarehouseWithClient(client *bigquery.Client, datasetID, tableID, location string) *BigQueryWarehouse {
	if location != "" {
		client.Location = location
	}
	return &BigQueryWarehouse{
		client:    client,
		datasetID: datasetID,
		tableID:   tableID,
		location:  location,
	}
}

// Append runs one load job with WriteAppend and CreateIfNeeded and waits for it to finish.
func (w *BigQueryWarehouse) Append(ctx context.Context, records []models.WeatherRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := w.ensureDataset(ctx); err != nil {
		return err
	}

	src, err := newLoadSource(records)
	if err != nil {
		return err
	}

	loader := w.client.Dataset(w.datasetID).Table(w.tableID).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("%w: submit load job to %s.%s: %v", ErrLoad, w.datasetID, w.tableID, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: wait for load job %s: %v", ErrLoad, job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%w: load job %s: %v", ErrLoad, job.ID(), err)
	}

	observability.WarehouseRowsAppendedTotal.Add(float64(len(records)))
	return nil
}

// ensureDataset creates the dataset in the configured location the first time it is found missing.
func (w *BigQueryWarehouse) ensureDataset(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.datasetReady {
		return nil
	}

	ds := w.client.Dataset(w.datasetID)
	_, err := ds.Metadata(ctx)
	switch {
	case err == nil:
	case isHTTPStatus(err, http.StatusNotFound):
		err = ds.Create(ctx, &bigquery.DatasetMetadata{Location: w.location})
		if err != nil && !isHTTPStatus(err, http.StatusConflict) {
			return fmt.Errorf("%w: create dataset %s: %v", ErrLoad, w.datasetID, err)
		}
	default:
		return fmt.Errorf("%w: get dataset %s: %v", ErrLoad, w.datasetID, err)
	}

	w.datasetReady = true
	return nil
}

func (w *BigQueryWarehouse) Close() error {
	return w.client.Close()
}

func newLoadSource(records []models.WeatherRecord) (*bigquery.ReaderSource, error) {
	data, err := localstore.Encode(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	schema, err := bigquery.InferSchema(models.WeatherRecord{})
	if err != nil {
		return nil, fmt.Errorf("%w: infer schema: %v", ErrLoad, err)
	}

	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.CSV
	src.FieldDelimiter = ","
	src.SkipLeadingRows = 1
	src.Schema = schema
	return src, nil
}

func isHTTPStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
