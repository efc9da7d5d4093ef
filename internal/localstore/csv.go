// Package localstore appends weather records to a CSV file on local disk.
package localstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/kjstillabower/weather-etl/internal/models"
	"github.com/kjstillabower/weather-etl/internal/observability"
)

// ErrIO means the local file could not be created, opened, or written.
var ErrIO = errors.New("local io error")

// CSVWriter appends rows to one file. The header is written only when the file is new or empty.
type CSVWriter struct {
	path string
	mu   sync.Mutex
}

func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// Path returns the file the writer appends to.
func (w *CSVWriter) Path() string {
	return w.path
}

// Append writes rec as a single row, creating the parent directory and header as needed.
func (w *CSVWriter) Append(rec models.WeatherRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create directory %s: %v", ErrIO, dir, err)
		}
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrIO, w.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: stat %s: %v", ErrIO, w.path, err)
	}

	if err := writeRows(f, info.Size() == 0, []models.WeatherRecord{rec}); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %v", ErrIO, w.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrIO, w.path, err)
	}

	observability.LocalRowsWrittenTotal.Inc()
	return nil
}

// Encode renders a header followed by one row per record.
func Encode(records []models.WeatherRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeRows(&buf, true, records); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrIO, err)
	}
	return buf.Bytes(), nil
}

func writeRows(dst io.Writer, header bool, records []models.WeatherRecord) error {
	cw := csv.NewWriter(dst)
	if header {
		if err := cw.Write(models.Columns()); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if err := cw.Write(row(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(rec models.WeatherRecord) []string {
	return []string{
		rec.City,
		rec.Timestamp.UTC().Format(time.RFC3339),
		strconv.FormatFloat(rec.Temperature, 'f', -1, 64),
		strconv.Itoa(rec.Humidity),
		rec.Description,
	}
}
