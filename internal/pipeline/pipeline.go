// Package pipeline runs the fetch, transform, write, upload and load stages in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-etl/internal/models"
	"github.com/kjstillabower/weather-etl/internal/observability"
	"github.com/kjstillabower/weather-etl/internal/transform"
)

// Stage names used in errors, logs and metric labels.
const (
	StageFetch      = "fetch"
	StageTransform  = "transform"
	StageWriteLocal = "write_local"
	StageUpload     = "upload"
	StageLoad       = "load"
)

// Fetcher returns the raw provider payload.
type Fetcher interface {
	Fetch(ctx context.Context) (map[string]any, error)
}

// Writer appends a record to the local file returned by Path.
type Writer interface {
	Append(rec models.WeatherRecord) error
	Path() string
}

// Sink uploads the local file then loads the record into the warehouse.
type Sink interface {
	Upload(ctx context.Context, localPath string, rec models.WeatherRecord, raw map[string]any) error
	Load(ctx context.Context, rec models.WeatherRecord) error
}

// StageError records which stage failed. errors.Is and errors.As see through it to the cause.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result describes a successful run.
type Result struct {
	RunID    string
	Record   models.WeatherRecord
	Duration time.Duration
}

type Pipeline struct {
	fetcher    Fetcher
	writer     Writer
	sink       Sink
	logger     *zap.Logger
	runTimeout time.Duration
	newRunID   func() string
	transform  transform.Options
}

// New creates a pipeline. A zero runTimeout leaves the run bounded only by ctx.
func New(fetcher Fetcher, writer Writer, sink Sink, logger *zap.Logger, runTimeout time.Duration) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:    fetcher,
		writer:     writer,
		sink:       sink,
		logger:     logger,
		runTimeout: runTimeout,
		newRunID:   func() string { return uuid.New().String() },
	}
}

// Run executes one extract-transform-load cycle. The first failing stage stops the
// run and is returned as a *StageError; nothing already written is rolled back.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	runID := observability.RunIDFrom(ctx)
	if runID == "" {
		runID = p.newRunID()
		ctx = observability.WithRunID(ctx, runID)
	}
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	logger := p.logger.With(zap.String("run_id", runID))
	start := time.Now()
	logger.Info("pipeline run started")

	rec, err := p.run(ctx, logger)
	duration := time.Since(start)
	if err != nil {
		observability.RecordRun(false, duration, time.Time{})
		stage := ""
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		observability.ReportRunFailure(runID, stage, err)
		logger.Error("pipeline run failed",
			zap.String("stage", stage),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return Result{RunID: runID}, err
	}

	observability.RecordRun(true, duration, time.Now())
	logger.Info("pipeline run succeeded",
		zap.String("city", rec.City),
		zap.Time("observed_at", rec.Timestamp),
		zap.Duration("duration", duration),
	)
	return Result{RunID: runID, Record: rec, Duration: duration}, nil
}

func (p *Pipeline) run(ctx context.Context, logger *zap.Logger) (models.WeatherRecord, error) {
	var payload map[string]any
	if err := p.stage(logger, StageFetch, func() error {
		var err error
		payload, err = p.fetcher.Fetch(ctx)
		return err
	}); err != nil {
		return models.WeatherRecord{}, err
	}

	var rec models.WeatherRecord
	if err := p.stage(logger, StageTransform, func() error {
		var err error
		rec, err = transform.TransformWith(payload, p.transform)
		return err
	}); err != nil {
		return models.WeatherRecord{}, err
	}

	if err := p.stage(logger, StageWriteLocal, func() error {
		return p.writer.Append(rec)
	}); err != nil {
		return models.WeatherRecord{}, err
	}

	if err := p.stage(logger, StageUpload, func() error {
		return p.sink.Upload(ctx, p.writer.Path(), rec, payload)
	}); err != nil {
		return models.WeatherRecord{}, err
	}

	if err := p.stage(logger, StageLoad, func() error {
		return p.sink.Load(ctx, rec)
	}); err != nil {
		return models.WeatherRecord{}, err
	}

	return rec, nil
}

func (p *Pipeline) stage(logger *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	if err != nil {
		category := CategorizeError(err)
		observability.RecordStage(name, d, string(category))
		logger.Warn("stage failed",
			zap.String("stage", name),
			zap.String("category", string(category)),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		return &StageError{Stage: name, Err: err}
	}
	observability.RecordStage(name, d, "")
	logger.Debug("stage completed", zap.String("stage", name), zap.Duration("duration", d))
	return nil
}
