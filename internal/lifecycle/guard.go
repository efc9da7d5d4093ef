package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kjstillabower/weather-etl/internal/pipeline"
)

var (
	ErrRunInProgress = errors.New("pipeline run already in progress")
	ErrShuttingDown  = errors.New("service is shutting down")
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// RunStatus is the outcome of the most recent finished run.
type RunStatus struct {
	RunID      string    `json:"runId"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RunGuard allows one run at a time across every trigger (HTTP, schedule).
// The local CSV is append-only, so overlapping runs are rejected rather than queued.
type RunGuard struct {
	runner Runner
	mu     sync.Mutex

	stateMu sync.RWMutex
	last    *RunStatus
	now     func() time.Time
}

func NewRunGuard(runner Runner) *RunGuard {
	return &RunGuard{runner: runner, now: time.Now}
}

// TryRun runs the pipeline unless another run holds the guard or shutdown has begun.
func (g *RunGuard) TryRun(ctx context.Context) (pipeline.Result, error) {
	if IsShuttingDown() {
		return pipeline.Result{}, ErrShuttingDown
	}
	if !g.mu.TryLock() {
		return pipeline.Result{}, ErrRunInProgress
	}
	defer g.mu.Unlock()

	res, err := g.runner.Run(ctx)
	g.record(res, err)
	return res, err
}

func (g *RunGuard) record(res pipeline.Result, err error) {
	st := &RunStatus{
		RunID:      res.RunID,
		Status:     "success",
		FinishedAt: g.now().UTC(),
	}
	if err != nil {
		st.Status = "failure"
		st.Error = err.Error()
		var se *pipeline.StageError
		if errors.As(err, &se) {
			st.Stage = se.Stage
		}
	}

	g.stateMu.Lock()
	g.last = st
	g.stateMu.Unlock()
}

// LastRun returns the most recent outcome. ok is false before the first run finishes.
func (g *RunGuard) LastRun() (RunStatus, bool) {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	if g.last == nil {
		return RunStatus{}, false
	}
	return *g.last, true
}

// Wait blocks until no run is in progress or ctx is done. checkInterval is how often to re-check.
func (g *RunGuard) Wait(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if g.mu.TryLock() {
			g.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
