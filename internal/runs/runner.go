package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robert-malhotra/sarprep/internal/pipeline"
)

// Orchestrator executes a single run.
type Orchestrator interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

// Runner executes at most one run at a time and records every report.
type Runner struct {
	orch   Orchestrator
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	active string
}

// NewRunner creates a Runner.
func NewRunner(orch Orchestrator, store Store) *Runner {
	return &Runner{
		orch:   orch,
		store:  store,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the runner
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Run executes req and saves its report. It fails with ErrRunInProgress
// while another run is executing. The report is returned whenever the run
// started, even if it failed.
func (r *Runner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error) {
	id, err := NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to create run id: %w", err)
	}

	r.mu.Lock()
	if r.active != "" {
		active := r.active
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, active)
	}
	r.active = id
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active = ""
		r.mu.Unlock()
	}()

	r.logger.InfoContext(ctx, "run started",
		slog.String("run_id", id),
		slog.String("archive", req.Archive),
		slog.String("location", req.Location),
	)

	report, runErr := r.orch.Run(ctx, req)
	if report == nil {
		report = &pipeline.Report{Archive: req.Archive, Location: req.Location, State: pipeline.StateFailed}
		if runErr != nil {
			report.Error = runErr.Error()
		}
	}
	report.ID = id

	if err := r.store.Save(ctx, report); err != nil {
		r.logger.WarnContext(ctx, "failed to save run report",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
		if runErr == nil {
			return report, err
		}
		return report, errors.Join(runErr, err)
	}
	return report, runErr
}

// Active returns the id of the executing run, or "" when idle.
func (r *Runner) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Store returns the underlying store.
func (r *Runner) Store() Store {
	return r.store
}
