// Package worker pulls pending generation jobs and drives them through the
// workflow orchestrator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/data"
	"github.com/talkingphoto/pipeline/internal/domain/model"
	"github.com/talkingphoto/pipeline/internal/service"
)

// RunnerOptions configures the generation worker pool.
type RunnerOptions struct {
	Jobs         core.JobRepository    // Required
	Orchestrator *service.Orchestrator // Required
	Clock        core.Clock            // Optional; defaults to the system clock

	// Concurrency is the number of worker goroutines; defaults to 1.
	Concurrency int
	// PollInterval is how long an idle worker waits before checking for
	// pending jobs again; defaults to 1s.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Runner reserves pending jobs and executes them until the context is cancelled.
type Runner struct {
	jobs         core.JobRepository
	orchestrator *service.Orchestrator
	clock        core.Clock
	workers      int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRunner constructs a Runner from options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job repository is required")
	}
	if opts.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = data.SystemClock{}
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		jobs:         opts.Jobs,
		orchestrator: opts.Orchestrator,
		clock:        clock,
		workers:      workers,
		pollInterval: pollInterval,
		logger:       logger.With("component", "generation_worker"),
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting generation workers",
		"workers", r.workers, "poll_interval", r.pollInterval)

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx)
		switch {
		case err == nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if sleepErr := r.clock.Sleep(ctx, r.pollInterval); sleepErr != nil {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

// processJob runs one job to a terminal state. Execution errors are already
// reflected in the persisted job; they never take down the worker.
func (r *Runner) processJob(ctx context.Context, job *model.GenerationJob) {
	result, err := r.orchestrator.Execute(ctx, job)
	if err != nil {
		r.logger.ErrorContext(ctx, "job execution error",
			"job_id", job.ID, "error", err)
		return
	}
	r.logger.InfoContext(ctx, "job finished",
		"job_id", result.JobID,
		"status", result.Status,
		"provider", result.Provider,
		"fallback_used", result.FallbackUsed,
		"elapsed", result.Elapsed)
}
