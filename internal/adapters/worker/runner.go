// Package worker provides the worker pool that executes report jobs pulled
// from the job queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/domain/model"
	"github.com/assesskit/reportgen/internal/domain/report"
	"github.com/assesskit/reportgen/internal/notify/webhook"
	obserrors "github.com/assesskit/reportgen/internal/observability/errors"
	"github.com/assesskit/reportgen/internal/observability/metrics"
	"github.com/assesskit/reportgen/internal/observability/statsd"
	"github.com/assesskit/reportgen/internal/service"
)

// RunnerOptions configures the report worker pool.
type RunnerOptions struct {
	Jobs     *service.JobService      // Required
	Composer *service.ComposerService // Required
	Delivery *service.DeliveryService // Required
	Notifier *webhook.Notifier        // Optional: webhook delivery disabled when nil
	Logger   *slog.Logger             // Optional
	Metrics  statsd.Sink              // Optional

	Concurrency  int           // number of worker goroutines; defaults to 1
	Lease        time.Duration // per-job lease duration; defaults to 30s
	JobTimeout   time.Duration // per-job execution deadline; defaults to 10m
	PollInterval time.Duration // fallback poll cadence when no wakeups arrive; defaults to 15s
}

// Runner pulls report jobs and drives each through the generation pipeline:
// start, compose, merge, deliver, terminal transition, webhook. Each job is
// owned by exactly one worker for its entire lifetime.
type Runner struct {
	jobs     *service.JobService
	composer *service.ComposerService
	delivery *service.DeliveryService
	notifier *webhook.Notifier
	logger   *slog.Logger
	metrics  statsd.Sink

	workers      int
	lease        time.Duration
	jobTimeout   time.Duration
	pollInterval time.Duration
}

// NewRunner constructs a report worker pool.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Composer == nil {
		return nil, errors.New("ComposerService is required")
	}
	if opts.Delivery == nil {
		return nil, errors.New("DeliveryService is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}

	return &Runner{
		jobs:         opts.Jobs,
		composer:     opts.Composer,
		delivery:     opts.Delivery,
		notifier:     opts.Notifier,
		logger:       logger.With("component", "report_worker"),
		metrics:      opts.Metrics,
		workers:      workers,
		lease:        lease,
		jobTimeout:   jobTimeout,
		pollInterval: pollInterval,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting report workers",
		"workers", r.workers,
		"lease", r.lease,
		"job_timeout", r.jobTimeout,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wake := make(chan struct{}, 1)
	go r.listenLoop(ctx, wake)

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, wake); err != nil {
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

// listenLoop blocks on queue notifications and nudges an idle worker per
// wakeup. Workers also poll on a ticker, so a lost notification only delays
// pickup rather than losing the job.
func (r *Runner) listenLoop(ctx context.Context, wake chan<- struct{}) {
	for ctx.Err() == nil {
		if err := r.jobs.WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.WarnContext(ctx, "job notification listener error", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

func (r *Runner) workerLoop(ctx context.Context, wake <-chan struct{}) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.lease)
		switch {
		case err == nil && job != nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
			case <-ticker.C:
			}
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

// processJob drives one job through the full pipeline and guarantees exactly
// one terminal transition and at most one webhook delivery.
func (r *Runner) processJob(ctx context.Context, job *model.ReportJob) {
	start := time.Now()
	logger := r.logger.With("job_id", job.ID, "session_code", job.SessionCode, "product_id", job.ProductID)
	logger.InfoContext(ctx, "processing report job")

	jobCtx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	if _, err := r.jobs.Start(jobCtx, job.ID); err != nil {
		logger.ErrorContext(ctx, "start job error", "error", err)
	}

	stopHeartbeat := r.startHeartbeat(jobCtx, job.ID)
	result, execErr := r.execute(jobCtx, job)
	stopHeartbeat()

	// Terminal transitions run on the parent context so an expired job
	// deadline cannot prevent recording the outcome.
	if execErr != nil {
		if jobCtx.Err() != nil && errors.Is(execErr, context.DeadlineExceeded) {
			execErr = &report.TimeoutError{JobID: job.ID}
		}
		if _, err := r.jobs.Fail(ctx, job, core.FailJobParams{
			Message: execErr.Error(),
			Details: errorDetails(execErr),
		}); err != nil {
			logger.ErrorContext(ctx, "fail job error", "error", err, "original_error", execErr)
		}
		r.emit(job, "failed", metrics.ResultError, time.Since(start), execErr)
		logger.WarnContext(ctx, "report job failed", "error", execErr)
	} else {
		completed, err := r.jobs.Complete(ctx, job, *result)
		if err != nil {
			logger.ErrorContext(ctx, "complete job error", "error", err)
			r.emit(job, "completed", metrics.ResultError, time.Since(start), err)
		} else {
			outcome := metrics.ResultNoop
			if completed {
				outcome = metrics.ResultSuccess
			}
			r.emit(job, "completed", outcome, time.Since(start), nil)
			logger.InfoContext(ctx, "report job completed", "artifact_filename", result.Filename)
		}
	}

	r.notify(ctx, job.ID, logger)
}

// startHeartbeat runs a background ticker that refreshes the job lease while
// the pipeline executes, so the reaper never fails a job a worker still owns.
// It returns a stop function.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.lease / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.jobs.Heartbeat(ctx, jobID, r.lease); err != nil {
					r.logger.ErrorContext(ctx, "job heartbeat failed", "job_id", jobID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "job heartbeat not applied, job no longer in progress", "job_id", jobID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// execute runs compose, merge and delivery. The job work dir is removed
// before returning regardless of outcome.
func (r *Runner) execute(ctx context.Context, job *model.ReportJob) (*core.CompleteJobParams, error) {
	composed, err := r.composer.Compose(ctx, job)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(composed.WorkDir); rmErr != nil {
			r.logger.WarnContext(ctx, "failed to remove job work dir",
				"job_id", job.ID,
				"dir", composed.WorkDir,
				"error", rmErr,
			)
		}
	}()

	artifact, ref, err := r.delivery.Deliver(ctx, job, composed)
	if err != nil {
		return nil, err
	}

	return &core.CompleteJobParams{
		Filename:    artifact.Filename,
		StorageID:   ref.StorageID,
		StorageLink: ref.StorageLink,
	}, nil
}

// notify reloads the job in its terminal state and delivers the webhook once.
func (r *Runner) notify(ctx context.Context, jobID string, logger *slog.Logger) {
	if r.notifier == nil {
		return
	}

	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		logger.ErrorContext(ctx, "load job for webhook error", "error", err)
		return
	}
	if job.CallbackSent || !job.Status.Terminal() {
		return
	}

	sent, err := r.notifier.Notify(ctx, job)
	if err != nil {
		// Callback failures never affect the job outcome.
		logger.WarnContext(ctx, "webhook delivery failed", "error", err)
		return
	}
	if !sent {
		return
	}

	if err := r.jobs.MarkCallbackSent(ctx, job.ID, time.Now().UTC()); err != nil {
		logger.WarnContext(ctx, "mark callback sent error", "error", err)
	}
}

func (r *Runner) emit(job *model.ReportJob, transition, result string, duration time.Duration, err error) {
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		ProductID:  job.ProductID,
		Transition: transition,
		Result:     result,
		Duration:   duration,
		Err:        err,
	})
}

// errorDetails builds the structured error_details payload recorded on
// failed jobs.
func errorDetails(err error) json.RawMessage {
	details := map[string]any{"kind": obserrors.Classify(err)}

	var missing *report.MissingRequiredTestsError
	var sectionErr *report.SectionGenerationError
	var mergeErr *report.MergeInputMissingError
	var deliveryErr *report.DeliveryError
	switch {
	case errors.As(err, &missing):
		details["missing_types"] = missing.MissingTypes
	case errors.As(err, &sectionErr):
		details["section"] = sectionErr.Section
	case errors.As(err, &mergeErr):
		details["section"] = mergeErr.Section
	case errors.As(err, &deliveryErr):
		details["filename"] = deliveryErr.Filename
	}

	raw, merr := json.Marshal(details)
	if merr != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
