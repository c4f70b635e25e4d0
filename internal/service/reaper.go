package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/assesskit/reportgen/config"
	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/domain/model"
	obserrors "github.com/assesskit/reportgen/internal/observability/errors"
	"github.com/assesskit/reportgen/internal/observability/metrics"
	"github.com/assesskit/reportgen/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required: reaper repository
	Config  config.ReaperConfig   // Required: reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService provides job cleanup operations.
//
// This service manages:
// - Failing in-progress jobs whose worker lease expired without an outcome.
// - Deleting old completed jobs to prevent database bloat.
// - Deleting old failed jobs to prevent database bloat.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
		)
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs cleanup operations at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run cleanup immediately after jitter
	if err := s.RunCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
				// Continue running despite errors
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos))

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

type cleanupFunc func(context.Context) (int64, error)

// RunCleanup performs all cleanup operations once.
func (s *ReaperService) RunCleanup(ctx context.Context) error {
	start := time.Now()

	steps := []struct {
		fn    cleanupFunc
		label string
	}{
		{fn: s.failExpiredLeases, label: "fail expired leases"},
		{fn: s.deleteOldCompletedJobs, label: "delete old completed jobs"},
		{fn: s.deleteOldFailedJobs, label: "delete old failed jobs"},
	}

	var (
		errs  []error
		total int64
	)
	for _, step := range steps {
		count, err := step.fn(ctx)
		total += count
		if err != nil {
			if isContextCancellation(err) {
				errs = append(errs, err)
				break
			}
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
		}
	}

	joined := errors.Join(errs...)
	s.emitCleanupMetrics(total, time.Since(start), joined)

	if joined != nil {
		if isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}

	return nil
}

// failExpiredLeases fails in-progress jobs whose lease expired without a
// terminal transition. The worker holding the lease is presumed dead; the
// status machine is forward-only, so the job fails instead of requeueing.
// Loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) failExpiredLeases(ctx context.Context) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.FailExpiredLeases(ctx, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed jobs with expired leases", "count", totalCount)
	}

	return totalCount, nil
}

// deleteOldCompletedJobs deletes completed jobs older than the configured max age.
func (s *ReaperService) deleteOldCompletedJobs(ctx context.Context) (int64, error) {
	return s.deleteOldJobs(ctx, model.JobStatusCompleted, s.config.CompletedMaxAge)
}

// deleteOldFailedJobs deletes failed jobs older than the configured max age.
func (s *ReaperService) deleteOldFailedJobs(ctx context.Context) (int64, error) {
	return s.deleteOldJobs(ctx, model.JobStatusFailed, s.config.FailedMaxAge)
}

// deleteOldJobs loops until no more rows are affected to handle large
// datasets in batches.
func (s *ReaperService) deleteOldJobs(ctx context.Context, status model.JobStatus, maxAge time.Duration) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Status:    status,
			MaxAge:    maxAge,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted old jobs",
			"status", status,
			"count", totalCount,
			"max_age", maxAge,
		)
	}

	return totalCount, nil
}

func (s *ReaperService) emitCleanupMetrics(total int64, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case total == 0:
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if total > 0 {
		s.metrics.Count("reaper.rows", total, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if s.logger == nil || isContextCancellation(err) {
		return
	}
	s.logger.Error(label+" error", "error", err)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
