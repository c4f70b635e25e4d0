// Package service contains the business logic for the report generation
// pipeline: job lifecycle, report composition, and artifact delivery.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/domain/model"
	apperrors "github.com/assesskit/reportgen/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo         core.JobRepository   // Required: job repository
	Reaper       core.ReaperRepository // Optional: required only for Cleanup
	Workflow     core.WorkflowMirror  // Optional: terminal-status mirror
	DefaultLease time.Duration        // Required: default worker lease duration
	Logger       *slog.Logger         // Optional: structured logger
}

// JobService provides business logic for report job operations.
//
// This service manages:
// - Job submission with duplicate-request reuse
// - Status lookups for the polling interface
// - Reservation and lifecycle transitions on behalf of workers
// - Best-effort mirroring of terminal statuses into the workflow store
// - Retention cleanup of old terminal jobs.
type JobService struct {
	repo         core.JobRepository
	reaper       core.ReaperRepository
	workflow     core.WorkflowMirror
	defaultLease time.Duration
	logger       *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.DefaultLease <= 0 {
		return nil, errors.New("DefaultLease must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized", "default_lease", opts.DefaultLease)
	}

	return &JobService{
		repo:         opts.Repo,
		reaper:       opts.Reaper,
		workflow:     opts.Workflow,
		defaultLease: opts.DefaultLease,
		logger:       logger,
	}, nil
}

// Submit accepts a report request. When the latest job for the same
// (session, product) pair is still pending or in progress, that job is
// returned instead of creating a duplicate; the boolean reports reuse.
func (s *JobService) Submit(ctx context.Context, req *model.CreateJobRequest) (*model.ReportJob, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid report request")
	}

	existing, err := s.repo.FindLatest(ctx, req.SessionCode, req.ProductID)
	switch {
	case err == nil && existing != nil && !existing.Status.Terminal():
		if s.logger != nil {
			s.logger.InfoContext(ctx, "reusing active job for duplicate request",
				"id", existing.ID,
				"session_code", existing.SessionCode,
				"product_id", existing.ProductID,
				"status", existing.Status,
			)
		}
		return existing, true, nil
	case err != nil && !apperrors.IsNotFound(err):
		return nil, false, fmt.Errorf("find latest job: %w", err)
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job created",
			"id", job.ID,
			"session_code", job.SessionCode,
			"product_id", job.ProductID,
		)
	}

	return job, false, nil
}

// Status returns the external status view of a job. A NotFound error is
// returned for unknown job ids; an Unavailable error signals that the job
// record store could not be reached and the status is indeterminate.
func (s *JobService) Status(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.StatusResponse(), nil
}

// GetByID returns the full job record.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.ReportJob, error) {
	return s.repo.GetByID(ctx, id)
}

// ReserveNext reserves the next pending job for processing under a lease.
// A zero lease falls back to the service default; sub-second leases clamp
// to one second.
func (s *JobService) ReserveNext(ctx context.Context, lease time.Duration) (*model.ReportJob, error) {
	if lease <= 0 {
		lease = s.defaultLease
	}
	seconds := int(lease / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	job, err := s.repo.ReserveNext(ctx, seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"id", job.ID,
			"product_id", job.ProductID,
			"lease_seconds", seconds,
		)
	}

	return job, nil
}

// WaitForNotification blocks until a new job is announced or ctx ends.
func (s *JobService) WaitForNotification(ctx context.Context) error {
	return s.repo.WaitForNotification(ctx)
}

// Start records the processing start timestamp on a reserved job.
func (s *JobService) Start(ctx context.Context, id string) (bool, error) {
	started, err := s.repo.Start(ctx, id)
	if err != nil {
		return false, fmt.Errorf("start job %s: %w", id, err)
	}
	return started, nil
}

// Heartbeat extends the worker lease on an in_progress job. Workers call this
// periodically while processing so the reaper never fails a live job.
func (s *JobService) Heartbeat(ctx context.Context, id string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		lease = s.defaultLease
	}
	seconds := int(lease / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	refreshed, err := s.repo.Heartbeat(ctx, id, seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	return refreshed, nil
}

// Complete marks a job as completed with the delivered artifact reference
// and mirrors the terminal status into the workflow store.
func (s *JobService) Complete(ctx context.Context, job *model.ReportJob, params core.CompleteJobParams) (bool, error) {
	completed, err := s.repo.Complete(ctx, job.ID, params)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", job.ID, err)
	}

	if s.logger != nil && completed {
		s.logger.InfoContext(ctx, "job completed",
			"id", job.ID,
			"artifact_filename", params.Filename,
		)
	}

	if completed {
		s.mirrorTerminal(ctx, job, model.JobStatusCompleted, &params.StorageLink, nil)
	}

	return completed, nil
}

// Fail marks a job as failed and mirrors the terminal status into the
// workflow store.
func (s *JobService) Fail(ctx context.Context, job *model.ReportJob, params core.FailJobParams) (bool, error) {
	if params.Message == "" {
		return false, errors.New("error message required")
	}

	failed, err := s.repo.Fail(ctx, job.ID, params)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", job.ID, err)
	}

	if s.logger != nil && failed {
		s.logger.WarnContext(ctx, "job failed",
			"id", job.ID,
			"error", params.Message,
		)
	}

	if failed {
		s.mirrorTerminal(ctx, job, model.JobStatusFailed, nil, &params.Message)
	}

	return failed, nil
}

// Cancel cancels a pending job. Jobs already picked up by a worker or in a
// terminal state are not affected and the call reports false.
func (s *JobService) Cancel(ctx context.Context, id string) (bool, error) {
	cancelled, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", id, err)
	}

	if s.logger != nil && cancelled {
		s.logger.InfoContext(ctx, "job cancelled", "id", id)
	}

	return cancelled, nil
}

// MarkCallbackSent records that the completion webhook was delivered.
func (s *JobService) MarkCallbackSent(ctx context.Context, id string, sentAt time.Time) error {
	if err := s.repo.MarkCallbackSent(ctx, id, sentAt); err != nil {
		return fmt.Errorf("mark callback sent %s: %w", id, err)
	}
	return nil
}

// Stats returns per-status job counts.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.repo.Stats(ctx)
}

const cleanupBatchSize = 500

// Cleanup deletes completed and failed jobs older than the given number of
// days, sweeping in batches, and returns the number of jobs removed.
// Pending and in-progress jobs are never touched.
func (s *JobService) Cleanup(ctx context.Context, days int) (int64, error) {
	if s.reaper == nil {
		return 0, errors.New("ReaperRepository is required for cleanup")
	}
	if days < 1 {
		return 0, apperrors.Validationf("retention days must be at least 1, got %d", days)
	}

	maxAge := time.Duration(days) * 24 * time.Hour

	var total int64
	for _, status := range []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed} {
		for {
			deleted, err := s.reaper.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: cleanupBatchSize,
			})
			if err != nil {
				return total, fmt.Errorf("delete old %s jobs: %w", status, err)
			}
			total += deleted
			if deleted < int64(cleanupBatchSize) {
				break
			}
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "cleanup finished", "days", days, "deleted", total)
	}

	return total, nil
}

func (s *JobService) mirrorTerminal(ctx context.Context, job *model.ReportJob, status model.JobStatus, link, errMsg *string) {
	if s.workflow == nil {
		return
	}

	err := s.workflow.RecordTerminalStatus(ctx, core.WorkflowRecordParams{
		SessionCode: job.SessionCode,
		ProductID:   job.ProductID,
		JobID:       job.ID,
		Status:      status,
		StorageLink: link,
		ErrorMsg:    errMsg,
	})
	if err != nil && s.logger != nil {
		// Mirror failures never fail the job transition itself.
		s.logger.WarnContext(ctx, "workflow mirror update failed",
			"id", job.ID,
			"status", status,
			"error", err,
		)
	}
}
