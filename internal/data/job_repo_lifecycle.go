package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assesskit/reportgen/internal/core"
	apperrors "github.com/assesskit/reportgen/internal/errors"
)

// Start overwrites started_at on an in_progress job. The operation is
// idempotent: calling it twice simply overwrites the timestamp, since no
// exclusivity lock is assumed at this layer.
func (r *JobRepo) Start(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE report_jobs
		SET started_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'in_progress'
	`, id, currentTime)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("start job: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("start rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Complete marks a job as completed and records its artifact reference.
// The transition only applies to in_progress jobs; completing a job twice or
// completing a terminal job is a no-op returning false.
func (r *JobRepo) Complete(ctx context.Context, id string, params core.CompleteJobParams) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE report_jobs
		SET status = 'completed',
		    artifact_filename = $2,
		    storage_id = $3,
		    storage_link = $4,
		    completed_at = $5,
		    updated_at = $5,
		    lease_expires_at = NULL,
		    error_message = NULL,
		    error_details = NULL
		WHERE id = $1 AND status = 'in_progress'
	`, id, params.Filename, params.StorageID, params.StorageLink, currentTime)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("complete job: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Fail marks a job as failed with the given error message and details.
// Like Complete, the transition only applies to in_progress jobs.
func (r *JobRepo) Fail(ctx context.Context, id string, params core.FailJobParams) (bool, error) {
	if params.Message == "" {
		return false, errors.New("error message required")
	}

	details := params.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE report_jobs
		SET status = 'failed',
		    error_message = $2,
		    error_details = $3,
		    completed_at = $4,
		    updated_at = $4,
		    lease_expires_at = NULL
		WHERE id = $1 AND status = 'in_progress'
	`, id, params.Message, []byte(details), currentTime)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("fail job: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Cancel marks a pending job as cancelled. In-progress and terminal jobs are
// left untouched.
func (r *JobRepo) Cancel(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE report_jobs
		SET status = 'cancelled',
		    completed_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, currentTime)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("cancel job: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// MarkCallbackSent records that the webhook callback for a job was delivered.
func (r *JobRepo) MarkCallbackSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE report_jobs
		SET callback_sent = TRUE,
		    callback_sent_at = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, sentAt.UTC(), r.timeProvider.Now().UTC())
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("mark callback sent: %w", err))
	}
	return nil
}

// Heartbeat refreshes the lease on an in_progress job.
func (r *JobRepo) Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE report_jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'in_progress'
	`, id, leaseExpiration, currentTime)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("heartbeat job: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
