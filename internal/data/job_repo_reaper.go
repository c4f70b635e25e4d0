package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockReaperMajor       = 1400
	advisoryLockReaperFailLeases  = 1 // minor key for FailExpiredLeases
	advisoryLockReaperDeleteScope = 2 // minor key for DeleteOldJobs
)

// FailExpiredLeases fails in_progress jobs whose worker lease expired without
// a terminal transition (e.g. a worker crashed mid-job). Statuses are
// monotonic, so an orphaned job is failed rather than requeued; resubmission
// is an external concern. Returns the number of jobs failed.
func (r *JobRepo) FailExpiredLeases(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperFailLeases).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now().UTC()

			res, err := tx.ExecContext(ctx, `
				UPDATE report_jobs
				SET status = 'failed',
					error_message = 'worker lease expired before the job reached a terminal state',
					error_details = '{"kind":"lease_expired"}',
					completed_at = $1,
					updated_at = $1,
					lease_expires_at = NULL
				WHERE id IN (
					SELECT id FROM report_jobs
					WHERE status = 'in_progress'
					  AND lease_expires_at IS NOT NULL
					  AND lease_expires_at < $1
					ORDER BY lease_expires_at
					LIMIT $2
				)
			`, currentTime, batchSize)
			if err != nil {
				return fmt.Errorf("fail expired leases: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldJobs deletes jobs with the given terminal status older than MaxAge.
// Processes up to BatchSize jobs per call to prevent long locks and I/O spikes.
// Pending and in_progress records are never touched.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("delete old jobs requires a terminal status, got %q", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDeleteScope).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-params.MaxAge).UTC()

			res, err := tx.ExecContext(ctx, `
				DELETE FROM report_jobs
				WHERE id IN (
					SELECT id FROM report_jobs
					WHERE status = $1
					  AND created_at < $2
					ORDER BY created_at
					LIMIT $3
				)
			`, params.Status, cutoffTime, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
