package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	apperrors "github.com/assesskit/reportgen/internal/errors"

	"github.com/assesskit/reportgen/internal/data/pgxutil"
	"github.com/assesskit/reportgen/internal/domain/model"
)

// jobAddedChannel is the pg_notify channel workers listen on for new jobs.
const jobAddedChannel = "report_job_added"

// SQL used by ReserveNext to atomically claim the oldest pending job.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM report_jobs
    WHERE status = 'pending'
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE report_jobs j
  SET
    status = 'in_progress',
    started_at = $1,
    lease_expires_at = $2,
    updated_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + prefixedJobColumns

// prefixedJobColumns is jobColumns qualified for the UPDATE ... RETURNING form.
const prefixedJobColumns = `
  j.id, j.session_code, j.product_id, j.status, j.requester_email, j.requester_name,
  j.callback_url, j.artifact_filename, j.storage_id, j.storage_link, j.error_message,
  j.error_details, j.retry_count, j.callback_sent, j.callback_sent_at,
  j.lease_expires_at, j.created_at, j.started_at, j.completed_at, j.updated_at`

// Create inserts a new job with status=pending and notifies listening workers.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.ReportJob, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, apperrors.Wrap(validateErr, apperrors.ErrCodeValidation, "invalid create job request")
	}

	var job *model.ReportJob
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
			  INSERT INTO report_jobs(session_code, product_id, status, requester_email, requester_name, callback_url, created_at, updated_at)
			  VALUES ($1, $2, 'pending', $3, $4, $5, $6, $6)
			  RETURNING `+jobColumns,
				req.SessionCode, req.ProductID, req.RequesterEmail, req.RequesterName, req.CallbackURL,
				r.timeProvider.Now().UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			job, err = collectJobFromRows(rows)
			rows.Close()
			if err != nil {
				return fmt.Errorf("collect job: %w", err)
			}

			if _, notifyErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobAddedChannel, job.ID); notifyErr != nil {
				return fmt.Errorf("send job notification: %w", notifyErr)
			}
			return nil
		},
	})
	if txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.ReportJob, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM report_jobs
		WHERE id = $1
	`, id)

	job, err := scanJobFromRow(row)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get job: %w", err))
	}
	return job, nil
}

// FindLatest returns the most recently created job for the (session, product)
// pair. The submission layer uses it to reuse an already-queued or running job
// instead of creating a duplicate.
func (r *JobRepo) FindLatest(ctx context.Context, sessionCode, productID string) (*model.ReportJob, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM report_jobs
		WHERE session_code = $1 AND product_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionCode, productID)

	job, err := scanJobFromRow(row)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("find latest job: %w", err))
	}
	return job, nil
}

// ReserveNext reserves the next available pending job for processing,
// transitioning it to in_progress under a lease.
func (r *JobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.ReportJob, error) {
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	var job *model.ReportJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(ctx, reserveNextUpdateSQL, currentTime.UTC(), leaseExpiresAt.UTC())
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{jobAddedChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// Stats returns statistics about jobs in different states.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')     AS pending,
    count(*) FILTER (WHERE status = 'in_progress') AS in_progress,
    count(*) FILTER (WHERE status = 'completed')   AS completed,
    count(*) FILTER (WHERE status = 'failed')      AS failed,
    count(*) FILTER (WHERE status = 'cancelled')   AS cancelled
  FROM report_jobs
  `).Scan(
		&s.Pending,
		&s.InProgress,
		&s.Completed,
		&s.Failed,
		&s.Cancelled,
	)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get job stats: %w", err))
	}
	return &s, nil
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.ReportJob, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}
