package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/assesskit/reportgen/internal/core"
)

// WorkflowRepo mirrors terminal job outcomes into the permanent workflow
// record table, keyed by session code. The mirror is best effort: callers log
// failures and never let them change the job outcome.
type WorkflowRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewWorkflowRepo creates a new WorkflowRepo with the given database connection.
func NewWorkflowRepo(db *sql.DB) *WorkflowRepo {
	return &WorkflowRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// RecordTerminalStatus upserts the workflow record for a (session, product) pair.
func (r *WorkflowRepo) RecordTerminalStatus(ctx context.Context, params core.WorkflowRecordParams) error {
	if !params.Status.Terminal() {
		return errors.New("workflow record requires a terminal status")
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO workflow_records (session_code, product_id, job_id, status, storage_link, error_message, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_code, product_id) DO UPDATE
		SET job_id = EXCLUDED.job_id,
		    status = EXCLUDED.status,
		    storage_link = EXCLUDED.storage_link,
		    error_message = EXCLUDED.error_message,
		    recorded_at = EXCLUDED.recorded_at
	`, params.SessionCode, params.ProductID, params.JobID, params.Status,
		params.StorageLink, params.ErrorMsg, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("record workflow status: %w", err)
	}
	return nil
}
