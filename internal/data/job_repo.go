package data

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/assesskit/reportgen/internal/domain/model"
	apperrors "github.com/assesskit/reportgen/internal/errors"
)

var (
	// ErrJobNotFound is returned when a job is not found. It carries the
	// not_found code so callers can discriminate with apperrors.IsNotFound.
	ErrJobNotFound error = apperrors.NotFound("job not found")
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for report job management, including
// the queue semantics used by the worker pool (FOR UPDATE SKIP LOCKED
// reservation plus LISTEN/NOTIFY wakeups).
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  session_code,
  product_id,
  status,
  requester_email,
  requester_name,
  callback_url,
  artifact_filename,
  storage_id,
  storage_link,
  error_message,
  error_details,
  retry_count,
  callback_sent,
  callback_sent_at,
  lease_expires_at,
  created_at,
  started_at,
  completed_at,
  updated_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	requesterEmail, requesterName, callbackURL     sql.NullString
	artifactFilename, storageID, storageLink       sql.NullString
	errorMessage                                   sql.NullString
	errorDetails                                   []byte
	callbackSentAt, leaseExpiresAt                 sql.NullTime
	startedAt, completedAt                         sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.ReportJob) error {
	return scanner.Scan(
		&job.ID,
		&job.SessionCode,
		&job.ProductID,
		&job.Status,
		&d.requesterEmail,
		&d.requesterName,
		&d.callbackURL,
		&d.artifactFilename,
		&d.storageID,
		&d.storageLink,
		&d.errorMessage,
		&d.errorDetails,
		&job.RetryCount,
		&job.CallbackSent,
		&d.callbackSentAt,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&d.startedAt,
		&d.completedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.ReportJob) {
	job.RequesterEmail = cloneNullableString(d.requesterEmail)
	job.RequesterName = cloneNullableString(d.requesterName)
	job.CallbackURL = cloneNullableString(d.callbackURL)
	job.ArtifactFilename = cloneNullableString(d.artifactFilename)
	job.StorageID = cloneNullableString(d.storageID)
	job.StorageLink = cloneNullableString(d.storageLink)
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.ErrorDetails = cloneJSON(d.errorDetails)
	job.CallbackSentAt = cloneNullableTime(d.callbackSentAt)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.ReportJob, error) {
	job := &model.ReportJob{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
