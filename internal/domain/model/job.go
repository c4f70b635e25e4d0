// Package model defines the core data types and structures used throughout the reportgen job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// JobStatus represents the current status of a report job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be picked up by a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusInProgress indicates a job is currently being processed.
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates a job was cancelled before completion.
	JobStatusCancelled JobStatus = "cancelled"
)

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusInProgress || s == JobStatusCompleted ||
		s == JobStatusFailed || s == JobStatusCancelled
}

// Terminal returns true if the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal, forward-only transition.
// Statuses are monotonic: a terminal job never moves back to a non-terminal state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusInProgress || next == JobStatusCancelled
	case JobStatusInProgress:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	default:
		return false
	}
}

// ReportJob represents one asynchronous request to assemble and deliver a
// combined report document for a given test session and product.
type ReportJob struct {
	ID          string    `json:"id"           db:"id"`
	SessionCode string    `json:"session_code" db:"session_code"`
	ProductID   string    `json:"product_id"   db:"product_id"`
	Status      JobStatus `json:"status"       db:"status"`

	// Requester context, used for artifact naming and webhook delivery.
	RequesterEmail *string `json:"requester_email,omitempty" db:"requester_email"`
	RequesterName  *string `json:"requester_name,omitempty"  db:"requester_name"`
	CallbackURL    *string `json:"callback_url,omitempty"    db:"callback_url"`

	// Result fields, set only when the job completes successfully.
	ArtifactFilename *string `json:"artifact_filename,omitempty" db:"artifact_filename"`
	StorageID        *string `json:"storage_id,omitempty"        db:"storage_id"`
	StorageLink      *string `json:"storage_link,omitempty"      db:"storage_link"`

	// Failure fields, set only when the job fails.
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	ErrorDetails json.RawMessage `json:"error_details,omitempty" db:"error_details"`

	RetryCount     int        `json:"retry_count"                db:"retry_count"`
	CallbackSent   bool       `json:"callback_sent"              db:"callback_sent"`
	CallbackSentAt *time.Time `json:"callback_sent_at,omitempty" db:"callback_sent_at"`

	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time  `json:"created_at"                 db:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"     db:"completed_at"`
	UpdatedAt      time.Time  `json:"updated_at"                 db:"updated_at"`
}

// ProcessingDuration returns completed_at - started_at, or zero when the job
// has not reached a terminal state yet.
func (j *ReportJob) ProcessingDuration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// CreateJobRequest represents a request to create a new report job.
type CreateJobRequest struct {
	SessionCode    string  `json:"session_code"`
	ProductID      string  `json:"product_id"`
	RequesterEmail *string `json:"requester_email,omitempty"`
	RequesterName  *string `json:"requester_name,omitempty"`
	CallbackURL    *string `json:"callback_url,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.SessionCode) == "" {
		return errors.New("session code is required")
	}
	if strings.TrimSpace(r.ProductID) == "" {
		return errors.New("product id is required")
	}
	if r.CallbackURL != nil && *r.CallbackURL != "" {
		u, err := url.Parse(*r.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callback url must be a valid http(s) URL: %q", *r.CallbackURL)
		}
	}
	return nil
}

// JobStats represents statistics about jobs in different states.
type JobStats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// JobStatusResponse represents the status information returned by the status interface.
type JobStatusResponse struct {
	JobID            string          `json:"job_id"`
	Status           JobStatus       `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	ArtifactFilename *string         `json:"artifact_filename,omitempty"`
	StorageID        *string         `json:"storage_id,omitempty"`
	StorageLink      *string         `json:"storage_link,omitempty"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	ErrorDetails     json.RawMessage `json:"error_details,omitempty"`
}

// StatusResponse builds the external status view of a job.
func (j *ReportJob) StatusResponse() *JobStatusResponse {
	return &JobStatusResponse{
		JobID:            j.ID,
		Status:           j.Status,
		CreatedAt:        j.CreatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		ArtifactFilename: j.ArtifactFilename,
		StorageID:        j.StorageID,
		StorageLink:      j.StorageLink,
		ErrorMessage:     j.ErrorMessage,
		ErrorDetails:     j.ErrorDetails,
	}
}
