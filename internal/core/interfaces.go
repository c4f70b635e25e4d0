// Package core contains the port interfaces between the service layer and its
// collaborators (repositories, renderer, merge engine, storage, notifier).
// Services depend on these contracts, never on concrete implementations.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/assesskit/reportgen/internal/domain/model"
)

// CompleteJobParams groups the result fields recorded on successful completion.
type CompleteJobParams struct {
	Filename    string
	StorageID   string
	StorageLink string
}

// FailJobParams groups the failure fields recorded when a job fails.
type FailJobParams struct {
	Message string
	Details json.RawMessage
}

// JobRepository defines the contract of the job record store.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.ReportJob, error)
	GetByID(ctx context.Context, id string) (*model.ReportJob, error)
	// FindLatest returns the most recently created job for the
	// (session, product) pair, or a NotFound error when none exists.
	FindLatest(ctx context.Context, sessionCode, productID string) (*model.ReportJob, error)

	// ReserveNext atomically claims the oldest pending job for a worker,
	// transitioning it to in_progress under a lease.
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.ReportJob, error)
	WaitForNotification(ctx context.Context) error

	// Start overwrites started_at on an in_progress job. Idempotent: a second
	// call simply overwrites the timestamp.
	Start(ctx context.Context, id string) (bool, error)
	// Heartbeat refreshes the lease on an in_progress job so the reaper does
	// not fail it while a worker is still processing. Returns false when the
	// job is no longer in progress.
	Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string, params CompleteJobParams) (bool, error)
	Fail(ctx context.Context, id string, params FailJobParams) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
	MarkCallbackSent(ctx context.Context, id string, sentAt time.Time) error

	Stats(ctx context.Context) (*model.JobStats, error)
}

// DeleteOldJobsParams groups parameters for the retention sweep.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the cleanup operations used by the reaper service.
type ReaperRepository interface {
	// FailExpiredLeases fails in_progress jobs whose worker lease expired
	// without a terminal transition. Returns the number of jobs failed.
	FailExpiredLeases(ctx context.Context, batchSize int) (int64, error)
	// DeleteOldJobs deletes terminal jobs older than MaxAge, up to BatchSize
	// per call. It never touches pending or in_progress jobs.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// ProductConfigRepository is the read-only product configuration store.
type ProductConfigRepository interface {
	// GetByID returns the configuration, or a NotFound error when the product
	// does not exist. Callers must additionally check the Active flag.
	GetByID(ctx context.Context, productID string) (*model.ProductConfiguration, error)
}

// SessionRepository is the read-only completed-test-result store.
type SessionRepository interface {
	GetBySessionCode(ctx context.Context, sessionCode string) (*model.TestSessionData, error)
}

// InterpretationRepository looks up interpretation/reference content for one
// test type, bound together with the raw result when rendering a test section.
type InterpretationRepository interface {
	GetByTestType(ctx context.Context, testType string) (json.RawMessage, error)
}

// WorkflowRecordParams groups the terminal-status mirror fields.
type WorkflowRecordParams struct {
	SessionCode string
	ProductID   string
	JobID       string
	Status      model.JobStatus
	StorageLink *string
	ErrorMsg    *string
}

// WorkflowMirror mirrors terminal job status into the permanent workflow store
// for audit. Mirror failures are logged by callers, never propagated.
type WorkflowMirror interface {
	RecordTerminalStatus(ctx context.Context, params WorkflowRecordParams) error
}

// SectionRenderer turns a template identifier plus a data binding into one
// rendered PDF document. It is an external collaborator, synchronous and
// stateless per call, but not safe for concurrent reentrant use within a job.
type SectionRenderer interface {
	Render(ctx context.Context, templateID string, data any) ([]byte, error)
}

// MergeEngine concatenates ordered section files into one combined artifact,
// preserving section order exactly.
type MergeEngine interface {
	Merge(ctx context.Context, sections []model.DocumentSection, outPath string) error
}

// ArtifactRef is the durable reference returned by the artifact store.
type ArtifactRef struct {
	StorageID   string
	StorageLink string
}

// ArtifactStore uploads combined artifacts to durable object storage.
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, objectName string) (*ArtifactRef, error)
}
