// Package testutil provides testing utilities and helpers for the reportgen job system.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/assesskit/reportgen/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			SessionCode: "SES-1001",
			ProductID:   "career-pack",
		},
	}
}

// WithSessionCode sets the session code.
func (b *JobRequestBuilder) WithSessionCode(code string) *JobRequestBuilder {
	b.req.SessionCode = code
	return b
}

// WithProductID sets the product id.
func (b *JobRequestBuilder) WithProductID(productID string) *JobRequestBuilder {
	b.req.ProductID = productID
	return b
}

// WithRequesterName sets the requester display name.
func (b *JobRequestBuilder) WithRequesterName(name string) *JobRequestBuilder {
	b.req.RequesterName = &name
	return b
}

// WithRequesterEmail sets the requester email.
func (b *JobRequestBuilder) WithRequesterEmail(email string) *JobRequestBuilder {
	b.req.RequesterEmail = &email
	return b
}

// WithCallbackURL sets the callback URL.
func (b *JobRequestBuilder) WithCallbackURL(url string) *JobRequestBuilder {
	b.req.CallbackURL = &url
	return b
}

// Build returns the built CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// JobBuilder provides a fluent interface for building ReportJob objects for testing.
type JobBuilder struct {
	job *model.ReportJob
}

// NewJob creates a new JobBuilder with sensible defaults.
func NewJob() *JobBuilder {
	now := time.Now().UTC()
	return &JobBuilder{
		job: &model.ReportJob{
			ID:          "job-1",
			SessionCode: "SES-1001",
			ProductID:   "career-pack",
			Status:      model.JobStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// WithID sets the job id.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// WithSessionCode sets the session code.
func (b *JobBuilder) WithSessionCode(code string) *JobBuilder {
	b.job.SessionCode = code
	return b
}

// WithProductID sets the product id.
func (b *JobBuilder) WithProductID(productID string) *JobBuilder {
	b.job.ProductID = productID
	return b
}

// WithStatus sets the job status.
func (b *JobBuilder) WithStatus(status model.JobStatus) *JobBuilder {
	b.job.Status = status
	return b
}

// WithRequesterName sets the requester display name.
func (b *JobBuilder) WithRequesterName(name string) *JobBuilder {
	b.job.RequesterName = &name
	return b
}

// WithCallbackURL sets the callback URL.
func (b *JobBuilder) WithCallbackURL(url string) *JobBuilder {
	b.job.CallbackURL = &url
	return b
}

// WithCallbackSent marks the callback as already delivered.
func (b *JobBuilder) WithCallbackSent() *JobBuilder {
	b.job.CallbackSent = true
	sentAt := time.Now().UTC()
	b.job.CallbackSentAt = &sentAt
	return b
}

// WithResult fills the completion fields.
func (b *JobBuilder) WithResult(filename, storageID, storageLink string) *JobBuilder {
	b.job.ArtifactFilename = &filename
	b.job.StorageID = &storageID
	b.job.StorageLink = &storageLink
	return b
}

// WithError fills the failure fields.
func (b *JobBuilder) WithError(message string, details json.RawMessage) *JobBuilder {
	b.job.ErrorMessage = &message
	b.job.ErrorDetails = details
	return b
}

// WithStartedAt sets the processing start timestamp.
func (b *JobBuilder) WithStartedAt(t time.Time) *JobBuilder {
	b.job.StartedAt = &t
	return b
}

// WithCompletedAt sets the terminal timestamp.
func (b *JobBuilder) WithCompletedAt(t time.Time) *JobBuilder {
	b.job.CompletedAt = &t
	return b
}

// Build returns the built ReportJob.
func (b *JobBuilder) Build() *model.ReportJob {
	return b.job
}

// ProductConfigBuilder provides a fluent interface for building ProductConfiguration objects.
type ProductConfigBuilder struct {
	cfg *model.ProductConfiguration
}

// NewProductConfig creates a new ProductConfigBuilder with sensible defaults.
func NewProductConfig() *ProductConfigBuilder {
	return &ProductConfigBuilder{
		cfg: &model.ProductConfiguration{
			ProductID:   "career-pack",
			DisplayName: "Career Pack",
			Active:      true,
		},
	}
}

// WithProductID sets the product id.
func (b *ProductConfigBuilder) WithProductID(productID string) *ProductConfigBuilder {
	b.cfg.ProductID = productID
	return b
}

// WithDisplayName sets the display name.
func (b *ProductConfigBuilder) WithDisplayName(name string) *ProductConfigBuilder {
	b.cfg.DisplayName = name
	return b
}

// Inactive marks the configuration as inactive.
func (b *ProductConfigBuilder) Inactive() *ProductConfigBuilder {
	b.cfg.Active = false
	return b
}

// WithRequirement appends one test requirement.
func (b *ProductConfigBuilder) WithRequirement(testType string, order int, required bool) *ProductConfigBuilder {
	b.cfg.Requirements = append(b.cfg.Requirements, model.TestRequirement{
		TestType: testType,
		Order:    order,
		Required: required,
	})
	return b
}

// WithIntroduction sets the static introduction content.
func (b *ProductConfigBuilder) WithIntroduction(content string) *ProductConfigBuilder {
	b.cfg.Introduction = &content
	return b
}

// WithClosing sets the static closing content.
func (b *ProductConfigBuilder) WithClosing(content string) *ProductConfigBuilder {
	b.cfg.Closing = &content
	return b
}

// Build returns the built ProductConfiguration.
func (b *ProductConfigBuilder) Build() *model.ProductConfiguration {
	return b.cfg
}

// SessionBuilder provides a fluent interface for building TestSessionData objects.
type SessionBuilder struct {
	session *model.TestSessionData
}

// NewSession creates a new SessionBuilder with sensible defaults.
func NewSession() *SessionBuilder {
	return &SessionBuilder{
		session: &model.TestSessionData{
			SessionCode: "SES-1001",
			Results:     map[string]json.RawMessage{},
		},
	}
}

// WithSessionCode sets the session code.
func (b *SessionBuilder) WithSessionCode(code string) *SessionBuilder {
	b.session.SessionCode = code
	return b
}

// WithRequesterName sets the requester name recorded on the session.
func (b *SessionBuilder) WithRequesterName(name string) *SessionBuilder {
	b.session.RequesterName = &name
	return b
}

// WithResult adds a completed test result.
func (b *SessionBuilder) WithResult(testType, payload string) *SessionBuilder {
	b.session.Results[testType] = json.RawMessage(payload)
	return b
}

// Build returns the built TestSessionData.
func (b *SessionBuilder) Build() *model.TestSessionData {
	return b.session
}
