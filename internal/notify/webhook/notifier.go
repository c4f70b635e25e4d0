// Package webhook delivers job completion callbacks to the requester's
// callback URL. Delivery is fire-and-forget: one POST, no retries.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/assesskit/reportgen/internal/data"
	"github.com/assesskit/reportgen/internal/domain/model"
)

// ResultPayload carries the artifact reference for completed jobs.
type ResultPayload struct {
	ArtifactFilename string `json:"artifact_filename"`
	StorageID        string `json:"storage_id"`
	StorageLink      string `json:"storage_link"`
}

// ErrorPayload carries failure information for failed jobs.
type ErrorPayload struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Payload is the JSON body POSTed to the callback URL.
type Payload struct {
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Result    *ResultPayload  `json:"result,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
}

// NotifierOptions groups configuration for the Notifier.
type NotifierOptions struct {
	Timeout      time.Duration     // Optional: per-call timeout, defaults to 10s
	HTTPClient   *http.Client      // Optional: override transport, mainly for tests
	TimeProvider data.TimeProvider // Optional: defaults to real time
	Logger       *slog.Logger      // Optional
}

// Notifier POSTs terminal job statuses to the job's callback URL.
type Notifier struct {
	httpClient   *http.Client
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewNotifier constructs a webhook Notifier.
func NewNotifier(opts NotifierOptions) *Notifier {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "webhook_notifier")
	}

	return &Notifier{
		httpClient:   httpClient,
		timeProvider: timeProvider,
		logger:       logger,
	}
}

// Notify delivers the terminal status of a job to its callback URL with a
// single POST. It reports whether a callback was actually sent; jobs without
// a callback URL are skipped with (false, nil).
func (n *Notifier) Notify(ctx context.Context, job *model.ReportJob) (bool, error) {
	if job.CallbackURL == nil || strings.TrimSpace(*job.CallbackURL) == "" {
		return false, nil
	}

	payload := n.buildPayload(job)

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *job.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("post webhook for job %s: %w", job.ID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("webhook for job %s returned status %d", job.ID, resp.StatusCode)
	}

	if n.logger != nil {
		n.logger.InfoContext(ctx, "webhook delivered",
			"job_id", job.ID,
			"status", job.Status,
		)
	}

	return true, nil
}

func (n *Notifier) buildPayload(job *model.ReportJob) Payload {
	payload := Payload{
		JobID:     job.ID,
		Status:    job.Status,
		Timestamp: n.timeProvider.Now().UTC(),
	}

	switch job.Status {
	case model.JobStatusCompleted:
		result := &ResultPayload{}
		if job.ArtifactFilename != nil {
			result.ArtifactFilename = *job.ArtifactFilename
		}
		if job.StorageID != nil {
			result.StorageID = *job.StorageID
		}
		if job.StorageLink != nil {
			result.StorageLink = *job.StorageLink
		}
		payload.Result = result
	case model.JobStatusFailed:
		failure := &ErrorPayload{Details: job.ErrorDetails}
		if job.ErrorMessage != nil {
			failure.Message = *job.ErrorMessage
		}
		payload.Error = failure
	}

	return payload
}
