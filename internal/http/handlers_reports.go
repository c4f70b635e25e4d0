// Package httpx provides HTTP handlers and utilities for the reportgen job API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/assesskit/reportgen/internal/domain/model"
	apperrors "github.com/assesskit/reportgen/internal/errors"
	"github.com/assesskit/reportgen/internal/service"
)

// ReportHandlers provides HTTP handlers for report job operations.
type ReportHandlers struct {
	Svc *service.JobService
}

// SubmitResponse is the body returned by SubmitReport.
type SubmitResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// SubmitReport handles HTTP requests to submit a report generation job.
// A duplicate request for a session/product pair with an active job returns
// the existing job with 200 instead of creating a new one.
func (h *ReportHandlers) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, reused, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		writeServiceError(w, "submit_failed", err)
		return
	}

	code := http.StatusAccepted
	if reused {
		code = http.StatusOK
	}
	WriteJSON(w, code, SubmitResponse{JobID: job.ID, Status: job.Status})
}

// GetStatus handles HTTP requests to query a job's status.
func (h *ReportHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	status, err := h.Svc.Status(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, "status_failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// CancelJob handles HTTP requests to cancel a pending job.
func (h *ReportHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	cancelled, err := h.Svc.Cancel(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, "cancel_failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ok": cancelled})
}

// Stats handles HTTP requests to retrieve per-status job counts.
func (h *ReportHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, "stats_failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// CleanupRequest is the body accepted by Cleanup.
type CleanupRequest struct {
	DaysOld int `json:"days_old"`
}

// Cleanup handles HTTP requests to delete old terminal jobs.
func (h *ReportHandlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	deleted, err := h.Svc.Cleanup(r.Context(), req.DaysOld)
	if err != nil {
		writeServiceError(w, "cleanup_failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// writeServiceError maps service errors onto HTTP status codes. An
// unreachable job store is reported as 503 so callers never mistake an
// indeterminate status for a missing job.
func writeServiceError(w http.ResponseWriter, errCode string, err error) {
	code := http.StatusBadRequest
	switch {
	case apperrors.IsNotFound(err):
		code = http.StatusNotFound
		errCode = "not_found"
	case apperrors.IsUnavailable(err):
		code = http.StatusServiceUnavailable
		errCode = "store_unavailable"
	case apperrors.IsConflict(err):
		code = http.StatusConflict
	case apperrors.IsValidation(err):
		code = http.StatusBadRequest
	}
	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err})
}
