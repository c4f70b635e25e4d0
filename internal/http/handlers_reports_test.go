package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/data"
	"github.com/assesskit/reportgen/internal/domain/model"
	apperrors "github.com/assesskit/reportgen/internal/errors"
	"github.com/assesskit/reportgen/internal/service"
	"github.com/assesskit/reportgen/internal/testutil"
)

type stubJobRepo struct {
	findLatestFn func(ctx context.Context, sessionCode, productID string) (*model.ReportJob, error)
	createFn     func(ctx context.Context, req *model.CreateJobRequest) (*model.ReportJob, error)
	getByIDFn    func(ctx context.Context, id string) (*model.ReportJob, error)
	cancelFn     func(ctx context.Context, id string) (bool, error)
	statsFn      func(ctx context.Context) (*model.JobStats, error)
}

func (s *stubJobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.ReportJob, error) {
	return s.createFn(ctx, req)
}

func (s *stubJobRepo) GetByID(ctx context.Context, id string) (*model.ReportJob, error) {
	return s.getByIDFn(ctx, id)
}

func (s *stubJobRepo) FindLatest(ctx context.Context, sessionCode, productID string) (*model.ReportJob, error) {
	return s.findLatestFn(ctx, sessionCode, productID)
}

func (s *stubJobRepo) ReserveNext(_ context.Context, _ int) (*model.ReportJob, error) {
	return nil, model.ErrNoJobsAvailable
}

func (s *stubJobRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubJobRepo) Start(_ context.Context, _ string) (bool, error) { return false, nil }

func (s *stubJobRepo) Heartbeat(_ context.Context, _ string, _ int) (bool, error) {
	return false, nil
}

func (s *stubJobRepo) Cancel(ctx context.Context, id string) (bool, error) {
	return s.cancelFn(ctx, id)
}

func (s *stubJobRepo) Complete(_ context.Context, _ string, _ core.CompleteJobParams) (bool, error) {
	return false, nil
}

func (s *stubJobRepo) Fail(_ context.Context, _ string, _ core.FailJobParams) (bool, error) {
	return false, nil
}

func (s *stubJobRepo) MarkCallbackSent(_ context.Context, _ string, _ time.Time) error { return nil }

func (s *stubJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.statsFn(ctx)
}

type stubReaperRepo struct {
	deleteFn func(ctx context.Context, params core.DeleteOldJobsParams) (int64, error)
}

func (s *stubReaperRepo) FailExpiredLeases(_ context.Context, _ int) (int64, error) { return 0, nil }

func (s *stubReaperRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	return s.deleteFn(ctx, params)
}

func newTestRouter(t *testing.T, repo core.JobRepository, reaper core.ReaperRepository) http.Handler {
	t.Helper()
	svc, err := service.NewJobService(service.JobServiceOptions{
		Repo:         repo,
		Reaper:       reaper,
		DefaultLease: time.Minute,
	})
	require.NoError(t, err)
	return NewRouter(RouterServices{Jobs: svc})
}

func TestSubmitReport(t *testing.T) {
	t.Run("new job returns 202", func(t *testing.T) {
		repo := &stubJobRepo{
			findLatestFn: func(_ context.Context, _, _ string) (*model.ReportJob, error) {
				return nil, data.ErrJobNotFound
			},
			createFn: func(_ context.Context, _ *model.CreateJobRequest) (*model.ReportJob, error) {
				return testutil.NewJob().WithID("job-42").Build(), nil
			},
		}
		router := newTestRouter(t, repo, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/reports",
			strings.NewReader(`{"session_code": "SES-1", "product_id": "career-pack"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp SubmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "job-42", resp.JobID)
		assert.Equal(t, model.JobStatusPending, resp.Status)
	})

	t.Run("duplicate request returns 200 with existing job", func(t *testing.T) {
		repo := &stubJobRepo{
			findLatestFn: func(_ context.Context, _, _ string) (*model.ReportJob, error) {
				return testutil.NewJob().WithID("job-live").WithStatus(model.JobStatusInProgress).Build(), nil
			},
		}
		router := newTestRouter(t, repo, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/reports",
			strings.NewReader(`{"session_code": "SES-1001", "product_id": "career-pack"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp SubmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "job-live", resp.JobID)
		assert.Equal(t, model.JobStatusInProgress, resp.Status)
	})

	t.Run("invalid body returns 400", func(t *testing.T) {
		router := newTestRouter(t, &stubJobRepo{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/reports",
			strings.NewReader(`{"session_code": "SES-1", "unknown_field": true}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_json")
	})

	t.Run("trailing data returns 400", func(t *testing.T) {
		router := newTestRouter(t, &stubJobRepo{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/reports",
			strings.NewReader(`{"session_code": "SES-1", "product_id": "career-pack"} {"extra": true}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_json")
	})

	t.Run("validation failure returns 400", func(t *testing.T) {
		router := newTestRouter(t, &stubJobRepo{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/reports",
			strings.NewReader(`{"product_id": "career-pack"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "session code is required")
	})
}

func TestGetStatus(t *testing.T) {
	t.Run("known job", func(t *testing.T) {
		repo := &stubJobRepo{
			getByIDFn: func(_ context.Context, id string) (*model.ReportJob, error) {
				return testutil.NewJob().WithID(id).WithStatus(model.JobStatusCompleted).
					WithResult("r.pdf", "obj-1", "https://s/obj-1").Build(), nil
			},
		}
		router := newTestRouter(t, repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/reports/job-42/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp model.JobStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "job-42", resp.JobID)
		assert.Equal(t, model.JobStatusCompleted, resp.Status)
		require.NotNil(t, resp.StorageLink)
		assert.Equal(t, "https://s/obj-1", *resp.StorageLink)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		repo := &stubJobRepo{
			getByIDFn: func(_ context.Context, id string) (*model.ReportJob, error) {
				return nil, apperrors.NotFoundf("job %s not found", id)
			},
		}
		router := newTestRouter(t, repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/reports/nope/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_found")
	})

	t.Run("repository sentinel returns 404", func(t *testing.T) {
		repo := &stubJobRepo{
			getByIDFn: func(_ context.Context, _ string) (*model.ReportJob, error) {
				return nil, data.ErrJobNotFound
			},
		}
		router := newTestRouter(t, repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/reports/nope/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_found")
	})

	t.Run("unreachable store returns 503", func(t *testing.T) {
		repo := &stubJobRepo{
			getByIDFn: func(_ context.Context, _ string) (*model.ReportJob, error) {
				return nil, apperrors.Unavailable("job store unreachable", errors.New("dial tcp: refused"))
			},
		}
		router := newTestRouter(t, repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/reports/job-1/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "store_unavailable")
	})
}

func TestCancelJob(t *testing.T) {
	repo := &stubJobRepo{
		cancelFn: func(_ context.Context, id string) (bool, error) {
			return id == "job-pending", nil
		},
	}
	router := newTestRouter(t, repo, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/reports/job-pending/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/reports/job-done/cancel", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": false}`, rec.Body.String())
}

func TestStats(t *testing.T) {
	repo := &stubJobRepo{
		statsFn: func(_ context.Context) (*model.JobStats, error) {
			return &model.JobStats{Pending: 3, Completed: 10}, nil
		},
	}
	router := newTestRouter(t, repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/reports/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.JobStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 10, stats.Completed)
}

func TestCleanup(t *testing.T) {
	t.Run("deletes old jobs", func(t *testing.T) {
		reaper := &stubReaperRepo{
			deleteFn: func(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
				if params.Status == model.JobStatusCompleted {
					return 7, nil
				}
				return 2, nil
			},
		}
		router := newTestRouter(t, &stubJobRepo{}, reaper)

		req := httptest.NewRequest(http.MethodPost, "/api/admin/cleanup",
			strings.NewReader(`{"days_old": 30}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"deleted": 9}`, rec.Body.String())
	})

	t.Run("rejects zero retention", func(t *testing.T) {
		router := newTestRouter(t, &stubJobRepo{}, &stubReaperRepo{})

		req := httptest.NewRequest(http.MethodPost, "/api/admin/cleanup",
			strings.NewReader(`{"days_old": 0}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &stubJobRepo{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "service": "reportgen"}`, rec.Body.String())
}
