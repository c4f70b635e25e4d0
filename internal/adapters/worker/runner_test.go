package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/domain/model"
	"github.com/assesskit/reportgen/internal/domain/report"
	apperrors "github.com/assesskit/reportgen/internal/errors"
	"github.com/assesskit/reportgen/internal/notify/webhook"
	"github.com/assesskit/reportgen/internal/service"
	"github.com/assesskit/reportgen/internal/testutil"
)

// fakeJobRepo records lifecycle transitions in memory.
type fakeJobRepo struct {
	mu sync.Mutex

	job *model.ReportJob

	startCalls     int
	heartbeatCalls int
	completeCalls  []core.CompleteJobParams
	failCalls      []core.FailJobParams
	callbackSent   int
}

func (f *fakeJobRepo) heartbeats() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeatCalls
}

func (f *fakeJobRepo) Create(_ context.Context, _ *model.CreateJobRequest) (*model.ReportJob, error) {
	return nil, errors.New("not used")
}

func (f *fakeJobRepo) GetByID(_ context.Context, id string) (*model.ReportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job == nil || f.job.ID != id {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	clone := *f.job
	return &clone, nil
}

func (f *fakeJobRepo) FindLatest(_ context.Context, _, _ string) (*model.ReportJob, error) {
	return nil, apperrors.NotFound("not used")
}

func (f *fakeJobRepo) ReserveNext(_ context.Context, _ int) (*model.ReportJob, error) {
	return nil, model.ErrNoJobsAvailable
}

func (f *fakeJobRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeJobRepo) Start(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return true, nil
}

func (f *fakeJobRepo) Heartbeat(_ context.Context, id string, leaseSeconds int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if leaseSeconds < 1 {
		return false, errors.New("leaseSeconds must be positive")
	}
	f.heartbeatCalls++
	return f.job != nil && f.job.ID == id && f.job.Status == model.JobStatusInProgress, nil
}

func (f *fakeJobRepo) Complete(_ context.Context, _ string, params core.CompleteJobParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls = append(f.completeCalls, params)
	f.job.Status = model.JobStatusCompleted
	f.job.ArtifactFilename = &params.Filename
	f.job.StorageID = &params.StorageID
	f.job.StorageLink = &params.StorageLink
	return true, nil
}

func (f *fakeJobRepo) Fail(_ context.Context, _ string, params core.FailJobParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCalls = append(f.failCalls, params)
	f.job.Status = model.JobStatusFailed
	f.job.ErrorMessage = &params.Message
	f.job.ErrorDetails = params.Details
	return true, nil
}

func (f *fakeJobRepo) Cancel(_ context.Context, _ string) (bool, error) {
	return false, errors.New("not used")
}

func (f *fakeJobRepo) MarkCallbackSent(_ context.Context, _ string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbackSent++
	f.job.CallbackSent = true
	f.job.CallbackSentAt = &sentAt
	return nil
}

func (f *fakeJobRepo) Stats(_ context.Context) (*model.JobStats, error) {
	return &model.JobStats{}, nil
}

type stubProductRepo struct{ cfg *model.ProductConfiguration }

func (s *stubProductRepo) GetByID(_ context.Context, productID string) (*model.ProductConfiguration, error) {
	if s.cfg == nil {
		return nil, apperrors.NotFoundf("product %s not found", productID)
	}
	return s.cfg, nil
}

type stubSessionRepo struct{ session *model.TestSessionData }

func (s *stubSessionRepo) GetBySessionCode(_ context.Context, code string) (*model.TestSessionData, error) {
	if s.session == nil {
		return nil, apperrors.NotFoundf("session %s not found", code)
	}
	return s.session, nil
}

type stubInterpretationRepo struct{}

func (stubInterpretationRepo) GetByTestType(_ context.Context, _ string) (json.RawMessage, error) {
	return json.RawMessage(`{"summary": "generic"}`), nil
}

type stubRenderer struct {
	renderFn func(ctx context.Context, templateID string, data any) ([]byte, error)
}

func (s *stubRenderer) Render(ctx context.Context, templateID string, data any) ([]byte, error) {
	if s.renderFn == nil {
		return []byte("%PDF stub"), nil
	}
	return s.renderFn(ctx, templateID, data)
}

type stubMerger struct{}

func (stubMerger) Merge(_ context.Context, sections []model.DocumentSection, outPath string) error {
	if len(sections) == 0 {
		return errors.New("no sections")
	}
	return os.WriteFile(outPath, []byte("merged"), 0o600)
}

type stubStore struct {
	uploadErr error
}

func (s *stubStore) Upload(_ context.Context, _, objectName string) (*core.ArtifactRef, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return &core.ArtifactRef{
		StorageID:   "obj-" + objectName,
		StorageLink: "https://storage.example.com/" + objectName,
	}, nil
}

type runnerFixture struct {
	repo     *fakeJobRepo
	renderer *stubRenderer
	store    *stubStore
	workDir  string
}

func newRunnerFixture(t *testing.T, job *model.ReportJob) *runnerFixture {
	t.Helper()
	return &runnerFixture{
		repo:     &fakeJobRepo{job: job},
		renderer: &stubRenderer{},
		store:    &stubStore{},
		workDir:  t.TempDir(),
	}
}

func (fx *runnerFixture) buildRunner(t *testing.T, notifier *webhook.Notifier, jobTimeout time.Duration) *Runner {
	t.Helper()

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         fx.repo,
		DefaultLease: time.Minute,
	})
	require.NoError(t, err)

	cfg := testutil.NewProductConfig().
		WithRequirement("personality", 1, true).
		Build()
	session := testutil.NewSession().
		WithRequesterName("Jane Doe").
		WithResult("personality", `{"score": 42}`).
		Build()

	composer, err := service.NewComposerService(service.ComposerServiceOptions{
		Products:        &stubProductRepo{cfg: cfg},
		Sessions:        &stubSessionRepo{session: session},
		Interpretations: stubInterpretationRepo{},
		Renderer:        fx.renderer,
		WorkDir:         fx.workDir,
	})
	require.NoError(t, err)

	delivery, err := service.NewDeliveryService(service.DeliveryServiceOptions{
		Store:  fx.store,
		Merger: stubMerger{},
	})
	require.NoError(t, err)

	runner, err := NewRunner(RunnerOptions{
		Jobs:       jobs,
		Composer:   composer,
		Delivery:   delivery,
		Notifier:   notifier,
		JobTimeout: jobTimeout,
	})
	require.NoError(t, err)
	return runner
}

func TestRunner_ProcessJob_CompletesAndNotifiesOnce(t *testing.T) {
	var webhookCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		webhookCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	job := testutil.NewJob().
		WithStatus(model.JobStatusInProgress).
		WithCallbackURL(server.URL).
		Build()
	fx := newRunnerFixture(t, job)
	runner := fx.buildRunner(t, webhook.NewNotifier(webhook.NotifierOptions{}), time.Minute)

	runner.processJob(context.Background(), job)

	require.Len(t, fx.repo.completeCalls, 1)
	assert.Empty(t, fx.repo.failCalls)
	params := fx.repo.completeCalls[0]
	assert.Contains(t, params.Filename, "career-pack_Jane_Doe_")
	assert.Contains(t, params.StorageLink, "https://storage.example.com/")

	assert.Equal(t, 1, webhookCalls)
	assert.Equal(t, 1, fx.repo.callbackSent)

	// The job work dir base holds nothing once delivery finished.
	entries, err := os.ReadDir(fx.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunner_ProcessJob_FailureRecordsDetails(t *testing.T) {
	job := testutil.NewJob().WithStatus(model.JobStatusInProgress).Build()
	fx := newRunnerFixture(t, job)
	fx.renderer.renderFn = func(_ context.Context, _ string, _ any) ([]byte, error) {
		return nil, errors.New("renderer exploded")
	}
	runner := fx.buildRunner(t, nil, time.Minute)

	runner.processJob(context.Background(), job)

	assert.Empty(t, fx.repo.completeCalls)
	require.Len(t, fx.repo.failCalls, 1)

	// Default omit policy drops broken sections, so the failure surfaces as
	// the no-sections error.
	assert.Contains(t, fx.repo.failCalls[0].Message, "no sections generated")

	var details map[string]any
	require.NoError(t, json.Unmarshal(fx.repo.failCalls[0].Details, &details))
	assert.NotEmpty(t, details["kind"])
}

func TestRunner_ProcessJob_HeartbeatRefreshesLeaseDuringExecution(t *testing.T) {
	// A job that outlives its lease must keep the lease fresh, otherwise a
	// concurrent reaper would fail it mid-flight and the later completion
	// would be lost.
	job := testutil.NewJob().WithStatus(model.JobStatusInProgress).Build()
	fx := newRunnerFixture(t, job)
	fx.renderer.renderFn = func(ctx context.Context, _ string, _ any) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(120 * time.Millisecond):
		}
		return []byte("%PDF stub"), nil
	}
	runner := fx.buildRunner(t, nil, time.Minute)
	runner.lease = 40 * time.Millisecond

	runner.processJob(context.Background(), job)

	require.Len(t, fx.repo.completeCalls, 1)
	assert.Positive(t, fx.repo.heartbeats(), "lease must be refreshed while the job executes")
}

func TestRunner_ProcessJob_TimeoutBecomesTimeoutError(t *testing.T) {
	job := testutil.NewJob().WithID("job-slow").WithStatus(model.JobStatusInProgress).Build()
	fx := newRunnerFixture(t, job)
	fx.renderer.renderFn = func(ctx context.Context, _ string, _ any) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	runner := fx.buildRunner(t, nil, 50*time.Millisecond)

	runner.processJob(context.Background(), job)

	require.Len(t, fx.repo.failCalls, 1)
	assert.Equal(t, (&report.TimeoutError{JobID: "job-slow"}).Error(), fx.repo.failCalls[0].Message)
}

func TestRunner_ProcessJob_UploadFailureFailsJob(t *testing.T) {
	job := testutil.NewJob().WithStatus(model.JobStatusInProgress).Build()
	fx := newRunnerFixture(t, job)
	fx.store.uploadErr = errors.New("bucket unavailable")
	runner := fx.buildRunner(t, nil, time.Minute)

	runner.processJob(context.Background(), job)

	require.Len(t, fx.repo.failCalls, 1)
	assert.Contains(t, fx.repo.failCalls[0].Message, "bucket unavailable")

	var details map[string]any
	require.NoError(t, json.Unmarshal(fx.repo.failCalls[0].Details, &details))
	assert.Contains(t, details["filename"], "career-pack_")

	// Failure or not, the job work dir is removed.
	entries, err := os.ReadDir(fx.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunner_Notify_SkipsAlreadySentCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("webhook must not fire twice")
	}))
	defer server.Close()

	job := testutil.NewJob().
		WithStatus(model.JobStatusCompleted).
		WithCallbackURL(server.URL).
		WithCallbackSent().
		Build()
	fx := newRunnerFixture(t, job)
	runner := fx.buildRunner(t, webhook.NewNotifier(webhook.NotifierOptions{}), time.Minute)

	runner.notify(context.Background(), job.ID, runner.logger)
	assert.Zero(t, fx.repo.callbackSent)
}

func TestRunner_Run_StopsOnCancel(t *testing.T) {
	job := testutil.NewJob().WithStatus(model.JobStatusPending).Build()
	fx := newRunnerFixture(t, job)
	runner := fx.buildRunner(t, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestErrorDetails(t *testing.T) {
	t.Run("missing required tests", func(t *testing.T) {
		raw := errorDetails(&report.MissingRequiredTestsError{MissingTypes: []string{"personality", "cognitive"}})
		var details map[string]any
		require.NoError(t, json.Unmarshal(raw, &details))
		assert.Equal(t, []any{"personality", "cognitive"}, details["missing_types"])
		assert.NotEmpty(t, details["kind"])
	})

	t.Run("section generation", func(t *testing.T) {
		raw := errorDetails(&report.SectionGenerationError{Section: "test:cognitive", Cause: errors.New("boom")})
		var details map[string]any
		require.NoError(t, json.Unmarshal(raw, &details))
		assert.Equal(t, "test:cognitive", details["section"])
	})

	t.Run("delivery", func(t *testing.T) {
		raw := errorDetails(&report.DeliveryError{Filename: "a.pdf", Cause: errors.New("boom")})
		var details map[string]any
		require.NoError(t, json.Unmarshal(raw, &details))
		assert.Equal(t, "a.pdf", details["filename"])
	})

	t.Run("plain error", func(t *testing.T) {
		raw := errorDetails(errors.New("boom"))
		var details map[string]any
		require.NoError(t, json.Unmarshal(raw, &details))
		assert.NotEmpty(t, details["kind"])
	})
}
