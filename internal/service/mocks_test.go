package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/domain/model"
)

// Hand-rolled function-field mocks. Only the calls a test expects need a
// function assigned; anything else panics loudly.

type mockJobRepo struct {
	createFn           func(ctx context.Context, req *model.CreateJobRequest) (*model.ReportJob, error)
	getByIDFn          func(ctx context.Context, id string) (*model.ReportJob, error)
	findLatestFn       func(ctx context.Context, sessionCode, productID string) (*model.ReportJob, error)
	reserveNextFn      func(ctx context.Context, leaseSeconds int) (*model.ReportJob, error)
	startFn            func(ctx context.Context, id string) (bool, error)
	heartbeatFn        func(ctx context.Context, id string, leaseSeconds int) (bool, error)
	completeFn         func(ctx context.Context, id string, params core.CompleteJobParams) (bool, error)
	failFn             func(ctx context.Context, id string, params core.FailJobParams) (bool, error)
	cancelFn           func(ctx context.Context, id string) (bool, error)
	markCallbackSentFn func(ctx context.Context, id string, sentAt time.Time) error
	statsFn            func(ctx context.Context) (*model.JobStats, error)
}

func (m *mockJobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.ReportJob, error) {
	return m.createFn(ctx, req)
}

func (m *mockJobRepo) GetByID(ctx context.Context, id string) (*model.ReportJob, error) {
	return m.getByIDFn(ctx, id)
}

func (m *mockJobRepo) FindLatest(ctx context.Context, sessionCode, productID string) (*model.ReportJob, error) {
	return m.findLatestFn(ctx, sessionCode, productID)
}

func (m *mockJobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.ReportJob, error) {
	return m.reserveNextFn(ctx, leaseSeconds)
}

func (m *mockJobRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockJobRepo) Start(ctx context.Context, id string) (bool, error) {
	return m.startFn(ctx, id)
}

func (m *mockJobRepo) Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error) {
	return m.heartbeatFn(ctx, id, leaseSeconds)
}

func (m *mockJobRepo) Complete(ctx context.Context, id string, params core.CompleteJobParams) (bool, error) {
	return m.completeFn(ctx, id, params)
}

func (m *mockJobRepo) Fail(ctx context.Context, id string, params core.FailJobParams) (bool, error) {
	return m.failFn(ctx, id, params)
}

func (m *mockJobRepo) Cancel(ctx context.Context, id string) (bool, error) {
	return m.cancelFn(ctx, id)
}

func (m *mockJobRepo) MarkCallbackSent(ctx context.Context, id string, sentAt time.Time) error {
	return m.markCallbackSentFn(ctx, id, sentAt)
}

func (m *mockJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	return m.statsFn(ctx)
}

type mockReaperRepo struct {
	failExpiredLeasesFn func(ctx context.Context, batchSize int) (int64, error)
	deleteOldJobsFn     func(ctx context.Context, params core.DeleteOldJobsParams) (int64, error)
}

func (m *mockReaperRepo) FailExpiredLeases(ctx context.Context, batchSize int) (int64, error) {
	return m.failExpiredLeasesFn(ctx, batchSize)
}

func (m *mockReaperRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	return m.deleteOldJobsFn(ctx, params)
}

type mockWorkflowMirror struct {
	recorded []core.WorkflowRecordParams
	err      error
}

func (m *mockWorkflowMirror) RecordTerminalStatus(_ context.Context, params core.WorkflowRecordParams) error {
	m.recorded = append(m.recorded, params)
	return m.err
}

type mockProductRepo struct {
	getByIDFn func(ctx context.Context, productID string) (*model.ProductConfiguration, error)
}

func (m *mockProductRepo) GetByID(ctx context.Context, productID string) (*model.ProductConfiguration, error) {
	return m.getByIDFn(ctx, productID)
}

type mockSessionRepo struct {
	getFn func(ctx context.Context, sessionCode string) (*model.TestSessionData, error)
}

func (m *mockSessionRepo) GetBySessionCode(ctx context.Context, sessionCode string) (*model.TestSessionData, error) {
	return m.getFn(ctx, sessionCode)
}

type mockInterpretationRepo struct {
	getFn func(ctx context.Context, testType string) (json.RawMessage, error)
}

func (m *mockInterpretationRepo) GetByTestType(ctx context.Context, testType string) (json.RawMessage, error) {
	if m.getFn == nil {
		return json.RawMessage(`{"summary": "generic"}`), nil
	}
	return m.getFn(ctx, testType)
}

type renderCall struct {
	TemplateID string
	Data       any
}

type mockRenderer struct {
	calls    []renderCall
	renderFn func(ctx context.Context, templateID string, data any) ([]byte, error)
}

func (m *mockRenderer) Render(ctx context.Context, templateID string, data any) ([]byte, error) {
	m.calls = append(m.calls, renderCall{TemplateID: templateID, Data: data})
	if m.renderFn == nil {
		return []byte("%PDF-1.7 stub"), nil
	}
	return m.renderFn(ctx, templateID, data)
}

type mockMerger struct {
	mergeFn func(ctx context.Context, sections []model.DocumentSection, outPath string) error
}

func (m *mockMerger) Merge(ctx context.Context, sections []model.DocumentSection, outPath string) error {
	if m.mergeFn == nil {
		return errors.New("mergeFn not configured")
	}
	return m.mergeFn(ctx, sections, outPath)
}

type mockArtifactStore struct {
	uploadFn func(ctx context.Context, localPath, objectName string) (*core.ArtifactRef, error)
}

func (m *mockArtifactStore) Upload(ctx context.Context, localPath, objectName string) (*core.ArtifactRef, error) {
	return m.uploadFn(ctx, localPath, objectName)
}
