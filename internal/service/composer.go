package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/data"
	"github.com/assesskit/reportgen/internal/domain/model"
	"github.com/assesskit/reportgen/internal/domain/report"
	apperrors "github.com/assesskit/reportgen/internal/errors"
	"github.com/assesskit/reportgen/internal/observability/metrics"
	"github.com/assesskit/reportgen/internal/observability/statsd"
)

// SectionErrorPolicy controls how the composer reacts when a single section
// fails to render.
type SectionErrorPolicy string

const (
	// SectionErrorAbort fails the whole job on the first section render error.
	SectionErrorAbort SectionErrorPolicy = "abort"
	// SectionErrorOmit logs the failure and continues without the section.
	SectionErrorOmit SectionErrorPolicy = "omit"
)

// Valid reports whether the policy is a known value.
func (p SectionErrorPolicy) Valid() bool {
	return p == SectionErrorAbort || p == SectionErrorOmit
}

// Template identifiers passed to the section renderer.
const (
	TemplateCover         = "report_cover"
	TemplateStaticSection = "report_static_section"
	TemplateTestSection   = "report_test_section"
)

// CoverBinding is the data bound into the cover template.
type CoverBinding struct {
	RequesterName string `json:"requester_name"`
	ProductName   string `json:"product_name"`
	GeneratedDate string `json:"generated_date"`
}

// StaticBinding is the data bound into introduction/closing templates.
type StaticBinding struct {
	Content string `json:"content"`
}

// TestBinding is the data bound into a per-test section template.
type TestBinding struct {
	TestType       string          `json:"test_type"`
	Result         json.RawMessage `json:"result"`
	Interpretation json.RawMessage `json:"interpretation,omitempty"`
}

// ComposerServiceOptions groups dependencies for ComposerService.
type ComposerServiceOptions struct {
	Products        core.ProductConfigRepository  // Required
	Sessions        core.SessionRepository        // Required
	Interpretations core.InterpretationRepository // Required
	Renderer        core.SectionRenderer          // Required
	WorkDir         string                        // Optional: base dir for job temp dirs, defaults to os.TempDir()
	OnSectionError  SectionErrorPolicy            // Optional: defaults to omit
	TimeProvider    data.TimeProvider             // Optional: defaults to real time
	Metrics         statsd.Sink                   // Optional
	Logger          *slog.Logger                  // Optional
}

// ComposerService validates a job against its product configuration and
// renders the ordered document sections into a job-scoped temp directory.
//
// Sections render sequentially: the renderer is a shared collaborator that is
// not safe for concurrent reentrant use within one job.
type ComposerService struct {
	products        core.ProductConfigRepository
	sessions        core.SessionRepository
	interpretations core.InterpretationRepository
	renderer        core.SectionRenderer
	workDir         string
	onSectionError  SectionErrorPolicy
	timeProvider    data.TimeProvider
	metrics         statsd.Sink
	logger          *slog.Logger
}

// NewComposerService constructs a new ComposerService.
func NewComposerService(opts ComposerServiceOptions) (*ComposerService, error) {
	if opts.Products == nil {
		return nil, errors.New("ProductConfigRepository is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionRepository is required")
	}
	if opts.Interpretations == nil {
		return nil, errors.New("InterpretationRepository is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("SectionRenderer is required")
	}

	policy := opts.OnSectionError
	if policy == "" {
		policy = SectionErrorOmit
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown section error policy %q", opts.OnSectionError)
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "composer_service")
	}

	return &ComposerService{
		products:        opts.Products,
		sessions:        opts.Sessions,
		interpretations: opts.Interpretations,
		renderer:        opts.Renderer,
		workDir:         workDir,
		onSectionError:  policy,
		timeProvider:    timeProvider,
		metrics:         opts.Metrics,
		logger:          logger,
	}, nil
}

// ComposeResult carries the rendered sections plus the job-scoped directory
// that holds them. The caller owns the directory and must remove it once the
// sections are no longer needed.
type ComposeResult struct {
	Sections []model.DocumentSection
	WorkDir  string
	Config   *model.ProductConfiguration
	Session  *model.TestSessionData
}

// Compose validates the job and renders every planned section to disk.
//
// Validation collects the full set of missing required test types before
// failing, so the requester learns everything wrong with the session at once.
func (s *ComposerService) Compose(ctx context.Context, job *model.ReportJob) (*ComposeResult, error) {
	cfg, err := s.loadProduct(ctx, job.ProductID)
	if err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, job.SessionCode)
	if err != nil {
		return nil, err
	}

	if missing := report.MissingRequiredTests(cfg, session); len(missing) > 0 {
		return nil, &report.MissingRequiredTestsError{MissingTypes: missing}
	}

	plan := report.PlanSections(cfg, session)

	dir, err := os.MkdirTemp(s.workDir, "report-"+job.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create job work dir: %w", err)
	}

	sections, err := s.renderPlan(ctx, job, cfg, session, plan, dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if len(sections) == 0 {
		_ = os.RemoveAll(dir)
		return nil, &report.NoSectionsGeneratedError{SessionCode: job.SessionCode, ProductID: job.ProductID}
	}

	return &ComposeResult{Sections: sections, WorkDir: dir, Config: cfg, Session: session}, nil
}

func (s *ComposerService) loadProduct(ctx context.Context, productID string) (*model.ProductConfiguration, error) {
	cfg, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, &report.ProductNotFoundError{ProductID: productID}
		}
		return nil, fmt.Errorf("load product configuration %s: %w", productID, err)
	}
	if !cfg.Active {
		return nil, &report.ProductNotFoundError{ProductID: productID}
	}
	return cfg, nil
}

func (s *ComposerService) loadSession(ctx context.Context, sessionCode string) (*model.TestSessionData, error) {
	session, err := s.sessions.GetBySessionCode(ctx, sessionCode)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, &report.TestDataNotFoundError{SessionCode: sessionCode}
		}
		return nil, fmt.Errorf("load session %s: %w", sessionCode, err)
	}
	return session, nil
}

func (s *ComposerService) renderPlan(
	ctx context.Context,
	job *model.ReportJob,
	cfg *model.ProductConfiguration,
	session *model.TestSessionData,
	plan []report.PlannedSection,
	dir string,
) ([]model.DocumentSection, error) {
	sections := make([]model.DocumentSection, 0, len(plan))

	for i, planned := range plan {
		section := model.DocumentSection{Kind: planned.Kind, TestType: planned.TestType}

		started := s.timeProvider.Now()
		rendered, err := s.renderSection(ctx, job, cfg, session, planned)
		duration := s.timeProvider.Now().Sub(started)

		if err != nil {
			s.emitSection(job.ProductID, section.Label(), metrics.ResultError, duration)

			if s.onSectionError == SectionErrorAbort {
				return nil, &report.SectionGenerationError{Section: section.Label(), Cause: err}
			}

			if s.logger != nil {
				s.logger.WarnContext(ctx, "section render failed, omitting section",
					"job_id", job.ID,
					"section", section.Label(),
					"error", err,
				)
			}
			continue
		}

		section.Path = filepath.Join(dir, sectionFilename(i, section))
		if err := os.WriteFile(section.Path, rendered, 0o600); err != nil {
			return nil, fmt.Errorf("write section %s: %w", section.Label(), err)
		}

		s.emitSection(job.ProductID, section.Label(), metrics.ResultSuccess, duration)
		sections = append(sections, section)
	}

	return sections, nil
}

func (s *ComposerService) renderSection(
	ctx context.Context,
	job *model.ReportJob,
	cfg *model.ProductConfiguration,
	session *model.TestSessionData,
	planned report.PlannedSection,
) ([]byte, error) {
	switch planned.Kind {
	case model.SectionKindCover:
		return s.renderer.Render(ctx, TemplateCover, CoverBinding{
			RequesterName: requesterName(job, session),
			ProductName:   cfg.DisplayName,
			GeneratedDate: s.timeProvider.Now().Format("2006-01-02"),
		})
	case model.SectionKindIntroduction:
		return s.renderer.Render(ctx, TemplateStaticSection, StaticBinding{Content: *cfg.Introduction})
	case model.SectionKindClosing:
		return s.renderer.Render(ctx, TemplateStaticSection, StaticBinding{Content: *cfg.Closing})
	case model.SectionKindTest:
		binding := TestBinding{
			TestType: planned.TestType,
			Result:   session.Result(planned.TestType),
		}
		interpretation, err := s.interpretations.GetByTestType(ctx, planned.TestType)
		switch {
		case err == nil:
			binding.Interpretation = interpretation
		case apperrors.IsNotFound(err):
			return nil, fmt.Errorf("no interpretation data for test type %q", planned.TestType)
		default:
			return nil, fmt.Errorf("load interpretation for %q: %w", planned.TestType, err)
		}
		return s.renderer.Render(ctx, TemplateTestSection, binding)
	default:
		return nil, fmt.Errorf("unknown section kind %q", planned.Kind)
	}
}

func (s *ComposerService) emitSection(productID, section, result string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	metrics.EmitSectionRender(s.metrics, metrics.SectionMetric{
		ProductID: productID,
		Section:   section,
		Result:    result,
		Duration:  duration,
	})
}

// requesterName resolves the display name used on the cover and in the
// artifact filename: the explicit requester on the job wins, then the
// session's recorded name, then a neutral placeholder.
func requesterName(job *model.ReportJob, session *model.TestSessionData) string {
	if job.RequesterName != nil && strings.TrimSpace(*job.RequesterName) != "" {
		return strings.TrimSpace(*job.RequesterName)
	}
	if session != nil && session.RequesterName != nil && strings.TrimSpace(*session.RequesterName) != "" {
		return strings.TrimSpace(*session.RequesterName)
	}
	return "report"
}

func sectionFilename(index int, section model.DocumentSection) string {
	name := string(section.Kind)
	if section.Kind == model.SectionKindTest {
		name = name + "_" + sanitizeFilenamePart(section.TestType)
	}
	return fmt.Sprintf("%03d_%s.pdf", index, name)
}
