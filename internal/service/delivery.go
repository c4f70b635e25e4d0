package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/data"
	"github.com/assesskit/reportgen/internal/domain/model"
	"github.com/assesskit/reportgen/internal/domain/report"
)

// DeliveryServiceOptions groups dependencies for DeliveryService.
type DeliveryServiceOptions struct {
	Store        core.ArtifactStore // Required
	Merger       core.MergeEngine   // Required
	TimeProvider data.TimeProvider  // Optional: defaults to real time
	Logger       *slog.Logger       // Optional
}

// DeliveryService merges rendered sections into one combined artifact and
// uploads it to durable object storage.
type DeliveryService struct {
	store        core.ArtifactStore
	merger       core.MergeEngine
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewDeliveryService constructs a new DeliveryService.
func NewDeliveryService(opts DeliveryServiceOptions) (*DeliveryService, error) {
	if opts.Store == nil {
		return nil, errors.New("ArtifactStore is required")
	}
	if opts.Merger == nil {
		return nil, errors.New("MergeEngine is required")
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "delivery_service")
	}

	return &DeliveryService{
		store:        opts.Store,
		merger:       opts.Merger,
		timeProvider: timeProvider,
		logger:       logger,
	}, nil
}

// Deliver merges the job's sections and uploads the combined artifact.
//
// The per-section files are deleted once the combined file is confirmed
// written; the combined file itself lives in the same job work dir, which the
// worker removes after delivery regardless of outcome.
func (s *DeliveryService) Deliver(ctx context.Context, job *model.ReportJob, composed *ComposeResult) (*model.CombinedArtifact, *core.ArtifactRef, error) {
	filename := s.artifactFilename(job, composed)
	outPath := filepath.Join(composed.WorkDir, filename)

	if err := s.merger.Merge(ctx, composed.Sections, outPath); err != nil {
		return nil, nil, err
	}

	// The combined artifact is confirmed on disk, intermediates are no
	// longer needed.
	for _, section := range composed.Sections {
		if err := os.Remove(section.Path); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to remove section file",
				"job_id", job.ID,
				"section", section.Label(),
				"error", err,
			)
		}
	}

	ref, err := s.store.Upload(ctx, outPath, filename)
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "artifact upload failed",
				"job_id", job.ID,
				"filename", filename,
				"path", outPath,
				"error", err,
			)
		}
		return nil, nil, &report.DeliveryError{Filename: filename, Cause: err}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "artifact delivered",
			"job_id", job.ID,
			"filename", filename,
			"storage_id", ref.StorageID,
		)
	}

	return &model.CombinedArtifact{Path: outPath, Filename: filename}, ref, nil
}

func (s *DeliveryService) artifactFilename(job *model.ReportJob, composed *ComposeResult) string {
	timestamp := s.timeProvider.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s_%s_%s.pdf",
		sanitizeFilenamePart(job.ProductID),
		sanitizeFilenamePart(requesterName(job, composed.Session)),
		timestamp,
	)
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilenamePart makes a value safe for use inside an object name:
// whitespace becomes underscores and anything outside [a-zA-Z0-9._-] is
// stripped.
func sanitizeFilenamePart(part string) string {
	p := strings.TrimSpace(part)
	p = strings.Join(strings.Fields(p), "_")
	p = unsafeFilenameChars.ReplaceAllString(p, "")
	p = strings.Trim(p, "._-")
	if p == "" {
		return "report"
	}
	return p
}
