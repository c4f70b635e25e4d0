// Package pdf implements the merge engine on top of pdfcpu.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpumodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/assesskit/reportgen/internal/core"
	"github.com/assesskit/reportgen/internal/domain/model"
	"github.com/assesskit/reportgen/internal/domain/report"
)

// MergerOptions groups configuration for the Merger.
type MergerOptions struct {
	Logger *slog.Logger // Optional
}

// Merger concatenates rendered section PDFs into one combined document,
// preserving the input order exactly.
type Merger struct {
	conf   *pdfcpumodel.Configuration
	logger *slog.Logger
}

var _ core.MergeEngine = (*Merger)(nil)

// NewMerger constructs a Merger with relaxed validation, since upstream
// renderers occasionally emit technically sloppy but readable PDFs.
func NewMerger(opts MergerOptions) *Merger {
	conf := pdfcpumodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfcpumodel.ValidationRelaxed

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "pdf_merger")
	}

	return &Merger{conf: conf, logger: logger}
}

// Merge writes the concatenation of the given sections to outPath.
//
// Every input file is checked for existence before any output is produced;
// a missing input yields a MergeInputMissingError and no partial write.
func (m *Merger) Merge(ctx context.Context, sections []model.DocumentSection, outPath string) error {
	if len(sections) == 0 {
		return errors.New("no sections to merge")
	}

	inFiles := make([]string, 0, len(sections))
	for _, section := range sections {
		if _, err := os.Stat(section.Path); err != nil {
			return &report.MergeInputMissingError{Section: section.Label(), Path: section.Path}
		}
		inFiles = append(inFiles, section.Path)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := api.MergeCreateFile(inFiles, outPath, false, m.conf); err != nil {
		// Remove whatever pdfcpu may have produced before erroring.
		_ = os.Remove(outPath)
		return fmt.Errorf("merge %d sections: %w", len(sections), err)
	}

	if m.logger != nil {
		m.logger.DebugContext(ctx, "sections merged", "count", len(sections), "out", outPath)
	}

	return nil
}
