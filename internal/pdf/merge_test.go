package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assesskit/reportgen/internal/domain/model"
	"github.com/assesskit/reportgen/internal/domain/report"
)

// writeSinglePagePDF writes a minimal one-page PDF whose media box width
// identifies it, so merged output order can be asserted page by page.
func writeSinglePagePDF(t *testing.T, path string, width int) {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << >> /MediaBox [0 0 %d 792] >>", width),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefPos)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func pageWidths(t *testing.T, path string) []float64 {
	t.Helper()
	dims, err := api.PageDimsFile(path)
	require.NoError(t, err)
	widths := make([]float64, len(dims))
	for i, d := range dims {
		widths[i] = d.Width
	}
	return widths
}

func TestMerger_Merge_PreservesSectionOrder(t *testing.T) {
	dir := t.TempDir()

	sections := make([]model.DocumentSection, 0, 3)
	for i, tt := range []struct {
		testType string
		width    int
	}{
		{"personality", 100},
		{"cognitive", 200},
		{"motivation", 300},
	} {
		path := filepath.Join(dir, fmt.Sprintf("%03d_test_%s.pdf", i, tt.testType))
		writeSinglePagePDF(t, path, tt.width)
		sections = append(sections, model.DocumentSection{
			Kind:     model.SectionKindTest,
			TestType: tt.testType,
			Path:     path,
		})
	}

	m := NewMerger(MergerOptions{})

	forward := filepath.Join(dir, "forward.pdf")
	require.NoError(t, m.Merge(context.Background(), sections, forward))
	assert.Equal(t, []float64{100, 200, 300}, pageWidths(t, forward))

	reversed := []model.DocumentSection{sections[2], sections[1], sections[0]}
	backward := filepath.Join(dir, "backward.pdf")
	require.NoError(t, m.Merge(context.Background(), reversed, backward))
	assert.Equal(t, []float64{300, 200, 100}, pageWidths(t, backward))
}

func TestMerger_Merge_EmptyInput(t *testing.T) {
	m := NewMerger(MergerOptions{})

	err := m.Merge(context.Background(), nil, filepath.Join(t.TempDir(), "out.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sections")
}

func TestMerger_Merge_MissingInputProducesNoOutput(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "000_cover.pdf")
	require.NoError(t, os.WriteFile(existing, []byte("pdf"), 0o600))

	sections := []model.DocumentSection{
		{Kind: model.SectionKindCover, Path: existing},
		{Kind: model.SectionKindTest, TestType: "personality", Path: filepath.Join(dir, "does-not-exist.pdf")},
	}
	outPath := filepath.Join(dir, "combined.pdf")

	m := NewMerger(MergerOptions{})
	err := m.Merge(context.Background(), sections, outPath)

	var missing *report.MergeInputMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "test:personality", missing.Section)
	assert.Equal(t, filepath.Join(dir, "does-not-exist.pdf"), missing.Path)

	// Existence is validated for every input before any write happens.
	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMerger_Merge_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	section := filepath.Join(dir, "000_cover.pdf")
	require.NoError(t, os.WriteFile(section, []byte("pdf"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMerger(MergerOptions{})
	err := m.Merge(ctx, []model.DocumentSection{{Kind: model.SectionKindCover, Path: section}},
		filepath.Join(dir, "combined.pdf"))
	require.ErrorIs(t, err, context.Canceled)
}
