// Package errors derives stable error-class tags for metrics and failure
// records from report pipeline errors.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/assesskit/reportgen/internal/domain/report"
)

// Classify maps an error to a stable class tag. Known pipeline errors carry
// fixed names so dashboards survive refactors; anything else falls back to
// the innermost concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var (
		timeoutErr  *report.TimeoutError
		missingErr  *report.MissingRequiredTestsError
		productErr  *report.ProductNotFoundError
		dataErr     *report.TestDataNotFoundError
		mergeErr    *report.MergeInputMissingError
		emptyErr    *report.NoSectionsGeneratedError
		deliveryErr *report.DeliveryError
		sectionErr  *report.SectionGenerationError
	)
	switch {
	case goerrors.As(err, &timeoutErr):
		return "job_timeout"
	case goerrors.As(err, &missingErr):
		return "missing_required_tests"
	case goerrors.As(err, &productErr):
		return "product_not_found"
	case goerrors.As(err, &dataErr):
		return "test_data_not_found"
	case goerrors.As(err, &mergeErr):
		return "merge_input_missing"
	case goerrors.As(err, &emptyErr):
		return "no_sections_generated"
	case goerrors.As(err, &deliveryErr):
		return "delivery_failed"
	case goerrors.As(err, &sectionErr):
		return "section_render_failed"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	return typeName(err)
}

// typeName unwraps to the innermost error and converts its concrete type to
// a tag-safe lowercase name.
func typeName(err error) string {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
