// Package report holds the pure domain logic of report assembly: the error
// taxonomy of the generation pipeline and the section ordering rules.
package report

import (
	"fmt"
	"strings"
)

// ProductNotFoundError indicates the job referenced a product configuration
// that does not exist or is inactive. The job fails and is never retried.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product configuration %q not found or inactive", e.ProductID)
}

// TestDataNotFoundError indicates no test session exists for the session code.
type TestDataNotFoundError struct {
	SessionCode string
}

func (e *TestDataNotFoundError) Error() string {
	return fmt.Sprintf("no test data found for session %q", e.SessionCode)
}

// MissingRequiredTestsError carries the full set of required-but-absent test
// types, so a caller can fix all problems in one round trip.
type MissingRequiredTestsError struct {
	MissingTypes []string
}

func (e *MissingRequiredTestsError) Error() string {
	return fmt.Sprintf("session is missing required tests: %s", strings.Join(e.MissingTypes, ", "))
}

// SectionGenerationError indicates rendering a single section failed. Whether
// this aborts the pipeline depends on the configured on-section-error policy.
type SectionGenerationError struct {
	Section string
	Cause   error
}

func (e *SectionGenerationError) Error() string {
	return fmt.Sprintf("render section %s: %v", e.Section, e.Cause)
}

func (e *SectionGenerationError) Unwrap() error {
	return e.Cause
}

// NoSectionsGeneratedError indicates the composer produced an empty section
// list. This is always fatal.
type NoSectionsGeneratedError struct {
	SessionCode string
	ProductID   string
}

func (e *NoSectionsGeneratedError) Error() string {
	return fmt.Sprintf("no sections generated for session %q product %q", e.SessionCode, e.ProductID)
}

// MergeInputMissingError indicates a section file vanished between rendering
// and merging. The merge performs no partial write.
type MergeInputMissingError struct {
	Section string
	Path    string
}

func (e *MergeInputMissingError) Error() string {
	return fmt.Sprintf("merge input missing for section %s: %s", e.Section, e.Path)
}

// DeliveryError indicates the combined artifact could not be uploaded to
// durable storage.
type DeliveryError struct {
	Filename string
	Cause    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver artifact %s: %v", e.Filename, e.Cause)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// TimeoutError indicates the job exceeded its execution deadline and was
// aborted by the worker.
type TimeoutError struct {
	JobID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s exceeded its execution deadline", e.JobID)
}
