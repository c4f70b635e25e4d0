package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/assesskit/reportgen/internal/errors"
)

// ErrInterpretationNotFound is returned when no interpretation content exists
// for a test type. It carries the not_found code so callers can discriminate
// with apperrors.IsNotFound.
var ErrInterpretationNotFound error = apperrors.NotFound("interpretation data not found")

// InterpretationRepo provides read-only access to the interpretation/reference
// content bound into each test section alongside the raw result.
type InterpretationRepo struct {
	DB *sql.DB
}

// NewInterpretationRepo creates a new InterpretationRepo with the given database connection.
func NewInterpretationRepo(db *sql.DB) *InterpretationRepo {
	return &InterpretationRepo{DB: db}
}

// GetByTestType retrieves the interpretation payload for a test type.
func (r *InterpretationRepo) GetByTestType(ctx context.Context, testType string) (json.RawMessage, error) {
	var content []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT content
		FROM test_interpretations
		WHERE test_type = $1
	`, testType).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInterpretationNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get interpretation for %s: %w", testType, err))
	}
	return cloneJSON(content), nil
}
