package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/assesskit/reportgen/internal/domain/model"
	apperrors "github.com/assesskit/reportgen/internal/errors"
)

// ErrSessionNotFound is returned when no test session exists for a session
// code. It carries the not_found code so callers can discriminate with
// apperrors.IsNotFound.
var ErrSessionNotFound error = apperrors.NotFound("test session not found")

// SessionRepo provides read-only access to completed test results, keyed by
// session code. One test_sessions row plus zero or more test_results rows
// assemble into a TestSessionData.
type SessionRepo struct {
	DB *sql.DB
}

// NewSessionRepo creates a new SessionRepo with the given database connection.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db}
}

// GetBySessionCode retrieves the session and all of its completed test results.
func (r *SessionRepo) GetBySessionCode(ctx context.Context, sessionCode string) (*model.TestSessionData, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT session_code, requester_name
		FROM test_sessions
		WHERE session_code = $1
	`, sessionCode)

	var (
		session       model.TestSessionData
		requesterName sql.NullString
	)
	err := row.Scan(&session.SessionCode, &requesterName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get test session: %w", err))
	}
	session.RequesterName = cloneNullableString(requesterName)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT test_type, result
		FROM test_results
		WHERE session_code = $1
	`, sessionCode)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get test results: %w", err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			_ = cerr
		}
	}()

	session.Results = make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			testType string
			result   []byte
		)
		if scanErr := rows.Scan(&testType, &result); scanErr != nil {
			return nil, fmt.Errorf("scan test result: %w", scanErr)
		}
		session.Results[testType] = cloneJSON(result)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("iterate test results: %w", rowsErr))
	}

	return &session, nil
}
