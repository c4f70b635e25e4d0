package errors

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps database errors to AppError instances:
//   - pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - check / not-null violations → Validation
//   - connection failures → Unavailable (the store is unreachable; callers
//     surface this as an unknown/unavailable job state, never stale data)
//   - context deadline / cancellation → Timeout / Canceled
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database operation canceled", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Unavailable("job record store unreachable", err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return Unavailable("job record store unreachable", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{Code: ErrCodeConflict, Message: "value already exists", Cause: pgErr}
	case pgerrcode.ForeignKeyViolation:
		return &AppError{Code: ErrCodeValidation, Message: "referenced resource does not exist", Cause: pgErr}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "invalid value", Cause: pgErr}
	case pgerrcode.ConnectionException, pgerrcode.ConnectionFailure,
		pgerrcode.ConnectionDoesNotExist, pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return Unavailable("job record store unreachable", pgErr)
	default:
		return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: pgErr}
	}
}
