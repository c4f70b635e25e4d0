package errors

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"no rows", pgx.ErrNoRows, ErrCodeNotFound},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeCanceled},
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, ErrCodeConflict},
		{"foreign key violation", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, ErrCodeValidation},
		{"check violation", &pgconn.PgError{Code: pgerrcode.CheckViolation}, ErrCodeValidation},
		{"not null violation", &pgconn.PgError{Code: pgerrcode.NotNullViolation}, ErrCodeValidation},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, ErrCodeUnavailable},
		{"other pg error", &pgconn.PgError{Code: pgerrcode.SyntaxError}, ErrCodeInternal},
		{"network error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapDBError(tt.err)
			require.Error(t, mapped)
			assert.Equal(t, tt.wantCode, GetCode(mapped))
			assert.ErrorIs(t, mapped, tt.err)
		})
	}

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, MapDBError(nil))
	})

	t.Run("unrecognized errors are unchanged", func(t *testing.T) {
		plain := errors.New("something else")
		assert.Equal(t, plain, MapDBError(plain))
	})
}
