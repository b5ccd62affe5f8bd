/*
2021 © Postgres.ai
*/

package sqlexec

import (
	"testing"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClarifyQueryError(t *testing.T) {
	testCases := []struct {
		caseName  string
		pgErr     *pgconn.PgError
		retryable bool
	}{
		{
			caseName:  "unique violation",
			pgErr:     &pgconn.PgError{Code: "23505", Message: `duplicate key value violates unique constraint "clientes_cpf_key"`},
			retryable: false,
		},
		{
			caseName:  "class 23 without a known message",
			pgErr:     &pgconn.PgError{Code: "23P01", Message: "conflicting key value"},
			retryable: false,
		},
		{
			caseName:  "class 42 without a known message",
			pgErr:     &pgconn.PgError{Code: "42501", Message: "must be owner of table clientes"},
			retryable: false,
		},
		{
			caseName:  "serialization failure",
			pgErr:     &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"},
			retryable: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.caseName, func(t *testing.T) {
			err := clarifyQueryError(errors.Wrap(tc.pgErr, "failed to run statement"))

			var dbErr *DatabaseError
			require.True(t, errors.As(err, &dbErr))
			assert.Equal(t, tc.pgErr.Code, dbErr.Code)
			assert.Equal(t, tc.pgErr.Message, dbErr.Message)
			assert.Equal(t, tc.retryable, IsRetryable(err))
		})
	}
}

func TestClarifyQueryErrorKeepsOtherErrors(t *testing.T) {
	err := errors.New("conn closed")

	assert.Equal(t, err, clarifyQueryError(err))
	assert.True(t, IsRetryable(clarifyQueryError(err)))
}
