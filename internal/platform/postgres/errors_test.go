package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/techtree-api/internal/platform/postgres"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		SchemaName:     "public",
		TableName:      "tasks",
		ColumnName:     "task_type",
		ConstraintName: "tasks_task_type_check",
	}
}

// mockResult implements sql.Result for testing
type mockResult struct {
	rowsAffected int64
	err          error
}

func (m mockResult) LastInsertId() (int64, error) { return 0, m.err }
func (m mockResult) RowsAffected() (int64, error) { return m.rowsAffected, m.err }

func TestViolationHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsUniqueViolation(newPgError("23505")))
	assert.True(t, postgres.IsUniqueViolation(fmt.Errorf("wrapped: %w", newPgError("23505"))))
	assert.False(t, postgres.IsUniqueViolation(newPgError("23503")))
	assert.False(t, postgres.IsUniqueViolation(errors.New("generic error")))
	assert.False(t, postgres.IsUniqueViolation(nil))

	assert.True(t, postgres.IsForeignKeyViolation(newPgError("23503")))
	assert.False(t, postgres.IsForeignKeyViolation(newPgError("23505")))
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		result   sql.Result
		notFound error
		wantIs   error
		wantErr  bool
	}{
		{name: "one row", result: mockResult{rowsAffected: 1}},
		{name: "no rows, default error", result: mockResult{}, wantErr: true, wantIs: store.ErrNotFound},
		{name: "no rows, entity error", result: mockResult{}, notFound: store.ErrTaskNotFound, wantErr: true, wantIs: store.ErrTaskNotFound},
		{name: "rows affected fails", result: mockResult{err: errors.New("driver")}, wantErr: true},
		{name: "nil result", result: nil, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := postgres.CheckRowsAffected(tc.result, tc.notFound)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		wantIs error
	}{
		{name: "no rows", err: sql.ErrNoRows, wantIs: store.ErrNotFound},
		{name: "unique violation", err: newPgError("23505"), wantIs: store.ErrDuplicate},
		{name: "foreign key violation", err: newPgError("23503"), wantIs: store.ErrInvalidEntity},
		{name: "check violation", err: newPgError("23514"), wantIs: store.ErrInvalidEntity},
		{name: "not null violation", err: newPgError("23502"), wantIs: store.ErrInvalidEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, postgres.MapError(tc.err), tc.wantIs)
		})
	}

	t.Run("nil and unmapped errors pass through", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, postgres.MapError(nil))
		plain := errors.New("connection reset")
		assert.Equal(t, plain, postgres.MapError(plain))
		other := newPgError("40001")
		assert.Equal(t, error(other), postgres.MapError(other))
	})
}
