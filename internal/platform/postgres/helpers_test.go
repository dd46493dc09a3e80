package postgres

import "github.com/jackc/pgx/v5/pgconn"

func newUniqueViolation() error {
	return &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "tasks_pkey"}
}

func newForeignKeyViolation() error {
	return &pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "lessons_module_id_fkey"}
}

func newInFlightViolation() error {
	return &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: interactionInFlightIndex}
}
