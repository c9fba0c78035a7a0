package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the adapters translate into port errors.
const (
	UniqueViolationCode     = "23505"
	ForeignKeyViolationCode = "23503"
	NotNullViolationCode    = "23502"
)

// AsPgError unwraps err to a *pgconn.PgError when one is present.
func AsPgError(err error) (*pgconn.PgError, bool) {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsViolation reports whether err is a Postgres error with the given code
// and, when constraint is non-empty, that constraint name.
func IsViolation(err error, code, constraint string) bool {
	pe, ok := AsPgError(err)
	if !ok || pe.Code != code {
		return false
	}
	return constraint == "" || pe.ConstraintName == constraint
}
