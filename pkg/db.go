package pkg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgUniqueViolation   = "23505"
	pgCheckViolation    = "23514"
	pgConnectionFailure = "08"
)

// IsUniqueViolationError checks if the error is a unique violation error
func IsUniqueViolationError(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func IsCheckViolationError(err error) bool {
	return pgErrorCode(err) == pgCheckViolation
}

// IsPostgresError tells apart errors raised by the server from network and
// pool errors.
func IsPostgresError(err error) bool {
	code := pgErrorCode(err)
	return code != "" && code[:2] != pgConnectionFailure
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
