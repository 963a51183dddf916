package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE classes raised by the schema's constraints and triggers.
const (
	pgUniqueViolation      = "23505"
	pgExclusionViolation   = "23P01"
	pgRaiseException       = "P0001"
	pgSerializationFailure = "40001"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if pgErr := pgError(err); pgErr != nil {
		return pgErr.Code == pgUniqueViolation
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsExclusionErr reports a range-overlap rejection from an exclusion constraint.
func IsExclusionErr(err error) bool {
	if err == nil {
		return false
	}
	if pgErr := pgError(err); pgErr != nil {
		return pgErr.Code == pgExclusionViolation
	}
	return strings.Contains(err.Error(), "conflicting key value violates exclusion constraint")
}

// IsSerializationFailure reports a transaction that lost a serialization race
// and may be retried.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	if pgErr := pgError(err); pgErr != nil {
		return pgErr.Code == pgSerializationFailure
	}
	return strings.Contains(err.Error(), "could not serialize access")
}

// HasTriggerMessage reports whether err carries a RAISE EXCEPTION message from
// a schema trigger. SQLite surfaces RAISE(ABORT, msg) as plain error text, so a
// substring match covers the test dialect.
func HasTriggerMessage(err error, msg string) bool {
	if err == nil || msg == "" {
		return false
	}
	if pgErr := pgError(err); pgErr != nil {
		return pgErr.Code == pgRaiseException && strings.Contains(pgErr.Message, msg)
	}
	return strings.Contains(err.Error(), msg)
}

func pgError(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return nil
}
