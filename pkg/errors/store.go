package errors

import (
	stdErrors "errors"
	"strings"

	"gorm.io/gorm"
)

// Postgres SQLSTATEs the escrow paths care about.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// FromStore classifies a repository error. what names the thing being
// loaded or written ("wallet", "event") and ends up in the message.
func FromStore(err error, what string) error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return New(CodeNotFound, what+" not found")
	}
	if stdErrors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return Wrap(CodeConflict, err, what+" already exists")
	}
	if strings.Contains(err.Error(), "CHECK constraint failed") {
		return Wrap(CodeInvalidState, err, what+" violates a ledger constraint")
	}

	pg := postgresFields(err)
	switch pg.Code {
	case sqlStateUniqueViolation:
		return Wrap(CodeConflict, err, what+" already exists").WithDetails(map[string]any{"constraint": pg.Constraint})
	case sqlStateForeignKeyViolation, sqlStateCheckViolation:
		return Wrap(CodeInvalidState, err, what+" violates a ledger constraint").WithDetails(map[string]any{"constraint": pg.Constraint})
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return Wrap(CodeDependency, err, what+" is busy, retry")
	}
	return Wrap(CodeDependency, err, "access "+what)
}
