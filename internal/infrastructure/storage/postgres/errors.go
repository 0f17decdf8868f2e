package postgres

import (
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"invcore/internal/core/apperror"
)

// PostgreSQL SQLSTATE codes mapped to application errors.
const (
	sqlstateUniqueViolation     = "23505"
	sqlstateSerializationFail   = "40001"
	sqlstateDeadlockDetected    = "40P01"
	sqlstateLockNotAvailable    = "55P03"
	sqlstateForeignKeyViolation = "23503"
)

// MapError converts low-level database errors into AppError codes.
// entity names the logical record for error details; op labels the operation
// in the wrapped message.
func MapError(err error, entity, op string) error {
	if err == nil {
		return nil
	}

	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr
	}

	if pgxscan.NotFound(err) {
		return apperror.NewNotFound(entity, nil)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateUniqueViolation:
			return apperror.NewAlreadyExists(entity, pgErr.ConstraintName).WithCause(err)
		case sqlstateSerializationFail, sqlstateDeadlockDetected, sqlstateLockNotAvailable:
			return apperror.NewConcurrencyConflict(entity, op).WithCause(err)
		case sqlstateForeignKeyViolation:
			return apperror.NewValidation("referenced record does not exist").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		}
	}

	return apperror.NewDatabase(fmt.Errorf("%s: %w", op, err))
}
