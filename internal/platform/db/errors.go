package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MapError translates driver errors into the shared error taxonomy.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", shared.ErrDuplicateKey, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: referenced by %s", shared.ErrConflict, pgErr.TableName)
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: concurrent update", shared.ErrConflict)
		}
	}
	return err
}

// VersionMiss resolves a zero-row versioned write into Conflict or NotFound by checking
// whether the row still exists.
func VersionMiss(exists bool) error {
	if exists {
		return shared.ErrConflict
	}
	return shared.ErrNotFound
}
