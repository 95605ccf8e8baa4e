package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound means no document exists under the given key.
	ErrNotFound = errors.New("document not found")
	// ErrConflict means a versioned update lost the race: the stored version
	// no longer matches the one the caller read.
	ErrConflict = errors.New("version conflict")
	// ErrDuplicate means a create hit an existing key or unique index.
	ErrDuplicate = errors.New("duplicate document")
)

// isUniqueViolation reports whether err is a Postgres unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
