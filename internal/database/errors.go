package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"dgc-transports/internal/domain"

	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation detects unique constraint failures from Postgres and SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Classify maps a storage error onto the domain taxonomy. resource names
// the entity for not-found and conflict messages.
func Classify(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.NotFound(resource, err)
	case IsUniqueViolation(err):
		return domain.ConflictError{Resource: resource, Msg: "already exists", Err: err}
	case errors.Is(err, context.Canceled):
		return err
	default:
		return domain.Unavailable("database", err)
	}
}

// WithTimeout bounds a single database call. A non-positive timeout only
// inherits the parent deadline.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// RequireAffected turns an update that matched no rows into a not-found error.
func RequireAffected(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return Classify(err, resource)
	}
	if n == 0 {
		return domain.NotFound(resource, sql.ErrNoRows)
	}
	return nil
}
