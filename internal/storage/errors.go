package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/julianstephens/habitline/internal/errors"
)

// Classify maps a driver error from op into the application error taxonomy.
// driverTransient reports driver-specific retryable failures such as lock
// contention or a lost server connection.
func Classify(op string, err error, driverTransient func(error) bool) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperrors.NotFoundf("%s", op)
	case apperrors.IsNotFound(err), apperrors.IsValidation(err), apperrors.IsTransient(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, sql.ErrConnDone):
		return apperrors.Transient(op, err)
	case driverTransient != nil && driverTransient(err):
		return apperrors.Transient(op, err)
	default:
		return err
	}
}

// WithTimeout bounds a single store call. A zero timeout leaves ctx as is.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// ExpectAffected turns a zero-row write into a NotFound error.
func ExpectAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFoundf("%s", op)
	}
	return nil
}
