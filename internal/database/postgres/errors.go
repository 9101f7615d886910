package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/pgscope/internal/errs"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// No rows
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		switch {
		// Class 08 — connection errors
		case hasClass(pgErr.Code, "08"):
			kind = errs.ErrKindConnectionFailed
		// 42501 insufficient_privilege — the credential is restricted.
		// Inspectors degrade their category on this kind instead of failing.
		case pgErr.Code == "42501":
			kind = errs.ErrKindPermissionDenied
		// 42P01 undefined_table — the probed table does not exist.
		case pgErr.Code == "42P01":
			kind = errs.ErrKindNotFound
		// Class 28 — invalid authorization
		case hasClass(pgErr.Code, "28"):
			kind = errs.ErrKindPermissionDenied
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func hasClass(code, class string) bool {
	return len(code) >= 2 && code[:2] == class
}
