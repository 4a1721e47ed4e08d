package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/rowgate/internal/errs"
)

// PostgreSQL SQLSTATE codes with a specific classification.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrTooManyConnections = "53300"
	pgErrQueryCanceled      = "57014"
	pgErrAdminShutdown      = "57P01"
	pgErrCrashShutdown      = "57P02"
	pgErrCannotConnectNow   = "57P03"
	pgErrUndefinedTable     = "42P01"
	pgErrUndefinedColumn    = "42703"
	pgErrInsufficientPriv   = "42501"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}

	// Context cancellation / deadline exceeded, including pool acquisition
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		out := &errs.Error{
			Kind:    classify(pgErr.Code),
			Message: fmt.Sprintf("%s: %s", msg, pgErr.Message),
			Table:   pgErr.TableName,
			Column:  pgErr.ColumnName,
			Detail:  pgErr.Detail,
			Cause:   err,
		}
		if out.Detail == "" && pgErr.ConstraintName != "" {
			out.Detail = "constraint " + pgErr.ConstraintName
		}
		return out
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classify(code string) errs.ErrKind {
	switch code {
	case pgErrTooManyConnections, pgErrAdminShutdown, pgErrCrashShutdown, pgErrCannotConnectNow:
		return errs.ErrKindConnectionFailed
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	case pgErrUndefinedTable:
		return errs.ErrKindUnknownTable
	case pgErrUndefinedColumn:
		return errs.ErrKindUnknownColumn
	case pgErrInsufficientPriv:
		return errs.ErrKindPermissionDenied
	}

	switch {
	case strings.HasPrefix(code, "23"): // integrity constraint violation
		return errs.ErrKindConstraintViolation
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "28"): // connection, auth
		return errs.ErrKindConnectionFailed
	case strings.HasPrefix(code, "22"): // data exception
		return errs.ErrKindInvalidValue
	default:
		return errs.ErrKindQueryFailed
	}
}
