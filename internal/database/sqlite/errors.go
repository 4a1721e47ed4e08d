package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/koustreak/rowgate/internal/errs"
)

// mapError translates modernc.org/sqlite errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		text := sqlite.ErrorCodeString[sqliteErr.Code()]
		out := errs.Wrap(classify(sqliteErr.Code(), err.Error()), fmt.Sprintf("%s: %s", msg, text), err)
		if out.Kind == errs.ErrKindConstraintViolation {
			out.Detail = err.Error()
		}
		return out
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// classify uses the primary result code (low byte) of an extended code.
func classify(code int, text string) errs.ErrKind {
	switch code & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return errs.ErrKindConstraintViolation
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return errs.ErrKindTimeout
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_IOERR:
		return errs.ErrKindConnectionFailed
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
		return errs.ErrKindPermissionDenied
	case sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
		return errs.ErrKindInvalidValue
	case sqlite3.SQLITE_ERROR:
		switch {
		case strings.Contains(text, "no such table"):
			return errs.ErrKindUnknownTable
		case strings.Contains(text, "no such column"), strings.Contains(text, "has no column named"):
			return errs.ErrKindUnknownColumn
		}
	}
	return errs.ErrKindQueryFailed
}
