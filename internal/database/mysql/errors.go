package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/rowgate/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errTooManyConnections = 1040
	errDBAccessDenied     = 1044
	errAccessDenied       = 1045
	errNoDatabaseSelected = 1046
	errBadNull            = 1048
	errUnknownDatabase    = 1049
	errBadFieldError      = 1054
	errDuplicateEntry     = 1062
	errNoSuchTable        = 1146
	errTableAccessDenied  = 1142
	errColumnAccessDenied = 1143
	errTooManyUserConns   = 1203
	errLockWaitTimeout    = 1205
	errRowIsReferenced    = 1451
	errNoReferencedRow    = 1452
	errTruncatedValue     = 1292
	errDataTooLong        = 1406
	errIncorrectValue     = 1366
	errCheckViolation     = 3819
	errQueryInterrupted   = 3024
	errConnRefused        = 2003
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
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

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		out := errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
		if out.Kind == errs.ErrKindConstraintViolation {
			out.Detail = mysqlErr.Message
		}
		return out
	}

	// Fallthrough: driver.ErrBadConn, mysql.ErrInvalidConn, dial and TLS errors
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDuplicateEntry, errRowIsReferenced, errNoReferencedRow, errBadNull, errCheckViolation:
		return errs.ErrKindConstraintViolation
	case errAccessDenied, errNoDatabaseSelected, errUnknownDatabase, errConnRefused,
		errTooManyConnections, errTooManyUserConns:
		return errs.ErrKindConnectionFailed
	case errDBAccessDenied, errTableAccessDenied, errColumnAccessDenied:
		return errs.ErrKindPermissionDenied
	case errLockWaitTimeout, errQueryInterrupted:
		return errs.ErrKindTimeout
	case errNoSuchTable:
		return errs.ErrKindUnknownTable
	case errBadFieldError:
		return errs.ErrKindUnknownColumn
	case errTruncatedValue, errDataTooLong, errIncorrectValue:
		return errs.ErrKindInvalidValue
	default:
		return errs.ErrKindQueryFailed
	}
}
