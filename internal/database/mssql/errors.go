package mssql

import (
	"context"
	"errors"
	"fmt"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/koustreak/rowgate/internal/errs"
)

// SQL Server error numbers
// Full list: https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors
const (
	errInvalidObject     = 208
	errInvalidColumn     = 207
	errPermissionDenied  = 229
	errColumnPermission  = 230
	errFKConflict        = 547
	errCannotInsertNull  = 515
	errDuplicateKeyIndex = 2601
	errDuplicateKey      = 2627
	errConversionFailed  = 245
	errStringTruncated   = 8152
	errStringTruncated2  = 2628
	errArithOverflow     = 8115
	errLockTimeout       = 1222
	errLoginFailed       = 18456
	errCannotOpenDB      = 4060
)

// mapError translates go-mssqldb errors into *errs.Error.
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

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		out := errs.Wrap(classify(msErr.Number), fmt.Sprintf("%s: %s", msg, msErr.Message), err)
		if out.Kind == errs.ErrKindConstraintViolation {
			out.Detail = msErr.Message
		}
		return out
	}

	// Fallthrough: network, TLS and login handshake failures
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classify(number int32) errs.ErrKind {
	switch number {
	case errDuplicateKey, errDuplicateKeyIndex, errFKConflict, errCannotInsertNull:
		return errs.ErrKindConstraintViolation
	case errInvalidObject:
		return errs.ErrKindUnknownTable
	case errInvalidColumn:
		return errs.ErrKindUnknownColumn
	case errPermissionDenied, errColumnPermission:
		return errs.ErrKindPermissionDenied
	case errConversionFailed, errStringTruncated, errStringTruncated2, errArithOverflow:
		return errs.ErrKindInvalidValue
	case errLockTimeout:
		return errs.ErrKindTimeout
	case errLoginFailed, errCannotOpenDB:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
