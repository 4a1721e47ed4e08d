// Package errs provides the unified error type used across all of rowgate.
//
// Every subsystem (catalog, query builder, gateway, drivers, filestore, …)
// returns *errs.Error so that callers can react to a failure by its Kind
// without importing driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In the query builder, report the offending identifier:
//	return errs.UnknownColumn("users", "emial")
//
//	// In a handler, check error kind:
//	if errs.IsNotFound(err) {
//	    http.Error(w, "not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing backend-specific codes.
// Postgres, MySQL, SQLite, SQL Server and MinIO all map their native errors
// to one of these kinds.
type ErrKind int

const (
	ErrKindUnknown             ErrKind = iota
	ErrKindUnknownTable                // table not visible to the connected role
	ErrKindUnknownColumn               // identifier not in the table's column set
	ErrKindNoPrimaryKey                // keyed write against a table without a PK
	ErrKindIncompleteKey               // not every PK column was supplied
	ErrKindImmutablePrimaryKey         // update tried to change a PK column
	ErrKindInvalidValue                // value failed type coercion
	ErrKindConstraintViolation         // unique / foreign key / not null / check
	ErrKindConnectionFailed            // cannot reach or authenticate to the backend
	ErrKindTimeout                     // deadline exceeded or context cancelled
	ErrKindNotFound                    // no row, no object, no bucket
	ErrKindQueryFailed                 // any other backend execution failure
	ErrKindPermissionDenied            // access denied
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindUnknownTable:
		return "unknown_table"
	case ErrKindUnknownColumn:
		return "unknown_column"
	case ErrKindNoPrimaryKey:
		return "no_primary_key"
	case ErrKindIncompleteKey:
		return "incomplete_key"
	case ErrKindImmutablePrimaryKey:
		return "immutable_primary_key"
	case ErrKindInvalidValue:
		return "invalid_value"
	case ErrKindConstraintViolation:
		return "constraint_violation"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all rowgate subsystems.
type Error struct {
	Kind    ErrKind
	Message string

	// Table and Column name the offending identifier, when there is one.
	Table  string
	Column string

	// Detail is backend-supplied context safe to show to a caller
	// (e.g. the constraint that was violated).
	Detail string

	Cause error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// UnknownTable reports a table name that the catalog cannot resolve.
func UnknownTable(table string) *Error {
	return &Error{
		Kind:    ErrKindUnknownTable,
		Message: fmt.Sprintf("unknown table %q", table),
		Table:   table,
	}
}

// UnknownColumn reports a column name that is not part of table.
func UnknownColumn(table, column string) *Error {
	return &Error{
		Kind:    ErrKindUnknownColumn,
		Message: fmt.Sprintf("unknown column %q in table %q", column, table),
		Table:   table,
		Column:  column,
	}
}

// NoPrimaryKey reports a keyed operation against a table without a primary key.
func NoPrimaryKey(table string) *Error {
	return &Error{
		Kind:    ErrKindNoPrimaryKey,
		Message: fmt.Sprintf("table %q has no primary key and is read-only", table),
		Table:   table,
	}
}

// IncompleteKey reports a missing primary key column.
func IncompleteKey(table, column string) *Error {
	return &Error{
		Kind:    ErrKindIncompleteKey,
		Message: fmt.Sprintf("primary key column %q of table %q not supplied", column, table),
		Table:   table,
		Column:  column,
	}
}

// ImmutablePrimaryKey reports an attempt to change a primary key column.
func ImmutablePrimaryKey(table, column string) *Error {
	return &Error{
		Kind:    ErrKindImmutablePrimaryKey,
		Message: fmt.Sprintf("primary key column %q of table %q cannot be updated", column, table),
		Table:   table,
		Column:  column,
	}
}

// InvalidValue reports a value that cannot be coerced to its column's type.
func InvalidValue(table, column, reason string) *Error {
	return &Error{
		Kind:    ErrKindInvalidValue,
		Message: fmt.Sprintf("invalid value for column %q: %s", column, reason),
		Table:   table,
		Column:  column,
	}
}

// --- Predicates ---

// IsUnknownTable reports whether err names a table the catalog could not find.
func IsUnknownTable(err error) bool { return kindOf(err) == ErrKindUnknownTable }

// IsUnknownColumn reports whether err names a column not in the table.
func IsUnknownColumn(err error) bool { return kindOf(err) == ErrKindUnknownColumn }

// IsNoPrimaryKey reports whether err is a keyed write on a keyless table.
func IsNoPrimaryKey(err error) bool { return kindOf(err) == ErrKindNoPrimaryKey }

// IsIncompleteKey reports whether err is a partially supplied primary key.
func IsIncompleteKey(err error) bool { return kindOf(err) == ErrKindIncompleteKey }

// IsImmutablePrimaryKey reports whether err is an attempted PK change.
func IsImmutablePrimaryKey(err error) bool { return kindOf(err) == ErrKindImmutablePrimaryKey }

// IsInvalidValue reports whether err is a type coercion failure.
func IsInvalidValue(err error) bool { return kindOf(err) == ErrKindInvalidValue }

// IsConstraintViolation reports whether the backend rejected a write
// because of a unique, foreign key, not-null or check constraint.
func IsConstraintViolation(err error) bool { return kindOf(err) == ErrKindConstraintViolation }

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, unknown bucket, …).
func IsNotFound(err error) bool { return kindOf(err) == ErrKindNotFound }

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool { return kindOf(err) == ErrKindTimeout }

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool { return kindOf(err) == ErrKindConnectionFailed }

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool { return kindOf(err) == ErrKindQueryFailed }

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool { return kindOf(err) == ErrKindPermissionDenied }

// IsValidation reports whether err was raised before any statement reached
// the network. Validation errors are never retried.
func IsValidation(err error) bool {
	switch kindOf(err) {
	case ErrKindUnknownTable, ErrKindUnknownColumn, ErrKindNoPrimaryKey,
		ErrKindIncompleteKey, ErrKindImmutablePrimaryKey, ErrKindInvalidValue:
		return true
	}
	return false
}

// IsRetryable reports whether err is transient (connection or timeout).
// Only side-effect-free statements may be retried.
func IsRetryable(err error) bool {
	k := kindOf(err)
	return k == ErrKindConnectionFailed || k == ErrKindTimeout
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
