package database

import "github.com/koustreak/rowgate/internal/errs"

// EachRow scans every row of the result set into driver-native cells and
// hands them to fn, in result order. The cells slice is reused between
// calls; fn must copy anything it keeps.
//
// EachRow always closes the Rows; callers do not need to call Close().
func EachRow(rows Rows, fn func(cells []any) error) error {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	// Allocate scan targets as *any so the driver can write any type.
	cells := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range cells {
		ptrs[i] = &cells[i]
	}

	for rows.Next() {
		for i := range cells {
			cells[i] = nil
		}
		if err := rows.Scan(ptrs...); err != nil {
			return asDBError(err, "failed to scan row")
		}
		if err := fn(cells); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return asDBError(err, "error during row iteration")
	}
	return nil
}

// asDBError keeps an already classified error and wraps anything else.
func asDBError(err error, msg string) error {
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
