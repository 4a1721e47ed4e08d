// Package query turns a table description plus caller parameters into
// parameterized SQL. It never touches the network.
//
// Identifiers always come from the table description, never from caller
// input, and are quoted for the target dialect. Values are never
// interpolated into the SQL string; they are always passed as args.
package query

import (
	"strings"

	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/schema"
)

// Op names the statement a Query carries.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Query is a built statement ready to execute once.
type Query struct {
	Op    Op
	Table string
	SQL   string
	Args  []any

	// Columns lists the result set columns, in order, when the statement
	// returns rows (selects, and inserts using RETURNING / OUTPUT INSERTED).
	Columns []schema.Column

	// Identity names the single auto-generated key column whose value the
	// backend reports out of band (MySQL LastInsertId). Empty otherwise.
	Identity string
}

// ReturnsRows reports whether the statement produces a result set.
func (q Query) ReturnsRows() bool {
	return len(q.Columns) > 0
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// ParseDirection accepts asc/ascending and desc/descending in any case.
// The empty string means Ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return 0, errs.Newf(errs.ErrKindInvalidValue, "invalid sort direction %q: use asc or desc", s)
	}
}

// Filter is one WHERE condition. Multiple filters are combined with AND.
type Filter struct {
	Column string
	Op     string
	Value  any
}

// SelectOptions are the optional parts of a select. A nil Limit or Offset
// means none; an empty Sort leaves row order to the backend.
type SelectOptions struct {
	Filters   []Filter
	Sort      string
	Direction Direction
	Limit     *int
	Offset    *int
}

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected; the operator position cannot
// be parameterized.
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

func isPattern(op string) bool {
	return op == "LIKE" || op == "ILIKE"
}
