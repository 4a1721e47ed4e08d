package database

import (
	"strconv"
	"strings"
)

// Dialect controls identifier quoting and placeholder style.
type Dialect int

const (
	// DialectPostgres uses "ident" and $1, $2, … placeholders.
	DialectPostgres Dialect = iota

	// DialectMySQL uses `ident` and ? placeholders.
	DialectMySQL

	// DialectSQLite uses "ident" and ? placeholders.
	DialectSQLite

	// DialectSQLServer uses [ident] and @p1, @p2, … placeholders.
	DialectSQLServer
)

func (d Dialect) String() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	case DialectSQLServer:
		return "sqlserver"
	default:
		return "postgres"
	}
}

// Placeholder returns the parameter placeholder for the 1-based position idx.
func (d Dialect) Placeholder(idx int) string {
	switch d {
	case DialectMySQL, DialectSQLite:
		return "?"
	case DialectSQLServer:
		return "@p" + strconv.Itoa(idx)
	default:
		return "$" + strconv.Itoa(idx)
	}
}

// QuoteIdent wraps a SQL identifier in the dialect's quoting syntax so that
// reserved words and mixed-case names are taken literally. Embedded quote
// characters are doubled.
func (d Dialect) QuoteIdent(name string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case DialectSQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// SupportsReturning reports whether an INSERT can hand back the generated
// key columns in the same statement (RETURNING / OUTPUT INSERTED).
func (d Dialect) SupportsReturning() bool {
	return d != DialectMySQL
}

// SupportsILike reports whether ILIKE is a native operator.
func (d Dialect) SupportsILike() bool {
	return d == DialectPostgres
}
