package database

import "context"

// DB is the central contract for statement execution.
// All layers above this package talk only to this interface;
// they never import the postgres, mysql, sqlite or mssql packages directly.
type DB interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Dialect reports the SQL dialect statements must be written in.
	Dialect() Dialect

	// Query executes a SQL statement that returns rows. The connection goes
	// back to the pool when the returned Rows is closed.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Exec executes a SQL statement that returns no rows.
	Exec(ctx context.Context, sql string, args ...any) (Result, error)
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Result summarises an Exec.
type Result struct {
	RowsAffected int64

	// LastInsertID is the auto-generated key of an insert, on backends that
	// report one (MySQL). HasLastInsertID is false everywhere else.
	LastInsertID    int64
	HasLastInsertID bool
}

// ColumnInfo is one column as reported by the backend catalog.
type ColumnInfo struct {
	Name     string
	DataType string // native type name, e.g. "character varying", "int(11)"
	Nullable bool
}

// Introspector reads the structure of a database. Each driver implements the
// dialect-specific catalog queries; schema.Catalog caches the results.
type Introspector interface {
	// Tables lists user tables visible to the connected role, excluding
	// system catalogs, sorted by name.
	Tables(ctx context.Context) ([]string, error)

	// Columns lists table's columns in declaration order. An empty result
	// means the table does not exist.
	Columns(ctx context.Context, table string) ([]ColumnInfo, error)

	// PrimaryKey lists the primary key columns of table in key order.
	// A table without a primary key yields an empty slice.
	PrimaryKey(ctx context.Context, table string) ([]string, error)
}
