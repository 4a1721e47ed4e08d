package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
)

// Driver is a MySQL implementation of database.DB and database.Introspector
// backed by database/sql. It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

// New opens a MySQL connection pool using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	connector, err := connector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	d := &Driver{db: db}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// connector parses the DSN and forces the options the gateway relies on:
// DATETIME columns scan as time.Time and dial attempts honour ConnectTimeout.
func connector(cfg *database.Config) (driver.Connector, error) {
	mcfg, err := dsnConfig(cfg)
	if err != nil {
		return nil, err
	}
	c, err := mysql.NewConnector(mcfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	return c, nil
}

func dsnConfig(cfg *database.Config) (*mysql.Config, error) {
	mcfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	mcfg.ParseTime = true
	// Report matched rows, not changed rows, so a no-op update on an
	// existing key is not mistaken for a missing one.
	mcfg.ClientFoundRows = true
	if cfg.ConnectTimeout > 0 {
		mcfg.Timeout = cfg.ConnectTimeout
	}
	return mcfg, nil
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Dialect() database.Dialect { return database.DialectMySQL }

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

// Exec runs a statement and reports rows affected plus the AUTO_INCREMENT
// value generated by an insert, if any.
func (d *Driver) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return database.Result{}, mapError(err, "statement failed")
	}

	var out database.Result
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return database.Result{}, mapError(err, "failed to read rows affected")
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		out.LastInsertID = id
		out.HasLastInsertID = true
	}
	return out, nil
}

// --- sql.DB type wrappers ---

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *mysqlRows) Close()                     { _ = r.rows.Close() }

func (r *mysqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "error during row iteration")
	}
	return nil
}

var (
	_ database.DB           = (*Driver)(nil)
	_ database.Introspector = (*Driver)(nil)
)
