// Package gateway executes built statements against a pooled connection and
// turns result rows into portable records.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/logger"
	"github.com/koustreak/rowgate/internal/query"
	"github.com/koustreak/rowgate/internal/value"
)

// Mode selects how a statement is executed.
type Mode int

const (
	// Read runs a row-returning, side-effect-free statement. Reads may be
	// retried once on a transient failure.
	Read Mode = iota

	// Write runs an insert, update or delete. Writes are never retried.
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Result summarises a write.
type Result struct {
	RowsAffected int64

	// Created is the inserted row as the backend reports it: the full row
	// where the dialect returns it, only the generated key on MySQL, nil
	// for updates and deletes.
	Created *value.Record
}

// NotFound reports whether a keyed write matched no row.
func (r Result) NotFound() bool { return r.RowsAffected == 0 }

// Outcome is what Execute produced: Records for reads, Result for writes.
type Outcome struct {
	Records []*value.Record
	Result  Result
}

// Options tune a Gateway. Zero values mean no per-statement deadline, no
// retries, value.Default and a discarding logger.
type Options struct {
	QueryTimeout time.Duration
	RetryReads   bool
	Mapper       *value.Mapper
	Logger       *logger.Logger
}

// OptionsFromConfig takes the execution settings from a database config.
func OptionsFromConfig(cfg *database.Config, log *logger.Logger) Options {
	return Options{
		QueryTimeout: cfg.QueryTimeout,
		RetryReads:   cfg.RetryReads,
		Logger:       log,
	}
}

// Gateway is the only component that talks to the database.
// It is safe for concurrent use.
type Gateway struct {
	db      database.DB
	timeout time.Duration
	retry   bool
	mapper  *value.Mapper
	log     *logger.Logger
}

func New(db database.DB, opts Options) *Gateway {
	g := &Gateway{
		db:      db,
		timeout: opts.QueryTimeout,
		retry:   opts.RetryReads,
		mapper:  opts.Mapper,
		log:     opts.Logger,
	}
	if g.mapper == nil {
		g.mapper = value.Default
	}
	if g.log == nil {
		g.log = logger.Nop()
	}
	g.log = g.log.Component("gateway")
	return g
}

// Execute runs q in the given mode.
func (g *Gateway) Execute(ctx context.Context, q query.Query, mode Mode) (Outcome, error) {
	if mode == Read {
		recs, err := g.Read(ctx, q)
		return Outcome{Records: recs}, err
	}
	res, err := g.Write(ctx, q)
	return Outcome{Result: res}, err
}

// Read runs a select and decodes every row, in result order. A transient
// failure (connection lost, timeout) is retried once on a fresh connection
// unless the caller's own context is already done.
func (g *Gateway) Read(ctx context.Context, q query.Query) ([]*value.Record, error) {
	if q.Op != query.OpSelect || !q.ReturnsRows() {
		return nil, errs.Newf(errs.ErrKindQueryFailed, "%s statement cannot run in read mode", q.Op)
	}

	start := time.Now()
	recs, err := g.fetch(ctx, q)
	if err != nil && g.retry && errs.IsRetryable(err) && ctx.Err() == nil {
		g.log.WarnEvent().
			Str("table", q.Table).
			Str("op", string(q.Op)).
			Str("kind", errs.KindOf(err).String()).
			Msg("retrying read")
		recs, err = g.fetch(ctx, q)
	}
	if err != nil {
		return nil, g.fail(q, err)
	}

	g.log.DebugEvent().
		Str("table", q.Table).
		Int("rows", len(recs)).
		Dur("took", time.Since(start)).
		Msg("read")
	return recs, nil
}

// Write runs an insert, update or delete exactly once.
func (g *Gateway) Write(ctx context.Context, q query.Query) (Result, error) {
	if q.Op == query.OpSelect {
		return Result{}, errs.New(errs.ErrKindQueryFailed, "select statement cannot run in write mode")
	}

	start := time.Now()
	res, err := g.write(ctx, q)
	if err != nil {
		return Result{}, g.fail(q, err)
	}

	g.log.DebugEvent().
		Str("table", q.Table).
		Str("op", string(q.Op)).
		Int("rows_affected", int(res.RowsAffected)).
		Dur("took", time.Since(start)).
		Msg("write")
	return res, nil
}

func (g *Gateway) write(ctx context.Context, q query.Query) (Result, error) {
	if q.ReturnsRows() {
		recs, err := g.fetch(ctx, q)
		if err != nil {
			return Result{}, err
		}
		res := Result{RowsAffected: int64(len(recs))}
		if len(recs) > 0 {
			res.Created = recs[0]
		}
		return res, nil
	}

	ctx, cancel := g.attemptContext(ctx)
	defer cancel()

	out, err := g.db.Exec(ctx, q.SQL, q.Args...)
	if err != nil {
		return Result{}, err
	}

	res := Result{RowsAffected: out.RowsAffected}
	if q.Identity != "" && out.HasLastInsertID {
		rec := value.NewRecord(1)
		rec.Set(q.Identity, value.IntegerValue(out.LastInsertID))
		res.Created = rec
	}
	return res, nil
}

// fetch runs one attempt of a row-returning statement. The rows, and with
// them the pooled connection, are released on every path.
func (g *Gateway) fetch(ctx context.Context, q query.Query) ([]*value.Record, error) {
	ctx, cancel := g.attemptContext(ctx)
	defer cancel()

	rows, err := g.db.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}

	names, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	// Positional cells line up with q.Columns; fall back to inferring the
	// type from the cell when the backend returned a different shape.
	typed := len(names) == len(q.Columns)

	var recs []*value.Record
	err = database.EachRow(rows, func(cells []any) error {
		rec := value.NewRecord(len(cells))
		for i, cell := range cells {
			if typed {
				rec.Set(q.Columns[i].Name, g.mapper.DecodeAs(q.Columns[i].Type, cell))
			} else {
				rec.Set(names[i], g.mapper.Decode(cell))
			}
		}
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*value.Record{}
	}
	return recs, nil
}

func (g *Gateway) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// fail attaches the statement's table to a classified error and logs it.
// Argument values are never logged.
func (g *Gateway) fail(q query.Query, err error) error {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Wrap(errs.ErrKindUnknown, "statement failed", err)
		err = e
	}
	if e.Table == "" {
		e.Table = q.Table
	}

	g.log.ErrorEvent().
		Err(err).
		Str("table", q.Table).
		Str("op", string(q.Op)).
		Str("kind", e.Kind.String()).
		Msg("statement failed")
	return err
}
