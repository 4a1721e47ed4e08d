package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/schema"
	"github.com/koustreak/rowgate/internal/value"
)

// Builder produces dialect-specific statements. It holds no state beyond its
// configuration and is safe for concurrent use.
//
// Usage:
//
//	b := query.New(database.DialectPostgres, nil)
//	q, err := b.Select(users, query.SelectOptions{
//	    Filters:   []query.Filter{{Column: "active", Op: "=", Value: true}},
//	    Sort:      "created_at",
//	    Direction: query.Descending,
//	    Limit:     &limit,
//	})
type Builder struct {
	dialect database.Dialect
	mapper  *value.Mapper
}

// New returns a Builder for the dialect. A nil mapper means value.Default.
func New(d database.Dialect, mapper *value.Mapper) *Builder {
	if mapper == nil {
		mapper = value.Default
	}
	return &Builder{dialect: d, mapper: mapper}
}

func (b *Builder) Dialect() database.Dialect { return b.dialect }

// Select builds a filtered, optionally sorted and paginated read. Every
// column is listed explicitly in table order.
func (b *Builder) Select(t *schema.Table, opts SelectOptions) (Query, error) {
	if opts.Sort != "" {
		if _, ok := t.Column(opts.Sort); !ok {
			return Query{}, errs.UnknownColumn(t.Name(), opts.Sort)
		}
	}
	if opts.Direction != Ascending && opts.Direction != Descending {
		return Query{}, errs.Newf(errs.ErrKindInvalidValue, "invalid sort direction %d", opts.Direction)
	}
	if opts.Limit != nil && *opts.Limit < 0 {
		return Query{}, errs.New(errs.ErrKindInvalidValue, "limit must not be negative")
	}
	if opts.Offset != nil && *opts.Offset < 0 {
		return Query{}, errs.New(errs.ErrKindInvalidValue, "offset must not be negative")
	}

	w := b.newWriter()
	w.sb.WriteString("SELECT ")
	w.sb.WriteString(b.columnList(t.ColumnNames(), ""))
	w.sb.WriteString(" FROM ")
	w.sb.WriteString(b.dialect.QuoteIdent(t.Name()))

	// --- WHERE ---
	if len(opts.Filters) > 0 {
		parts := make([]string, 0, len(opts.Filters))
		for _, f := range opts.Filters {
			part, err := b.condition(t, f, w)
			if err != nil {
				return Query{}, err
			}
			parts = append(parts, part)
		}
		w.sb.WriteString(" WHERE ")
		w.sb.WriteString(strings.Join(parts, " AND "))
	}

	// --- ORDER BY ---
	if opts.Sort != "" {
		fmt.Fprintf(&w.sb, " ORDER BY %s %s", b.dialect.QuoteIdent(opts.Sort), opts.Direction)
	}

	// --- LIMIT / OFFSET ---
	b.paginate(w, opts)

	return Query{
		Op:      OpSelect,
		Table:   t.Name(),
		SQL:     w.sb.String(),
		Args:    w.args,
		Columns: t.Columns(),
	}, nil
}

// SelectByKey builds a read of the single row identified by key.
func (b *Builder) SelectByKey(t *schema.Table, key map[string]any) (Query, error) {
	bound, err := b.bindKey(t, key)
	if err != nil {
		return Query{}, err
	}

	filters := make([]Filter, len(bound))
	for i, kv := range bound {
		filters[i] = Filter{Column: kv.column, Op: "=", Value: key[kv.column]}
	}
	return b.Select(t, SelectOptions{Filters: filters})
}

// Insert builds a single-row insert. Only known columns are accepted; the
// statement asks for the created row back where the dialect allows it.
func (b *Builder) Insert(t *schema.Table, values map[string]any) (Query, error) {
	for name := range values {
		if _, ok := t.Column(name); !ok {
			return Query{}, errs.UnknownColumn(t.Name(), name)
		}
	}

	w := b.newWriter()
	var cols, holders []string
	for _, c := range t.Columns() {
		raw, ok := values[c.Name]
		if !ok {
			continue
		}
		v, err := b.coerce(t, c, raw)
		if err != nil {
			return Query{}, err
		}
		cols = append(cols, c.Name)
		holders = append(holders, w.bind(v))
	}

	table := b.dialect.QuoteIdent(t.Name())
	all := t.ColumnNames()
	q := Query{Op: OpInsert, Table: t.Name()}

	w.sb.WriteString("INSERT INTO ")
	w.sb.WriteString(table)

	switch b.dialect {
	case database.DialectSQLServer:
		if len(cols) > 0 {
			fmt.Fprintf(&w.sb, " (%s)", b.columnList(cols, ""))
		}
		fmt.Fprintf(&w.sb, " OUTPUT %s", b.columnList(all, "INSERTED."))
		if len(cols) > 0 {
			fmt.Fprintf(&w.sb, " VALUES (%s)", strings.Join(holders, ", "))
		} else {
			w.sb.WriteString(" DEFAULT VALUES")
		}
		q.Columns = t.Columns()

	case database.DialectMySQL:
		fmt.Fprintf(&w.sb, " (%s) VALUES (%s)", b.columnList(cols, ""), strings.Join(holders, ", "))
		if pk := t.PrimaryKey(); len(pk) == 1 {
			q.Identity = pk[0]
		}

	default:
		if len(cols) > 0 {
			fmt.Fprintf(&w.sb, " (%s) VALUES (%s)", b.columnList(cols, ""), strings.Join(holders, ", "))
		} else {
			w.sb.WriteString(" DEFAULT VALUES")
		}
		fmt.Fprintf(&w.sb, " RETURNING %s", b.columnList(all, ""))
		q.Columns = t.Columns()
	}

	q.SQL = w.sb.String()
	q.Args = w.args
	return q, nil
}

// Update builds a keyed update. The table must have a primary key, key must
// bind every key column, and changes must not touch key columns.
func (b *Builder) Update(t *schema.Table, key, changes map[string]any) (Query, error) {
	bound, err := b.bindKey(t, key)
	if err != nil {
		return Query{}, err
	}
	if len(changes) == 0 {
		return Query{}, errs.Newf(errs.ErrKindInvalidValue, "no changes supplied for table %q", t.Name())
	}
	for name := range changes {
		if _, ok := t.Column(name); !ok {
			return Query{}, errs.UnknownColumn(t.Name(), name)
		}
		if t.IsPrimaryKey(name) {
			return Query{}, errs.ImmutablePrimaryKey(t.Name(), name)
		}
	}

	w := b.newWriter()
	sets := make([]string, 0, len(changes))
	for _, c := range t.Columns() {
		raw, ok := changes[c.Name]
		if !ok {
			continue
		}
		v, err := b.coerce(t, c, raw)
		if err != nil {
			return Query{}, err
		}
		sets = append(sets, b.dialect.QuoteIdent(c.Name)+" = "+w.bind(v))
	}

	w.sb.WriteString("UPDATE ")
	w.sb.WriteString(b.dialect.QuoteIdent(t.Name()))
	w.sb.WriteString(" SET ")
	w.sb.WriteString(strings.Join(sets, ", "))
	b.whereKey(w, bound)

	return Query{Op: OpUpdate, Table: t.Name(), SQL: w.sb.String(), Args: w.args}, nil
}

// Delete builds a keyed delete under the same key rules as Update.
func (b *Builder) Delete(t *schema.Table, key map[string]any) (Query, error) {
	bound, err := b.bindKey(t, key)
	if err != nil {
		return Query{}, err
	}

	w := b.newWriter()
	w.sb.WriteString("DELETE FROM ")
	w.sb.WriteString(b.dialect.QuoteIdent(t.Name()))
	b.whereKey(w, bound)

	return Query{Op: OpDelete, Table: t.Name(), SQL: w.sb.String(), Args: w.args}, nil
}

type keyValue struct {
	column string
	value  any
}

// bindKey validates a primary key map and returns its coerced values in key order.
func (b *Builder) bindKey(t *schema.Table, key map[string]any) ([]keyValue, error) {
	if !t.HasPrimaryKey() {
		return nil, errs.NoPrimaryKey(t.Name())
	}
	for name := range key {
		if !t.IsPrimaryKey(name) {
			return nil, errs.UnknownColumn(t.Name(), name)
		}
	}

	pk := t.PrimaryKey()
	out := make([]keyValue, 0, len(pk))
	for _, name := range pk {
		raw, ok := key[name]
		if !ok {
			return nil, errs.IncompleteKey(t.Name(), name)
		}
		col, _ := t.Column(name)
		v, err := b.coerce(t, col, raw)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, errs.InvalidValue(t.Name(), name, "primary key value must not be null")
		}
		out = append(out, keyValue{column: name, value: v})
	}
	return out, nil
}

func (b *Builder) whereKey(w *writer, bound []keyValue) {
	parts := make([]string, len(bound))
	for i, kv := range bound {
		parts[i] = b.dialect.QuoteIdent(kv.column) + " = " + w.bind(kv.value)
	}
	w.sb.WriteString(" WHERE ")
	w.sb.WriteString(strings.Join(parts, " AND "))
}

// condition renders one filter. Null comparisons become IS [NOT] NULL and
// ILIKE degrades to LIKE where the dialect has no ILIKE.
func (b *Builder) condition(t *schema.Table, f Filter, w *writer) (string, error) {
	col, ok := t.Column(f.Column)
	if !ok {
		return "", errs.UnknownColumn(t.Name(), f.Column)
	}
	op := strings.ToUpper(strings.TrimSpace(f.Op))
	if !validOps[op] {
		return "", errs.InvalidValue(t.Name(), f.Column, fmt.Sprintf("unsupported WHERE operator: %q", f.Op))
	}
	ident := b.dialect.QuoteIdent(col.Name)

	if isNull(f.Value) {
		switch op {
		case "=":
			return ident + " IS NULL", nil
		case "!=", "<>":
			return ident + " IS NOT NULL", nil
		default:
			return "", errs.InvalidValue(t.Name(), f.Column, fmt.Sprintf("operator %s cannot compare with null", op))
		}
	}

	var arg any
	if isPattern(op) {
		if op == "ILIKE" && !b.dialect.SupportsILike() {
			op = "LIKE"
		}
		arg = fmt.Sprint(f.Value)
	} else {
		v, err := b.coerce(t, col, f.Value)
		if err != nil {
			return "", err
		}
		arg = v
	}
	if op == "!=" && b.dialect == database.DialectSQLServer {
		op = "<>"
	}
	return ident + " " + op + " " + w.bind(arg), nil
}

func (b *Builder) paginate(w *writer, opts SelectOptions) {
	if opts.Limit == nil && opts.Offset == nil {
		return
	}

	switch b.dialect {
	case database.DialectSQLServer:
		// OFFSET/FETCH is only valid after ORDER BY.
		if opts.Sort == "" {
			w.sb.WriteString(" ORDER BY (SELECT NULL)")
		}
		offset := 0
		if opts.Offset != nil {
			offset = *opts.Offset
		}
		fmt.Fprintf(&w.sb, " OFFSET %s ROWS", w.bind(offset))
		if opts.Limit != nil {
			fmt.Fprintf(&w.sb, " FETCH NEXT %s ROWS ONLY", w.bind(*opts.Limit))
		}
		return

	case database.DialectMySQL:
		if opts.Limit == nil {
			// MySQL has no OFFSET without LIMIT; use the documented maximum.
			w.sb.WriteString(" LIMIT 18446744073709551615")
		}

	case database.DialectSQLite:
		if opts.Limit == nil {
			w.sb.WriteString(" LIMIT -1")
		}
	}

	if opts.Limit != nil {
		fmt.Fprintf(&w.sb, " LIMIT %s", w.bind(*opts.Limit))
	}
	if opts.Offset != nil {
		fmt.Fprintf(&w.sb, " OFFSET %s", w.bind(*opts.Offset))
	}
}

func (b *Builder) coerce(t *schema.Table, c schema.Column, raw any) (any, error) {
	v, err := b.mapper.CoerceForWrite(c.Type, raw)
	if err != nil {
		reason := err.Error()
		var e *errs.Error
		if errors.As(err, &e) {
			reason = e.Message
		}
		return nil, errs.InvalidValue(t.Name(), c.Name, reason)
	}
	return v, nil
}

func (b *Builder) columnList(names []string, prefix string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = prefix + b.dialect.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	if pv, ok := v.(value.Value); ok {
		return pv.IsNull()
	}
	return false
}

// writer accumulates SQL text and numbers placeholders as args are bound.
type writer struct {
	dialect database.Dialect
	sb      strings.Builder
	args    []any
}

func (b *Builder) newWriter() *writer {
	return &writer{dialect: b.dialect}
}

func (w *writer) bind(v any) string {
	w.args = append(w.args, v)
	return w.dialect.Placeholder(len(w.args))
}
