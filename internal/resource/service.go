// Package resource composes the catalog, the query builder and the gateway
// into the record operations a request layer needs: describe, then build,
// then execute.
package resource

import (
	"context"
	"strings"

	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/gateway"
	"github.com/koustreak/rowgate/internal/logger"
	"github.com/koustreak/rowgate/internal/query"
	"github.com/koustreak/rowgate/internal/schema"
	"github.com/koustreak/rowgate/internal/value"
)

// Service exposes generic CRUD over every table the catalog can describe.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	catalog *schema.Catalog
	builder *query.Builder
	gateway *gateway.Gateway
	log     *logger.Logger
}

func New(catalog *schema.Catalog, builder *query.Builder, gw *gateway.Gateway, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		catalog: catalog,
		builder: builder,
		gateway: gw,
		log:     log.Component("resource"),
	}
}

// --- schema ---

func (s *Service) ListTables(ctx context.Context) ([]string, error) {
	return s.catalog.ListTables(ctx)
}

func (s *Service) Describe(ctx context.Context, table string) (*schema.Table, error) {
	return s.catalog.Describe(ctx, table)
}

// Summary describes every visible table.
func (s *Service) Summary(ctx context.Context) ([]*schema.Table, error) {
	return s.catalog.Summary(ctx)
}

// Refresh forgets the cached description of one table.
func (s *Service) Refresh(table string) { s.catalog.Refresh(table) }

// RefreshAll forgets every cached description.
func (s *Service) RefreshAll() { s.catalog.RefreshAll() }

// --- records ---

// List returns the rows of table matching opts.
func (s *Service) List(ctx context.Context, table string, opts query.SelectOptions) ([]*value.Record, error) {
	t, err := s.catalog.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	q, err := s.builder.Select(t, opts)
	if err != nil {
		return nil, err
	}
	return s.gateway.Read(ctx, q)
}

// Get returns the row identified by key, or a NotFound error.
func (s *Service) Get(ctx context.Context, table string, key map[string]any) (*value.Record, error) {
	t, err := s.catalog.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, t, key)
}

func (s *Service) get(ctx context.Context, t *schema.Table, key map[string]any) (*value.Record, error) {
	q, err := s.builder.SelectByKey(t, key)
	if err != nil {
		return nil, err
	}
	recs, err := s.gateway.Read(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &errs.Error{Kind: errs.ErrKindNotFound, Message: "record not found", Table: t.Name()}
	}
	return recs[0], nil
}

// Create inserts one row and returns it as stored. Where the backend only
// reports the generated key, the row is read back by primary key.
func (s *Service) Create(ctx context.Context, table string, values map[string]any) (*value.Record, error) {
	t, err := s.catalog.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	q, err := s.builder.Insert(t, values)
	if err != nil {
		return nil, err
	}
	res, err := s.gateway.Write(ctx, q)
	if err != nil {
		return nil, err
	}

	if res.Created != nil && res.Created.Len() == len(t.Columns()) {
		return res.Created, nil
	}

	if key, ok := createdKey(t, values, res.Created); ok {
		rec, err := s.get(ctx, t, key)
		if err == nil {
			return rec, nil
		}
		s.log.WarnEvent().Err(err).Str("table", t.Name()).Msg("could not read back created row")
	}

	// No way to identify the row; echo what was written.
	rec := value.NewRecord(len(values))
	for _, c := range t.Columns() {
		if raw, ok := values[c.Name]; ok {
			rec.Set(c.Name, value.Default.Decode(raw))
		}
	}
	if res.Created != nil {
		res.Created.Each(func(col string, v value.Value) { rec.Set(col, v) })
	}
	return rec, nil
}

// createdKey assembles the primary key of a just-inserted row from the
// supplied values and any generated key the backend reported.
func createdKey(t *schema.Table, values map[string]any, generated *value.Record) (map[string]any, bool) {
	if !t.HasPrimaryKey() {
		return nil, false
	}
	key := make(map[string]any, len(t.PrimaryKey()))
	for _, col := range t.PrimaryKey() {
		if generated != nil {
			if v, ok := generated.Get(col); ok && !v.IsNull() {
				key[col] = v.Any()
				continue
			}
		}
		raw, ok := values[col]
		if !ok || raw == nil {
			return nil, false
		}
		key[col] = raw
	}
	return key, true
}

// Update changes the row identified by key. A zero RowsAffected in the
// result means no such row.
func (s *Service) Update(ctx context.Context, table string, key, changes map[string]any) (gateway.Result, error) {
	t, err := s.catalog.Describe(ctx, table)
	if err != nil {
		return gateway.Result{}, err
	}
	q, err := s.builder.Update(t, key, changes)
	if err != nil {
		return gateway.Result{}, err
	}
	return s.gateway.Write(ctx, q)
}

// Delete removes the row identified by key. A zero RowsAffected in the
// result means no such row.
func (s *Service) Delete(ctx context.Context, table string, key map[string]any) (gateway.Result, error) {
	t, err := s.catalog.Describe(ctx, table)
	if err != nil {
		return gateway.Result{}, err
	}
	q, err := s.builder.Delete(t, key)
	if err != nil {
		return gateway.Result{}, err
	}
	return s.gateway.Write(ctx, q)
}

// ParseKey splits a path key ("7" or "7,go" for a composite key) into a key
// map, assigning parts to primary key columns in key order. The last column
// receives the remainder, so only it may contain commas.
func ParseKey(t *schema.Table, raw string) (map[string]any, error) {
	pk := t.PrimaryKey()
	if len(pk) == 0 {
		return nil, errs.NoPrimaryKey(t.Name())
	}

	parts := strings.SplitN(raw, ",", len(pk))
	key := make(map[string]any, len(pk))
	for i, col := range pk {
		if i >= len(parts) || parts[i] == "" {
			return nil, errs.IncompleteKey(t.Name(), col)
		}
		key[col] = parts[i]
	}
	return key, nil
}
