package schema

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/logger"
	"github.com/koustreak/rowgate/internal/value"
)

// Catalog caches table descriptions for the lifetime of a connection pool.
//
// Entries are filled lazily on first Describe and removed only by Refresh or
// RefreshAll. Reads of cached entries take a read lock and never wait on a
// fill in progress for another table. Concurrent misses for the same table
// share one round of metadata queries.
type Catalog struct {
	intro  database.Introspector
	mapper *value.Mapper
	log    *logger.Logger

	mu     sync.RWMutex
	tables map[string]*Table
	gen    map[string]uint64 // bumped by Refresh so stale fills are discarded
	epoch  uint64            // bumped by RefreshAll

	group singleflight.Group
}

// fillTimeout bounds a metadata fill, which runs detached from the caller
// that started it.
const fillTimeout = 30 * time.Second

// NewCatalog builds an empty catalog. A nil mapper means value.Default and a
// nil logger means logging is discarded.
func NewCatalog(intro database.Introspector, mapper *value.Mapper, log *logger.Logger) *Catalog {
	if mapper == nil {
		mapper = value.Default
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Catalog{
		intro:  intro,
		mapper: mapper,
		log:    log.Component("catalog"),
		tables: make(map[string]*Table),
		gen:    make(map[string]uint64),
	}
}

// Describe returns the table's description, querying the backend on a cache miss.
// A table the backend reports no columns for is UnknownTable.
//
// A miss runs to completion even if ctx is cancelled, so callers sharing it
// are not failed by one caller going away.
func (c *Catalog) Describe(ctx context.Context, table string) (*Table, error) {
	c.mu.RLock()
	t, ok := c.tables[table]
	gen, epoch := c.gen[table], c.epoch
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	// Keyed by generation so a Describe after Refresh never joins an older fill.
	key := table + "\x00" + strconv.FormatUint(gen, 10) + "\x00" + strconv.FormatUint(epoch, 10)
	v, err, shared := c.group.Do(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()
		return c.fill(fillCtx, table, gen, epoch)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.DebugEvent().Str("table", table).Msg("shared in-flight describe")
	}
	return v.(*Table), nil
}

func (c *Catalog) fill(ctx context.Context, table string, gen, epoch uint64) (*Table, error) {
	c.log.DebugEvent().Str("table", table).Msg("cache miss, introspecting")

	infos, err := c.intro.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, errs.UnknownTable(table)
	}

	pk, err := c.intro.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}

	cols := make([]Column, len(infos))
	for i, info := range infos {
		cols[i] = Column{
			Name:       info.Name,
			NativeType: info.DataType,
			Type:       c.mapper.ToPortable(info.DataType),
			Nullable:   info.Nullable,
		}
	}

	t, err := NewTable(table, cols, pk)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "inconsistent catalog metadata", err)
	}

	c.mu.Lock()
	if c.gen[table] == gen && c.epoch == epoch {
		c.tables[table] = t
	}
	c.mu.Unlock()

	c.log.DebugEvent().
		Str("table", table).
		Int("columns", len(cols)).
		Strs("primary_key", pk).
		Msg("table cached")
	return t, nil
}

// ListTables enumerates user tables visible to the connected role. The list
// is not cached; it is cheap and callers expect to see new tables.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	return c.intro.Tables(ctx)
}

// Refresh evicts one table so the next Describe re-reads it.
func (c *Catalog) Refresh(table string) {
	c.mu.Lock()
	delete(c.tables, table)
	c.gen[table]++
	c.mu.Unlock()

	c.log.DebugEvent().Str("table", table).Msg("cache entry evicted")
}

// RefreshAll clears the whole cache.
func (c *Catalog) RefreshAll() {
	c.mu.Lock()
	c.tables = make(map[string]*Table)
	c.epoch++
	c.mu.Unlock()

	c.log.Debug("cache cleared")
}

// Summary describes every table visible to the connected role, in name order.
func (c *Catalog) Summary(ctx context.Context) ([]*Table, error) {
	names, err := c.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Table, 0, len(names))
	for _, name := range names {
		t, err := c.Describe(ctx, name)
		if err != nil {
			// Dropped between the listing and the describe.
			if errs.IsUnknownTable(err) {
				continue
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Len reports how many tables are cached.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
