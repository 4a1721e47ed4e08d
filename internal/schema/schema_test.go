package schema

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/value"
)

// countingIntrospector serves fixed metadata and counts column lookups.
type countingIntrospector struct {
	tables  map[string][]database.ColumnInfo
	keys    map[string][]string
	release chan struct{} // when set, Columns blocks until closed
	calls   atomic.Int32
	failPK  error
}

func newIntrospector() *countingIntrospector {
	return &countingIntrospector{
		tables: map[string][]database.ColumnInfo{
			"users": {
				{Name: "id", DataType: "integer"},
				{Name: "email", DataType: "character varying(255)", Nullable: true},
				{Name: "created_at", DataType: "timestamp with time zone"},
			},
			"tags": {
				{Name: "post_id", DataType: "bigint"},
				{Name: "tag", DataType: "text"},
			},
			"events": {
				{Name: "payload", DataType: "jsonb", Nullable: true},
			},
		},
		keys: map[string][]string{
			"users": {"id"},
			"tags":  {"post_id", "tag"},
		},
	}
}

func (f *countingIntrospector) Tables(context.Context) ([]string, error) {
	return []string{"events", "ghost", "tags", "users"}, nil
}

func (f *countingIntrospector) Columns(ctx context.Context, table string) ([]database.ColumnInfo, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.tables[table], nil
}

func (f *countingIntrospector) PrimaryKey(_ context.Context, table string) ([]string, error) {
	if f.failPK != nil {
		return nil, f.failPK
	}
	return f.keys[table], nil
}

func TestCatalog_Describe(t *testing.T) {
	cat := NewCatalog(newIntrospector(), nil, nil)

	users, err := cat.Describe(context.Background(), "users")
	require.NoError(t, err)

	assert.Equal(t, "users", users.Name())
	assert.Equal(t, []string{"id", "email", "created_at"}, users.ColumnNames())
	assert.Equal(t, []string{"id"}, users.PrimaryKey())

	email, ok := users.Column("email")
	require.True(t, ok)
	assert.Equal(t, value.Text, email.Type)
	assert.True(t, email.Nullable)

	created, _ := users.Column("created_at")
	assert.Equal(t, value.Timestamp, created.Type)
}

func TestCatalog_CompositeAndMissingKeys(t *testing.T) {
	cat := NewCatalog(newIntrospector(), nil, nil)
	ctx := context.Background()

	tags, err := cat.Describe(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"post_id", "tag"}, tags.PrimaryKey())
	assert.True(t, tags.IsPrimaryKey("tag"))

	events, err := cat.Describe(ctx, "events")
	require.NoError(t, err)
	assert.False(t, events.HasPrimaryKey())
	assert.Empty(t, events.PrimaryKey())

	payload, _ := events.Column("payload")
	assert.Equal(t, value.Unknown, payload.Type)
}

func TestCatalog_UnknownTable(t *testing.T) {
	cat := NewCatalog(newIntrospector(), nil, nil)

	_, err := cat.Describe(context.Background(), "nope")
	assert.True(t, errs.IsUnknownTable(err))
	assert.Equal(t, 0, cat.Len())
}

func TestCatalog_ErrorsAreNotCached(t *testing.T) {
	intro := newIntrospector()
	intro.failPK = errs.New(errs.ErrKindConnectionFailed, "down")
	cat := NewCatalog(intro, nil, nil)

	_, err := cat.Describe(context.Background(), "users")
	assert.True(t, errs.IsConnectionFailed(err))

	intro.failPK = nil
	_, err = cat.Describe(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, int32(2), intro.calls.Load())
}

func TestCatalog_CachesUntilRefresh(t *testing.T) {
	intro := newIntrospector()
	cat := NewCatalog(intro, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cat.Describe(ctx, "users")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), intro.calls.Load())

	cat.Refresh("users")
	_, err := cat.Describe(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int32(2), intro.calls.Load())

	_, err = cat.Describe(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())

	cat.RefreshAll()
	assert.Equal(t, 0, cat.Len())
}

func TestCatalog_ConcurrentMissesShareOneQuery(t *testing.T) {
	intro := newIntrospector()
	intro.release = make(chan struct{})
	cat := NewCatalog(intro, nil, nil)

	const workers = 16
	results := make([]*Table, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tbl, err := cat.Describe(context.Background(), "users")
			assert.NoError(t, err)
			results[i] = tbl
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(intro.release)
	wg.Wait()

	assert.Equal(t, int32(1), intro.calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestCatalog_SharedMissSurvivesFirstCallerCancel(t *testing.T) {
	intro := newIntrospector()
	intro.release = make(chan struct{})
	cat := NewCatalog(intro, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cat.Describe(ctx, "users")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return intro.calls.Load() == 1 }, time.Second, time.Millisecond)

	secondErr := make(chan error, 1)
	var second *Table
	go func() {
		tbl, err := cat.Describe(context.Background(), "users")
		second = tbl
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(intro.release)

	require.NoError(t, <-secondErr)
	require.NoError(t, <-firstErr)
	assert.Equal(t, "users", second.Name())
	assert.Equal(t, int32(1), intro.calls.Load())
	assert.Equal(t, 1, cat.Len())
}

func TestCatalog_DescribeAfterRefreshAllDoesNotJoinOlderFill(t *testing.T) {
	intro := newIntrospector()
	intro.release = make(chan struct{})
	cat := NewCatalog(intro, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := cat.Describe(ctx, "users")
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return intro.calls.Load() == 1 }, time.Second, time.Millisecond)

	cat.RefreshAll()
	go func() {
		defer wg.Done()
		_, err := cat.Describe(ctx, "users")
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return intro.calls.Load() == 2 }, time.Second, time.Millisecond)

	close(intro.release)
	wg.Wait()
	assert.Equal(t, int32(2), intro.calls.Load())
	assert.Equal(t, 1, cat.Len())
}

func TestCatalog_DescribeAfterRefreshDoesNotJoinOlderFill(t *testing.T) {
	intro := newIntrospector()
	intro.release = make(chan struct{})
	cat := NewCatalog(intro, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = cat.Describe(ctx, "users")
	}()
	require.Eventually(t, func() bool { return intro.calls.Load() == 1 }, time.Second, time.Millisecond)

	cat.Refresh("users")
	go func() {
		defer wg.Done()
		_, _ = cat.Describe(ctx, "users")
	}()
	require.Eventually(t, func() bool { return intro.calls.Load() == 2 }, time.Second, time.Millisecond)

	close(intro.release)
	wg.Wait()
}

func TestCatalog_CachedReadsDoNotWaitOnOtherMisses(t *testing.T) {
	intro := newIntrospector()
	cat := NewCatalog(intro, nil, nil)
	ctx := context.Background()

	_, err := cat.Describe(ctx, "users")
	require.NoError(t, err)

	intro.release = make(chan struct{})
	defer close(intro.release)
	go func() { _, _ = cat.Describe(ctx, "tags") }()

	done := make(chan struct{})
	go func() {
		_, _ = cat.Describe(ctx, "users")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cached describe blocked behind an unrelated miss")
	}
}

func TestCatalog_Summary(t *testing.T) {
	cat := NewCatalog(newIntrospector(), nil, nil)

	tables, err := cat.Summary(context.Background())
	require.NoError(t, err)

	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.Name()
	}
	// "ghost" is listed but has no columns, so it is skipped.
	assert.Equal(t, []string{"events", "tags", "users"}, names)
}

func TestNewTable_Validation(t *testing.T) {
	cols := []Column{{Name: "id"}, {Name: "name"}}

	_, err := NewTable("t", cols, []string{"missing"})
	assert.Error(t, err)

	_, err = NewTable("t", append(cols, Column{Name: "id"}), nil)
	assert.Error(t, err)

	tbl, err := NewTable("t", cols, []string{"id"})
	require.NoError(t, err)

	// Mutating the returned slices must not leak into the table.
	got := tbl.Columns()
	got[0].Name = "changed"
	pk := tbl.PrimaryKey()
	pk[0] = "changed"
	assert.Equal(t, []string{"id", "name"}, tbl.ColumnNames())
	assert.Equal(t, []string{"id"}, tbl.PrimaryKey())
}

func TestTable_MarshalJSON(t *testing.T) {
	tbl, err := NewTable("events", []Column{
		{Name: "at", NativeType: "timestamp", Type: value.Timestamp},
	}, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(tbl)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"table": "events",
		"columns": [{"name":"at","type":"timestamp","native_type":"timestamp","nullable":false,"primary_key":false}],
		"primary_key": []
	}`, string(raw))
}

func TestCatalog_IntrospectorErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	intro := newIntrospector()
	intro.failPK = boom
	cat := NewCatalog(intro, nil, nil)

	_, err := cat.Describe(context.Background(), "users")
	assert.ErrorIs(t, err, boom)
}
