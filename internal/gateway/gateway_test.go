package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/query"
	"github.com/koustreak/rowgate/internal/schema"
	"github.com/koustreak/rowgate/internal/value"
)

// scriptedDB answers each Query/Exec call with the next scripted response.
type scriptedDB struct {
	mu        sync.Mutex
	queries   []func(ctx context.Context) (database.Rows, error)
	execs     []func(ctx context.Context) (database.Result, error)
	calls     int
	execCalls int
	opened    []*fakeRows
}

func (db *scriptedDB) Ping(context.Context) error { return nil }
func (db *scriptedDB) Close()                     {}
func (db *scriptedDB) Dialect() database.Dialect  { return database.DialectSQLite }

func (db *scriptedDB) Query(ctx context.Context, _ string, _ ...any) (database.Rows, error) {
	db.mu.Lock()
	fn := db.queries[db.calls]
	db.calls++
	db.mu.Unlock()

	rows, err := fn(ctx)
	if fr, ok := rows.(*fakeRows); ok {
		db.opened = append(db.opened, fr)
	}
	return rows, err
}

func (db *scriptedDB) Exec(ctx context.Context, _ string, _ ...any) (database.Result, error) {
	db.mu.Lock()
	fn := db.execs[db.execCalls]
	db.execCalls++
	db.mu.Unlock()
	return fn(ctx)
}

type fakeRows struct {
	cols   []string
	data   [][]any
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	for i, d := range dest {
		*(d.(*any)) = r.data[r.pos-1][i]
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *fakeRows) Close()                     { r.closed = true }
func (r *fakeRows) Err() error                 { return nil }

func rowsOf(cols []string, data ...[]any) func(context.Context) (database.Rows, error) {
	return func(context.Context) (database.Rows, error) {
		return &fakeRows{cols: cols, data: data}, nil
	}
}

func failWith(kind errs.ErrKind) func(context.Context) (database.Rows, error) {
	return func(context.Context) (database.Rows, error) {
		return nil, errs.New(kind, "scripted failure")
	}
}

func usersTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer},
		{Name: "email", Type: value.Text, Nullable: true},
		{Name: "active", Type: value.Boolean},
	}, []string{"id"})
	require.NoError(t, err)
	return tbl
}

func selectUsers(t *testing.T) query.Query {
	t.Helper()
	q, err := query.New(database.DialectSQLite, nil).Select(usersTable(t), query.SelectOptions{})
	require.NoError(t, err)
	return q
}

var userCols = []string{"id", "email", "active"}

func TestRead_DecodesWithColumnTypes(t *testing.T) {
	db := &scriptedDB{queries: []func(context.Context) (database.Rows, error){
		rowsOf(userCols,
			[]any{int64(1), []byte("a@b.c"), int64(1)},
			[]any{int64(2), nil, int64(0)},
		),
	}}
	g := New(db, Options{})

	recs, err := g.Read(context.Background(), selectUsers(t))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, userCols, recs[0].Columns())
	email, _ := recs[0].Get("email")
	assert.Equal(t, value.TextValue("a@b.c"), email)
	active, _ := recs[0].Get("active")
	assert.Equal(t, value.BooleanValue(true), active)

	missing, _ := recs[1].Get("email")
	assert.True(t, missing.IsNull())
	assert.True(t, db.opened[0].closed)
}

func TestRead_EmptyResultIsNotNil(t *testing.T) {
	db := &scriptedDB{queries: []func(context.Context) (database.Rows, error){rowsOf(userCols)}}

	recs, err := New(db, Options{}).Read(context.Background(), selectUsers(t))
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestRead_RetriesTransientFailureOnce(t *testing.T) {
	db := &scriptedDB{queries: []func(context.Context) (database.Rows, error){
		failWith(errs.ErrKindConnectionFailed),
		rowsOf(userCols, []any{int64(1), "x", true}),
	}}
	g := New(db, Options{RetryReads: true})

	recs, err := g.Read(context.Background(), selectUsers(t))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 2, db.calls)
}

func TestRead_RetryGivesUpAfterSecondFailure(t *testing.T) {
	db := &scriptedDB{queries: []func(context.Context) (database.Rows, error){
		failWith(errs.ErrKindTimeout),
		failWith(errs.ErrKindTimeout),
		rowsOf(userCols),
	}}
	g := New(db, Options{RetryReads: true})

	_, err := g.Read(context.Background(), selectUsers(t))
	assert.True(t, errs.IsTimeout(err))
	assert.Equal(t, 2, db.calls)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "users", e.Table)
}

func TestRead_NoRetryForNonTransientOrWhenDisabled(t *testing.T) {
	db := &scriptedDB{queries: []func(context.Context) (database.Rows, error){
		failWith(errs.ErrKindConstraintViolation),
		rowsOf(userCols),
	}}
	_, err := New(db, Options{RetryReads: true}).Read(context.Background(), selectUsers(t))
	assert.True(t, errs.IsConstraintViolation(err))
	assert.Equal(t, 1, db.calls)

	db = &scriptedDB{queries: []func(context.Context) (database.Rows, error){
		failWith(errs.ErrKindConnectionFailed),
		rowsOf(userCols),
	}}
	_, err = New(db, Options{}).Read(context.Background(), selectUsers(t))
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Equal(t, 1, db.calls)
}

func TestRead_NoRetryAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db := &scriptedDB{queries: []func(context.Context) (database.Rows, error){
		func(context.Context) (database.Rows, error) {
			cancel()
			return nil, errs.New(errs.ErrKindTimeout, "canceled")
		},
		rowsOf(userCols),
	}}

	_, err := New(db, Options{RetryReads: true}).Read(ctx, selectUsers(t))
	assert.True(t, errs.IsTimeout(err))
	assert.Equal(t, 1, db.calls)
}

func TestRead_PerAttemptDeadline(t *testing.T) {
	blockUntilDone := func(ctx context.Context) (database.Rows, error) {
		<-ctx.Done()
		return nil, errs.Wrap(errs.ErrKindTimeout, "deadline", ctx.Err())
	}
	db := &scriptedDB{queries: []func(context.Context) (database.Rows, error){blockUntilDone, blockUntilDone}}
	g := New(db, Options{QueryTimeout: 10 * time.Millisecond, RetryReads: true})

	start := time.Now()
	_, err := g.Read(context.Background(), selectUsers(t))
	assert.True(t, errs.IsTimeout(err))
	assert.Equal(t, 2, db.calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRead_RejectsWriteStatements(t *testing.T) {
	q, err := query.New(database.DialectSQLite, nil).Delete(usersTable(t), map[string]any{"id": 1})
	require.NoError(t, err)

	_, err = New(&scriptedDB{}, Options{}).Read(context.Background(), q)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestWrite_ReturningInsert(t *testing.T) {
	q, err := query.New(database.DialectSQLite, nil).Insert(usersTable(t), map[string]any{"email": "n@x.io", "active": true})
	require.NoError(t, err)

	db := &scriptedDB{queries: []func(context.Context) (database.Rows, error){
		rowsOf(userCols, []any{int64(9), "n@x.io", int64(1)}),
	}}
	res, err := New(db, Options{}).Write(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.RowsAffected)
	assert.False(t, res.NotFound())
	require.NotNil(t, res.Created)
	id, _ := res.Created.Get("id")
	assert.Equal(t, value.IntegerValue(9), id)
}

func TestWrite_LastInsertID(t *testing.T) {
	q, err := query.New(database.DialectMySQL, nil).Insert(usersTable(t), map[string]any{"email": "n@x.io"})
	require.NoError(t, err)

	db := &scriptedDB{execs: []func(context.Context) (database.Result, error){
		func(context.Context) (database.Result, error) {
			return database.Result{RowsAffected: 1, LastInsertID: 42, HasLastInsertID: true}, nil
		},
	}}
	res, err := New(db, Options{}).Write(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, res.Created)
	assert.Equal(t, []string{"id"}, res.Created.Columns())
	id, _ := res.Created.Get("id")
	assert.Equal(t, value.IntegerValue(42), id)
}

func TestWrite_ZeroRowsIsNotFoundNotError(t *testing.T) {
	q, err := query.New(database.DialectSQLite, nil).Delete(usersTable(t), map[string]any{"id": 404})
	require.NoError(t, err)

	db := &scriptedDB{execs: []func(context.Context) (database.Result, error){
		func(context.Context) (database.Result, error) { return database.Result{}, nil },
	}}
	res, err := New(db, Options{}).Write(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, res.NotFound())
	assert.Nil(t, res.Created)
}

func TestWrite_NeverRetried(t *testing.T) {
	q, err := query.New(database.DialectSQLite, nil).Update(usersTable(t), map[string]any{"id": 1}, map[string]any{"active": false})
	require.NoError(t, err)

	db := &scriptedDB{execs: []func(context.Context) (database.Result, error){
		func(context.Context) (database.Result, error) {
			return database.Result{}, errs.New(errs.ErrKindConnectionFailed, "reset")
		},
		func(context.Context) (database.Result, error) { return database.Result{RowsAffected: 1}, nil },
	}}
	_, err = New(db, Options{RetryReads: true}).Write(context.Background(), q)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Equal(t, 1, db.execCalls)
}

func TestExecute_Modes(t *testing.T) {
	db := &scriptedDB{
		queries: []func(context.Context) (database.Rows, error){rowsOf(userCols, []any{int64(1), "a", true})},
		execs: []func(context.Context) (database.Result, error){
			func(context.Context) (database.Result, error) { return database.Result{RowsAffected: 1}, nil },
		},
	}
	g := New(db, Options{})

	out, err := g.Execute(context.Background(), selectUsers(t), Read)
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)

	del, err := query.New(database.DialectSQLite, nil).Delete(usersTable(t), map[string]any{"id": 1})
	require.NoError(t, err)
	out, err = g.Execute(context.Background(), del, Write)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Result.RowsAffected)

	_, err = g.Execute(context.Background(), selectUsers(t), Write)
	assert.True(t, errs.IsQueryFailed(err))
}
