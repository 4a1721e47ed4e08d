package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowgate/internal/database"
	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/schema"
	"github.com/koustreak/rowgate/internal/value"
)

func intPtr(n int) *int { return &n }

func usersTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer},
		{Name: "email", Type: value.Text, Nullable: true},
		{Name: "active", Type: value.Boolean},
		{Name: "created_at", Type: value.Timestamp, Nullable: true},
	}, []string{"id"})
	require.NoError(t, err)
	return tbl
}

func tagsTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("post_tags", []schema.Column{
		{Name: "post_id", Type: value.Integer},
		{Name: "tag", Type: value.Text},
		{Name: "weight", Type: value.Real, Nullable: true},
	}, []string{"post_id", "tag"})
	require.NoError(t, err)
	return tbl
}

func eventsTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("events", []schema.Column{
		{Name: "kind", Type: value.Text},
		{Name: "payload", Type: value.Unknown, Nullable: true},
	}, nil)
	require.NoError(t, err)
	return tbl
}

func TestSelect_Dialects(t *testing.T) {
	opts := SelectOptions{
		Filters:   []Filter{{Column: "active", Op: "=", Value: "true"}},
		Sort:      "email",
		Direction: Descending,
		Limit:     intPtr(2),
		Offset:    intPtr(4),
	}

	tests := []struct {
		dialect database.Dialect
		sql     string
	}{
		{
			database.DialectPostgres,
			`SELECT "id", "email", "active", "created_at" FROM "users" WHERE "active" = $1 ORDER BY "email" DESC LIMIT $2 OFFSET $3`,
		},
		{
			database.DialectSQLite,
			`SELECT "id", "email", "active", "created_at" FROM "users" WHERE "active" = ? ORDER BY "email" DESC LIMIT ? OFFSET ?`,
		},
		{
			database.DialectMySQL,
			"SELECT `id`, `email`, `active`, `created_at` FROM `users` WHERE `active` = ? ORDER BY `email` DESC LIMIT ? OFFSET ?",
		},
		{
			database.DialectSQLServer,
			`SELECT [id], [email], [active], [created_at] FROM [users] WHERE [active] = @p1 ORDER BY [email] DESC OFFSET @p2 ROWS FETCH NEXT @p3 ROWS ONLY`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			q, err := New(tt.dialect, nil).Select(usersTable(t), opts)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, q.SQL)
			assert.Equal(t, OpSelect, q.Op)
			assert.Len(t, q.Columns, 4)
			assert.True(t, q.ReturnsRows())

			// The boolean filter was coerced before binding.
			require.NotEmpty(t, q.Args)
			assert.Equal(t, true, q.Args[0])
		})
	}
}

func TestSelect_SQLServerPaginationArgs(t *testing.T) {
	q, err := New(database.DialectSQLServer, nil).Select(usersTable(t), SelectOptions{
		Sort:   "email",
		Limit:  intPtr(2),
		Offset: intPtr(4),
	})
	require.NoError(t, err)
	// OFFSET is bound before FETCH.
	assert.Equal(t, []any{4, 2}, q.Args)
}

func TestSelect_NoOptions(t *testing.T) {
	q, err := New(database.DialectPostgres, nil).Select(usersTable(t), SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "email", "active", "created_at" FROM "users"`, q.SQL)
	assert.Empty(t, q.Args)
}

func TestSelect_OffsetWithoutLimit(t *testing.T) {
	opts := SelectOptions{Offset: intPtr(10)}

	tests := []struct {
		dialect database.Dialect
		suffix  string
	}{
		{database.DialectPostgres, ` FROM "users" OFFSET $1`},
		{database.DialectSQLite, ` FROM "users" LIMIT -1 OFFSET ?`},
		{database.DialectMySQL, " FROM `users` LIMIT 18446744073709551615 OFFSET ?"},
		{database.DialectSQLServer, ` FROM [users] ORDER BY (SELECT NULL) OFFSET @p1 ROWS`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			q, err := New(tt.dialect, nil).Select(usersTable(t), opts)
			require.NoError(t, err)
			assert.Contains(t, q.SQL, tt.suffix)
			assert.Equal(t, []any{10}, q.Args)
		})
	}
}

func TestSelect_Filters(t *testing.T) {
	b := New(database.DialectPostgres, nil)
	users := usersTable(t)

	q, err := b.Select(users, SelectOptions{Filters: []Filter{
		{Column: "email", Op: "=", Value: nil},
		{Column: "created_at", Op: "!=", Value: value.Null()},
		{Column: "email", Op: "ilike", Value: "%@example.com"},
		{Column: "id", Op: ">=", Value: "10"},
	}})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "email", "active", "created_at" FROM "users" WHERE "email" IS NULL AND "created_at" IS NOT NULL AND "email" ILIKE $1 AND "id" >= $2`,
		q.SQL)
	assert.Equal(t, []any{"%@example.com", int64(10)}, q.Args)
}

func TestSelect_ILikeDegradesToLike(t *testing.T) {
	q, err := New(database.DialectSQLite, nil).Select(usersTable(t), SelectOptions{
		Filters: []Filter{{Column: "email", Op: "ILIKE", Value: "a%"}},
	})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `WHERE "email" LIKE ?`)
}

func TestSelect_Rejections(t *testing.T) {
	b := New(database.DialectPostgres, nil)
	users := usersTable(t)

	tests := []struct {
		name  string
		opts  SelectOptions
		check func(error) bool
	}{
		{"unknown sort column", SelectOptions{Sort: "email; DROP TABLE users"}, errs.IsUnknownColumn},
		{"bad direction", SelectOptions{Sort: "email", Direction: Direction(7)}, errs.IsInvalidValue},
		{"negative limit", SelectOptions{Limit: intPtr(-1)}, errs.IsInvalidValue},
		{"negative offset", SelectOptions{Offset: intPtr(-5)}, errs.IsInvalidValue},
		{"unknown filter column", SelectOptions{Filters: []Filter{{Column: "nope", Op: "=", Value: 1}}}, errs.IsUnknownColumn},
		{"operator not allowed", SelectOptions{Filters: []Filter{{Column: "id", Op: "= 1 OR 1 =", Value: 1}}}, errs.IsInvalidValue},
		{"ordering against null", SelectOptions{Filters: []Filter{{Column: "id", Op: "<", Value: nil}}}, errs.IsInvalidValue},
		{"uncoercible filter value", SelectOptions{Filters: []Filter{{Column: "id", Op: "=", Value: "abc"}}}, errs.IsInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := b.Select(users, tt.opts)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			assert.Empty(t, q.SQL)
		})
	}
}

func TestParseDirection(t *testing.T) {
	for _, in := range []string{"", "asc", "ASC", "Ascending"} {
		d, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, Ascending, d)
	}
	for _, in := range []string{"desc", "DESC", "descending"} {
		d, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, Descending, d)
	}

	_, err := ParseDirection("sideways")
	assert.True(t, errs.IsInvalidValue(err))
}

func TestInsert_Dialects(t *testing.T) {
	values := map[string]any{"id": 1, "email": "a@b.c", "active": "yes"}

	tests := []struct {
		dialect  database.Dialect
		sql      string
		returns  bool
		identity string
	}{
		{
			database.DialectPostgres,
			`INSERT INTO "users" ("id", "email", "active") VALUES ($1, $2, $3) RETURNING "id", "email", "active", "created_at"`,
			true, "",
		},
		{
			database.DialectSQLite,
			`INSERT INTO "users" ("id", "email", "active") VALUES (?, ?, ?) RETURNING "id", "email", "active", "created_at"`,
			true, "",
		},
		{
			database.DialectMySQL,
			"INSERT INTO `users` (`id`, `email`, `active`) VALUES (?, ?, ?)",
			false, "id",
		},
		{
			database.DialectSQLServer,
			`INSERT INTO [users] ([id], [email], [active]) OUTPUT INSERTED.[id], INSERTED.[email], INSERTED.[active], INSERTED.[created_at] VALUES (@p1, @p2, @p3)`,
			true, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			q, err := New(tt.dialect, nil).Insert(usersTable(t), values)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, q.SQL)
			assert.Equal(t, []any{int64(1), "a@b.c", true}, q.Args)
			assert.Equal(t, tt.returns, q.ReturnsRows())
			assert.Equal(t, tt.identity, q.Identity)
		})
	}
}

func TestInsert_Empty(t *testing.T) {
	tests := []struct {
		dialect database.Dialect
		sql     string
	}{
		{database.DialectPostgres, `INSERT INTO "events" DEFAULT VALUES RETURNING "kind", "payload"`},
		{database.DialectMySQL, "INSERT INTO `events` () VALUES ()"},
		{database.DialectSQLServer, `INSERT INTO [events] OUTPUT INSERTED.[kind], INSERTED.[payload] DEFAULT VALUES`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			q, err := New(tt.dialect, nil).Insert(eventsTable(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, q.SQL)
			assert.Empty(t, q.Args)
		})
	}
}

func TestInsert_Rejections(t *testing.T) {
	b := New(database.DialectPostgres, nil)

	_, err := b.Insert(usersTable(t), map[string]any{"id": 1, "nickname": "x"})
	assert.True(t, errs.IsUnknownColumn(err))

	_, err = b.Insert(usersTable(t), map[string]any{"id": "one"})
	require.True(t, errs.IsInvalidValue(err))
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "users", e.Table)
	assert.Equal(t, "id", e.Column)

	_, err = b.Insert(usersTable(t), map[string]any{"created_at": "last tuesday"})
	assert.True(t, errs.IsInvalidValue(err))
}

func TestInsert_KeylessTableStillWorks(t *testing.T) {
	q, err := New(database.DialectMySQL, nil).Insert(eventsTable(t), map[string]any{"kind": "login", "payload": `{"a":1}`})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `events` (`kind`, `payload`) VALUES (?, ?)", q.SQL)
	assert.Empty(t, q.Identity)
}

func TestUpdate(t *testing.T) {
	q, err := New(database.DialectPostgres, nil).Update(tagsTable(t),
		map[string]any{"tag": "go", "post_id": "7"},
		map[string]any{"weight": 0.5},
	)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "post_tags" SET "weight" = $1 WHERE "post_id" = $2 AND "tag" = $3`, q.SQL)
	assert.Equal(t, []any{0.5, int64(7), "go"}, q.Args)
	assert.Equal(t, OpUpdate, q.Op)
	assert.False(t, q.ReturnsRows())
}

func TestUpdate_SQLServer(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	q, err := New(database.DialectSQLServer, nil).Update(usersTable(t),
		map[string]any{"id": 3},
		map[string]any{"created_at": when, "email": nil},
	)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE [users] SET [email] = @p1, [created_at] = @p2 WHERE [id] = @p3`, q.SQL)
	assert.Equal(t, []any{nil, when, int64(3)}, q.Args)
}

func TestUpdate_Rejections(t *testing.T) {
	b := New(database.DialectPostgres, nil)

	tests := []struct {
		name    string
		table   *schema.Table
		key     map[string]any
		changes map[string]any
		check   func(error) bool
	}{
		{"keyless table", eventsTable(t), map[string]any{"kind": "x"}, map[string]any{"payload": "y"}, errs.IsNoPrimaryKey},
		{"partial composite key", tagsTable(t), map[string]any{"post_id": 1}, map[string]any{"weight": 1}, errs.IsIncompleteKey},
		{"non-key column in key", usersTable(t), map[string]any{"id": 1, "email": "x"}, map[string]any{"active": true}, errs.IsUnknownColumn},
		{"null key value", usersTable(t), map[string]any{"id": nil}, map[string]any{"active": true}, errs.IsInvalidValue},
		{"change to key column", usersTable(t), map[string]any{"id": 1}, map[string]any{"id": 2}, errs.IsImmutablePrimaryKey},
		{"unknown change column", usersTable(t), map[string]any{"id": 1}, map[string]any{"nope": 2}, errs.IsUnknownColumn},
		{"empty changes", usersTable(t), map[string]any{"id": 1}, nil, errs.IsInvalidValue},
		{"bad change value", usersTable(t), map[string]any{"id": 1}, map[string]any{"active": "maybe"}, errs.IsInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Update(tt.table, tt.key, tt.changes)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			assert.True(t, errs.IsValidation(err))
		})
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		dialect database.Dialect
		sql     string
	}{
		{database.DialectPostgres, `DELETE FROM "post_tags" WHERE "post_id" = $1 AND "tag" = $2`},
		{database.DialectMySQL, "DELETE FROM `post_tags` WHERE `post_id` = ? AND `tag` = ?"},
		{database.DialectSQLServer, `DELETE FROM [post_tags] WHERE [post_id] = @p1 AND [tag] = @p2`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			q, err := New(tt.dialect, nil).Delete(tagsTable(t), map[string]any{"post_id": 1, "tag": "go"})
			require.NoError(t, err)
			assert.Equal(t, tt.sql, q.SQL)
			assert.Equal(t, []any{int64(1), "go"}, q.Args)
		})
	}
}

func TestDelete_Rejections(t *testing.T) {
	b := New(database.DialectSQLite, nil)

	_, err := b.Delete(eventsTable(t), map[string]any{"kind": "x"})
	assert.True(t, errs.IsNoPrimaryKey(err))

	_, err = b.Delete(tagsTable(t), map[string]any{"tag": "go"})
	assert.True(t, errs.IsIncompleteKey(err))
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "post_id", e.Column)
}

func TestSelectByKey(t *testing.T) {
	q, err := New(database.DialectSQLite, nil).SelectByKey(tagsTable(t), map[string]any{"post_id": "5", "tag": "db"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "post_id", "tag", "weight" FROM "post_tags" WHERE "post_id" = ? AND "tag" = ?`, q.SQL)
	assert.Equal(t, []any{int64(5), "db"}, q.Args)

	_, err = New(database.DialectSQLite, nil).SelectByKey(eventsTable(t), map[string]any{"kind": "x"})
	assert.True(t, errs.IsNoPrimaryKey(err))
}

func TestQuoting_ReservedAndMixedCase(t *testing.T) {
	tbl, err := schema.NewTable("Order", []schema.Column{
		{Name: "select", Type: value.Integer},
		{Name: `we"ird`, Type: value.Text},
	}, []string{"select"})
	require.NoError(t, err)

	q, err := New(database.DialectPostgres, nil).Delete(tbl, map[string]any{"select": 1})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "Order" WHERE "select" = $1`, q.SQL)

	q, err = New(database.DialectPostgres, nil).Select(tbl, SelectOptions{Sort: `we"ird`})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "select", "we""ird" FROM "Order" ORDER BY "we""ird" ASC`, q.SQL)
}
