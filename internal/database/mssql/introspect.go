package mssql

import (
	"context"

	"github.com/koustreak/rowgate/internal/database"
)

// Tables lists user tables in the configured schema, sorted by name.
func (d *Driver) Tables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT t.name
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE s.name = @p1
		  AND t.is_ms_shipped = 0
		ORDER BY t.name`

	return d.fetchStringList(ctx, q, "failed to list tables", d.schema)
}

// Columns returns the table's columns in column_id order with the declared
// type name ("nvarchar", "datetime2", "bit").
func (d *Driver) Columns(ctx context.Context, table string) ([]database.ColumnInfo, error) {
	const q = `
		SELECT c.name, ty.name, c.is_nullable
		FROM sys.columns c
		JOIN sys.tables t  ON t.object_id = c.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.types ty  ON ty.user_type_id = c.user_type_id
		WHERE s.name = @p1
		  AND t.name = @p2
		ORDER BY c.column_id`

	rows, err := d.db.QueryContext(ctx, q, d.schema, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.ColumnInfo
	for rows.Next() {
		var c database.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	return cols, nil
}

// PrimaryKey returns the primary key index columns in key order.
func (d *Driver) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	const q = `
		SELECT c.name
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c        ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		JOIN sys.tables t         ON t.object_id = i.object_id
		JOIN sys.schemas s        ON s.schema_id = t.schema_id
		WHERE i.is_primary_key = 1
		  AND s.name = @p1
		  AND t.name = @p2
		ORDER BY ic.key_ordinal`

	return d.fetchStringList(ctx, q, "failed to fetch primary key", d.schema, table)
}

func (d *Driver) fetchStringList(ctx context.Context, q, errMsg string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, errMsg)
	}
	defer rows.Close()

	list := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, mapError(err, errMsg)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, errMsg)
	}
	return list, nil
}
