package dialect

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"sql-autoapi/internal/sqlutil"
)

// MySQL is the reflection-style adapter for MySQL-family engines (MySQL,
// MariaDB, TiDB). It reads INFORMATION_SCHEMA in one pass per level. MySQL has
// no catalog concept above schemas, so generated routes carry only
// /{schema}/{table}.
type MySQL struct {
	db *sql.DB
	// database narrows discovery to a single schema when non-empty.
	database string
}

// NewMySQL creates a MySQL adapter over an open handle.
func NewMySQL(db *sql.DB, database string) *MySQL {
	return &MySQL{db: db, database: database}
}

func (m *MySQL) Name() string      { return "mysql" }
func (m *MySQL) HasCatalogs() bool { return false }

func (m *MySQL) ListCatalogs(ctx context.Context) ([]string, error) {
	// Single implicit catalog; the walker substitutes the schema level.
	return []string{""}, nil
}

func (m *MySQL) ListSchemas(ctx context.Context, _ string) ([]string, error) {
	if m.database != "" {
		return []string{m.database}, nil
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT SCHEMA_NAME
		FROM INFORMATION_SCHEMA.SCHEMATA
		ORDER BY SCHEMA_NAME
	`)
	if err != nil {
		return nil, err
	}
	return scanNames(rows)
}

func (m *MySQL) ListTables(ctx context.Context, _ string, schema string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`, schema)
	if err != nil {
		return nil, err
	}
	return scanNames(rows)
}

func (m *MySQL) ListColumns(ctx context.Context, _ string, schema, table string) ([]Column, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, schema, table)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		var columnDefault sql.NullString
		if err := rows.Scan(&col.Name, &col.NativeType, &isNullable, &columnDefault); err != nil {
			return nil, err
		}
		col.Nullable = strings.EqualFold(isNullable, "YES")
		col.HasDefault = columnDefault.Valid
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

func (m *MySQL) SystemCatalogs() []string { return nil }

func (m *MySQL) SystemSchemas() []string {
	return []string{"information_schema", "performance_schema", "mysql", "sys", "metrics_schema"}
}

func (m *MySQL) QualifyTable(_ string, schema, table string) string {
	return sqlutil.QualifyBacktick(schema, table)
}

func (m *MySQL) QuoteIdentifier(name string) string { return sqlutil.QuoteBacktick(name) }

func (m *MySQL) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }

func (m *MySQL) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return m.db.QueryContext(ctx, query, args...)
}
