package dialect

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"sql-autoapi/internal/sqlutil"
)

// Postgres is the reflection-style adapter for PostgreSQL. A connection is
// scoped to a single database, and databases are not cross-queryable, so
// Postgres has no catalog segment either; routes are /{schema}/{table}.
type Postgres struct {
	db *sql.DB
	// database is informational only; the handle is already scoped to it.
	database string
}

// NewPostgres creates a Postgres adapter over an open handle.
func NewPostgres(db *sql.DB, database string) *Postgres {
	return &Postgres{db: db, database: database}
}

func (p *Postgres) Name() string      { return "postgres" }
func (p *Postgres) HasCatalogs() bool { return false }

func (p *Postgres) ListCatalogs(ctx context.Context) ([]string, error) {
	return []string{""}, nil
}

func (p *Postgres) ListSchemas(ctx context.Context, _ string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT schema_name
		FROM information_schema.schemata
		ORDER BY schema_name
	`)
	if err != nil {
		return nil, err
	}
	return scanNames(rows)
}

func (p *Postgres) ListTables(ctx context.Context, _ string, schema string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name
	`, schema)
	if err != nil {
		return nil, err
	}
	return scanNames(rows)
}

func (p *Postgres) ListColumns(ctx context.Context, _ string, schema, table string) ([]Column, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
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

func (p *Postgres) SystemCatalogs() []string { return nil }

func (p *Postgres) SystemSchemas() []string {
	return []string{"information_schema", "pg_catalog", "pg_toast"}
}

func (p *Postgres) QualifyTable(_ string, schema, table string) string {
	return sqlutil.QualifyAnsi(schema, table)
}

func (p *Postgres) QuoteIdentifier(name string) string { return sqlutil.QuoteAnsi(name) }

func (p *Postgres) PlaceholderFormat() sq.PlaceholderFormat { return sq.Dollar }

func (p *Postgres) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}
