package dialect

import (
	"context"
	"database/sql"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"sql-autoapi/internal/sqlutil"
)

// Trino is the command-style adapter for federated query engines exposing a
// catalog/schema/table hierarchy. Names are obtained by issuing discovery
// statements (SHOW CATALOGS, SHOW SCHEMAS FROM, SHOW TABLES FROM) and columns
// via DESCRIBE; identifiers cannot be bound as parameters in these statements,
// so they are quoted and interpolated.
type Trino struct {
	db *sql.DB
}

// NewTrino creates a Trino adapter over an open handle.
func NewTrino(db *sql.DB) *Trino {
	return &Trino{db: db}
}

func (t *Trino) Name() string      { return "trino" }
func (t *Trino) HasCatalogs() bool { return true }

func (t *Trino) ListCatalogs(ctx context.Context) ([]string, error) {
	return t.showNames(ctx, "SHOW CATALOGS")
}

func (t *Trino) ListSchemas(ctx context.Context, catalog string) ([]string, error) {
	return t.showNames(ctx, "SHOW SCHEMAS FROM "+sqlutil.QuoteAnsi(catalog))
}

func (t *Trino) ListTables(ctx context.Context, catalog, schema string) ([]string, error) {
	return t.showNames(ctx, "SHOW TABLES FROM "+sqlutil.QualifyAnsi(catalog, schema))
}

func (t *Trino) ListColumns(ctx context.Context, catalog, schema, table string) ([]Column, error) {
	query := "DESCRIBE " + sqlutil.QualifyAnsi(catalog, schema, table)
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	// DESCRIBE emits Column, Type, Extra, Comment. Trino does not report
	// nullability or defaults here, so every column is treated as nullable,
	// matching the engine's own relaxed NULL handling for federated sources.
	var columns []Column
	for rows.Next() {
		var name, nativeType, extra, comment sql.NullString
		if err := rows.Scan(&name, &nativeType, &extra, &comment); err != nil {
			return nil, err
		}
		columns = append(columns, Column{
			Name:       name.String,
			NativeType: nativeType.String,
			Nullable:   true,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

func (t *Trino) SystemCatalogs() []string {
	return []string{"jmx", "memory", "system", "tpcds", "tpch"}
}

func (t *Trino) SystemSchemas() []string {
	return []string{"default", "information_schema"}
}

func (t *Trino) QualifyTable(catalog, schema, table string) string {
	return sqlutil.QualifyAnsi(catalog, schema, table)
}

func (t *Trino) QuoteIdentifier(name string) string { return sqlutil.QuoteAnsi(name) }

func (t *Trino) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }

func (t *Trino) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.db.QueryContext(ctx, query, args...)
}

// showNames runs a single-column SHOW statement and returns the names sorted,
// since SHOW output order is not guaranteed, and route generation must be
// deterministic across discovery passes.
func (t *Trino) showNames(ctx context.Context, query string) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	names, err := scanNames(rows)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
