// Package dialect abstracts the metadata surface of a SQL-speaking data source.
// Every backend exposes the same four enumeration methods (catalogs, schemas,
// tables, columns) plus query execution, so the discovery walker and the
// request executor never need to know which engine they are talking to.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
)

// Column describes one column discovered during introspection.
type Column struct {
	Name       string
	NativeType string
	Nullable   bool
	HasDefault bool
}

// Querier provides query access to a data source. *sql.DB satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Adapter is the backend-specific strategy for metadata enumeration and query
// execution. Implementations must return catalog, schema, and table names in a
// deterministic order and columns in the engine's declared column order.
type Adapter interface {
	// Name reports the dialect identifier, e.g. "mysql" or "trino".
	Name() string
	// HasCatalogs reports whether the backend has a catalog level above
	// schemas. When false, ListCatalogs returns a single empty name and
	// generated routes omit the catalog segment.
	HasCatalogs() bool

	ListCatalogs(ctx context.Context) ([]string, error)
	ListSchemas(ctx context.Context, catalog string) ([]string, error)
	ListTables(ctx context.Context, catalog, schema string) ([]string, error)
	ListColumns(ctx context.Context, catalog, schema, table string) ([]Column, error)

	// SystemCatalogs and SystemSchemas return the built-in exclusion sets for
	// internal namespaces that must never produce endpoints.
	SystemCatalogs() []string
	SystemSchemas() []string

	// QualifyTable renders the fully qualified, quoted table name for use in
	// generated SELECT statements.
	QualifyTable(catalog, schema, table string) string
	// QuoteIdentifier quotes a bare identifier (column name) in the backend's
	// quoting style.
	QuoteIdentifier(name string) string
	// PlaceholderFormat reports the bind-parameter style for generated queries.
	PlaceholderFormat() sq.PlaceholderFormat

	Querier
}

// Constructor builds an adapter around an open database handle. The database
// argument narrows reflection-style adapters to a single schema when set.
type Constructor func(db *sql.DB, database string) Adapter

var constructors = map[string]Constructor{
	"mysql":    func(db *sql.DB, database string) Adapter { return NewMySQL(db, database) },
	"postgres": func(db *sql.DB, database string) Adapter { return NewPostgres(db, database) },
	"trino":    func(db *sql.DB, _ string) Adapter { return NewTrino(db) },
}

// New returns the adapter for the named dialect.
func New(name string, db *sql.DB, database string) (Adapter, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (supported: %v)", name, Supported())
	}
	return ctor(db, database), nil
}

// Supported returns the known dialect names in sorted order.
func Supported() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether a dialect name has a registered adapter.
func IsSupported(name string) bool {
	_, ok := constructors[name]
	return ok
}

// DriverName maps a dialect name to its database/sql driver name.
func DriverName(dialect string) string {
	// lib/pq registers as "postgres"; the other drivers register under the
	// dialect name itself.
	return dialect
}

func scanNames(rows *sql.Rows) ([]string, error) {
	defer func() {
		_ = rows.Close()
	}()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
