package registry

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-autoapi/internal/dialect"
	"sql-autoapi/internal/discovery"
	"sql-autoapi/internal/sqlutil"
)

type fakeAdapter struct {
	catalogs     []string
	schemas      map[string][]string
	tables       map[string][]string
	columns      map[string][]dialect.Column
	withCatalogs bool
}

func (f *fakeAdapter) Name() string      { return "fake" }
func (f *fakeAdapter) HasCatalogs() bool { return f.withCatalogs }

func (f *fakeAdapter) ListCatalogs(context.Context) ([]string, error) {
	if !f.withCatalogs {
		return []string{""}, nil
	}
	return f.catalogs, nil
}

func (f *fakeAdapter) ListSchemas(_ context.Context, catalog string) ([]string, error) {
	return f.schemas[catalog], nil
}

func (f *fakeAdapter) ListTables(_ context.Context, catalog, schema string) ([]string, error) {
	return f.tables[catalog+"/"+schema], nil
}

func (f *fakeAdapter) ListColumns(_ context.Context, catalog, schema, table string) ([]dialect.Column, error) {
	return f.columns[catalog+"/"+schema+"/"+table], nil
}

func (f *fakeAdapter) SystemCatalogs() []string { return nil }
func (f *fakeAdapter) SystemSchemas() []string  { return nil }

func (f *fakeAdapter) QualifyTable(catalog, schema, table string) string {
	return sqlutil.QualifyAnsi(catalog, schema, table)
}

func (f *fakeAdapter) QuoteIdentifier(name string) string { return sqlutil.QuoteAnsi(name) }

func (f *fakeAdapter) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }

func (f *fakeAdapter) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func analyticsAdapter() *fakeAdapter {
	return &fakeAdapter{
		withCatalogs: true,
		catalogs:     []string{"analytics"},
		schemas:      map[string][]string{"analytics": {"public"}},
		tables:       map[string][]string{"analytics/public": {"logs", "users"}},
		columns: map[string][]dialect.Column{
			"analytics/public/users": {
				{Name: "id", NativeType: "integer"},
				{Name: "name", NativeType: "varchar", Nullable: true},
				{Name: "active", NativeType: "boolean"},
			},
			"analytics/public/logs": {
				{Name: "id", NativeType: "integer"},
				{Name: "payload", NativeType: "jsonb", Nullable: true},
			},
		},
	}
}

func TestBuild_SkipIsolation(t *testing.T) {
	sources := []DataSource{{Name: "warehouse", Adapter: analyticsAdapter()}}

	endpoints, stats, err := Build(context.Background(), sources, nil)
	require.NoError(t, err)

	// logs has an unsupported jsonb column and is absent; users still appears.
	require.Len(t, endpoints, 1)
	assert.Equal(t, "/analytics/public/users", endpoints[0].Route)
	assert.Equal(t, "public_users", endpoints[0].Schema.Name)
	assert.Equal(t, []string{"id", "name", "active"}, endpoints[0].Schema.FieldNames())
	assert.Equal(t, 2, stats.TablesVisited)
	assert.Equal(t, 1, stats.TablesSkipped)
}

func TestBuild_RouteDeterminism(t *testing.T) {
	sources := []DataSource{{Name: "warehouse", Adapter: analyticsAdapter()}}

	first, _, err := Build(context.Background(), sources, nil)
	require.NoError(t, err)
	second, _, err := Build(context.Background(), sources, nil)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Route, second[i].Route)
		assert.Equal(t, first[i].Schema.FieldNames(), second[i].Schema.FieldNames())
	}
}

func TestBuild_NoCatalogSegment(t *testing.T) {
	adapter := &fakeAdapter{
		schemas: map[string][]string{"": {"appdb"}},
		tables:  map[string][]string{"/appdb": {"orders"}},
		columns: map[string][]dialect.Column{
			"/appdb/orders": {{Name: "id", NativeType: "int"}},
		},
	}

	endpoints, _, err := Build(context.Background(), []DataSource{{Name: "db", Adapter: adapter}}, nil)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, "/appdb/orders", endpoints[0].Route)
}

func TestBuild_RouteCollisionLaterWins(t *testing.T) {
	mkAdapter := func(idCol string) *fakeAdapter {
		return &fakeAdapter{
			schemas: map[string][]string{"": {"appdb"}},
			tables:  map[string][]string{"/appdb": {"orders"}},
			columns: map[string][]dialect.Column{
				"/appdb/orders": {{Name: idCol, NativeType: "int"}},
			},
		}
	}

	sources := []DataSource{
		{Name: "first", Adapter: mkAdapter("id")},
		{Name: "second", Adapter: mkAdapter("order_id")},
	}

	endpoints, stats, err := Build(context.Background(), sources, nil)
	require.NoError(t, err)

	require.Len(t, endpoints, 1)
	assert.Equal(t, 1, stats.RouteCollisions)
	assert.Equal(t, "second", endpoints[0].Binding.Source)
	assert.Equal(t, []string{"order_id"}, endpoints[0].Schema.FieldNames())
}

func TestBuild_SkipsUnroutableTableName(t *testing.T) {
	adapter := &fakeAdapter{
		schemas: map[string][]string{"": {"appdb"}},
		tables:  map[string][]string{"/appdb": {"a{b", "orders"}},
		columns: map[string][]dialect.Column{
			"/appdb/a{b":    {{Name: "id", NativeType: "int"}},
			"/appdb/orders": {{Name: "id", NativeType: "int"}},
		},
	}

	endpoints, stats, err := Build(context.Background(), []DataSource{{Name: "db", Adapter: adapter}}, nil)
	require.NoError(t, err)

	// A brace in a table name cannot be registered as a mux pattern; the
	// table is skipped, the rest of the source survives.
	require.Len(t, endpoints, 1)
	assert.Equal(t, "/appdb/orders", endpoints[0].Route)
	assert.Equal(t, 2, stats.TablesVisited)
	assert.Equal(t, 1, stats.TablesSkipped)
}

func TestRoutableName(t *testing.T) {
	assert.True(t, RoutableName("orders"))
	assert.True(t, RoutableName("order items"))
	assert.False(t, RoutableName(""))
	assert.False(t, RoutableName("a{b"))
	assert.False(t, RoutableName("a}b"))
	assert.False(t, RoutableName("a/b"))
}

func TestBuild_EmptySourceIsValid(t *testing.T) {
	adapter := &fakeAdapter{schemas: map[string][]string{"": nil}}

	endpoints, stats, err := Build(context.Background(), []DataSource{{Name: "empty", Adapter: adapter}}, nil)
	require.NoError(t, err)
	assert.Empty(t, endpoints)
	assert.Zero(t, stats.TablesVisited)
}

func TestBuild_AppliesSourceFilter(t *testing.T) {
	sources := []DataSource{{
		Name:    "warehouse",
		Adapter: analyticsAdapter(),
		Filter:  discovery.Filter{ExcludeTables: []string{"users"}},
	}}

	endpoints, _, err := Build(context.Background(), sources, nil)
	require.NoError(t, err)
	assert.Empty(t, endpoints) // logs is unsupported, users is excluded
}

func TestRoute(t *testing.T) {
	assert.Equal(t, "/analytics/public/users", Route("analytics", "public", "users"))
	assert.Equal(t, "/appdb/orders", Route("", "appdb", "orders"))
}
