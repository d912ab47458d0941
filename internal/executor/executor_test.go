package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-autoapi/internal/dialect"
	"sql-autoapi/internal/registry"
	"sql-autoapi/internal/schema"
	"sql-autoapi/internal/sqlutil"
)

// testAdapter wires a sqlmock handle behind the adapter contract.
type testAdapter struct {
	db *sql.DB
}

func (a *testAdapter) Name() string      { return "test" }
func (a *testAdapter) HasCatalogs() bool { return true }

func (a *testAdapter) ListCatalogs(context.Context) ([]string, error) { return nil, nil }
func (a *testAdapter) ListSchemas(context.Context, string) ([]string, error) {
	return nil, nil
}
func (a *testAdapter) ListTables(context.Context, string, string) ([]string, error) {
	return nil, nil
}
func (a *testAdapter) ListColumns(context.Context, string, string, string) ([]dialect.Column, error) {
	return nil, nil
}

func (a *testAdapter) SystemCatalogs() []string { return nil }
func (a *testAdapter) SystemSchemas() []string  { return nil }

func (a *testAdapter) QualifyTable(catalog, schemaName, table string) string {
	return sqlutil.QualifyAnsi(catalog, schemaName, table)
}

func (a *testAdapter) QuoteIdentifier(name string) string { return sqlutil.QuoteAnsi(name) }

func (a *testAdapter) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }

func (a *testAdapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, query, args...)
}

func usersEndpoint(t *testing.T) (registry.Endpoint, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	resp, err := schema.Synthesize("public", "users", []dialect.Column{
		{Name: "id", NativeType: "integer"},
		{Name: "name", NativeType: "varchar", Nullable: true},
		{Name: "active", NativeType: "boolean"},
	})
	require.NoError(t, err)

	endpoint := registry.Endpoint{
		Route:  "/analytics/public/users",
		Schema: resp,
		Binding: registry.Binding{
			Source:  "warehouse",
			Adapter: &testAdapter{db: db},
			Catalog: "analytics",
			Schema:  "public",
			Table:   "users",
		},
	}
	return endpoint, mock, func() { _ = db.Close() }
}

const usersQuery = `SELECT "id", "name", "active" FROM "analytics"."public"."users" LIMIT 2`

func TestFetch_LimitBound(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(usersQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active"}).
			AddRow(1, "ada", true).
			AddRow(2, "brin", false))

	rows, err := Fetch(context.Background(), endpoint, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Value(0))
	assert.Equal(t, "ada", rows[0].Value(1))
	assert.Equal(t, true, rows[0].Value(2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetch_DefaultLimit(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(`SELECT "id", "name", "active" FROM "analytics"."public"."users" LIMIT 10`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active"}))

	rows, err := Fetch(context.Background(), endpoint, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetch_NullsBecomeJSONNull(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(usersQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active"}).
			AddRow(7, nil, true).
			AddRow(8, "grace", nil))

	rows, err := Fetch(context.Background(), endpoint, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first, err := json.Marshal(rows[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"name":null,"active":true}`, string(first))

	second, err := json.Marshal(rows[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":8,"name":"grace","active":null}`, string(second))
}

func TestRow_MarshalJSON_PreservesFieldOrder(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(usersQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active"}).
			AddRow(1, "ada", true))

	rows, err := Fetch(context.Background(), endpoint, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	raw, err := json.Marshal(rows[0])
	require.NoError(t, err)
	// Exact byte comparison: key order must follow the schema, not map order.
	assert.Equal(t, `{"id":1,"name":"ada","active":true}`, string(raw))
}

func TestFetch_QueryFailureIsBackendError(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(usersQuery).WillReturnError(errors.New("connection refused"))

	_, err := Fetch(context.Background(), endpoint, 2)
	require.Error(t, err)

	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, "warehouse", backendErr.Source)
	assert.Equal(t, "users", backendErr.Table)
	assert.Contains(t, backendErr.Error(), "connection refused")
}

func TestFetch_RowErrorIsBackendError(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(usersQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active"}).
			AddRow(1, "ada", true).
			RowError(0, errors.New("driver: bad connection")))

	_, err := Fetch(context.Background(), endpoint, 2)
	require.Error(t, err)

	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr))
}
