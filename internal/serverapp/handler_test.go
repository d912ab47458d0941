package serverapp

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-autoapi/internal/config"
	"sql-autoapi/internal/dialect"
	"sql-autoapi/internal/logging"
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

func TestEndpointHandler_ReturnsRows(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(`SELECT "id", "name" FROM "analytics"."public"."users" LIMIT 10`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "ada").
			AddRow(2, "brin"))

	rec := httptest.NewRecorder()
	endpointHandler(endpoint, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.Route, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"id":1,"name":"ada"},{"id":2,"name":"brin"}]`, rec.Body.String())
}

func TestEndpointHandler_EmptyTableReturnsEmptyArray(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(`SELECT "id", "name" FROM "analytics"."public"."users" LIMIT 10`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	rec := httptest.NewRecorder()
	endpointHandler(endpoint, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.Route, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestEndpointHandler_LimitParam(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(`SELECT "id", "name" FROM "analytics"."public"."users" LIMIT 3`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ada"))

	rec := httptest.NewRecorder()
	endpointHandler(endpoint, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.Route+"?limit=3", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointHandler_NonPositiveLimitUsesDefault(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	for _, raw := range []string{"0", "-5"} {
		mock.ExpectQuery(`SELECT "id", "name" FROM "analytics"."public"."users" LIMIT 10`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ada"))

		rec := httptest.NewRecorder()
		endpointHandler(endpoint, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.Route+"?limit="+raw, nil))

		assert.Equal(t, http.StatusOK, rec.Code, "limit=%s", raw)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndpointHandler_InvalidLimit(t *testing.T) {
	endpoint, _, done := usersEndpoint(t)
	defer done()

	for _, raw := range []string{"abc", "1.5", "10x"} {
		rec := httptest.NewRecorder()
		endpointHandler(endpoint, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.Route+"?limit="+raw, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", raw)
		assert.Contains(t, rec.Body.String(), "invalid limit")
	}
}

func TestEndpointHandler_MethodNotAllowed(t *testing.T) {
	endpoint, _, done := usersEndpoint(t)
	defer done()

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		endpointHandler(endpoint, nil).ServeHTTP(rec, httptest.NewRequest(method, endpoint.Route, nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "GET", rec.Header().Get("Allow"))
	}
}

func TestEndpointHandler_BackendFailure(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	mock.ExpectQuery(`SELECT "id", "name" FROM "analytics"."public"."users" LIMIT 10`).
		WillReturnError(sql.ErrConnDone)

	rec := httptest.NewRecorder()
	endpointHandler(endpoint, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.Route, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to query table"}`, rec.Body.String())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Observability: config.ObservabilityConfig{
			Logging: config.LoggingConfig{Level: "error", Format: "text"},
		},
	}
}

func TestBuildRouter_RoutesAndAliases(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	mux := buildRouter(testConfig(), logger, []registry.Endpoint{endpoint}, nil, nil)

	// Exact route and trailing-slash alias both resolve to the endpoint.
	for _, path := range []string{endpoint.Route, endpoint.Route + "/"} {
		mock.ExpectQuery(`SELECT "id", "name" FROM "analytics"."public"."users" LIMIT 10`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ada"))

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// Deeper paths under the alias do not match.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.Route+"/extra", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown routes 404.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildRouter_SkipsUnroutablePattern(t *testing.T) {
	endpoint, mock, done := usersEndpoint(t)
	defer done()

	// A route with a brace would trip the mux pattern parser; it must be
	// skipped without taking down registration of the rest.
	braced := endpoint
	braced.Route = "/analytics/public/a{b"

	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	var mux *http.ServeMux
	require.NotPanics(t, func() {
		mux = buildRouter(testConfig(), logger, []registry.Endpoint{braced, endpoint}, nil, nil)
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analytics/public/a%7Bb", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	mock.ExpectQuery(`SELECT "id", "name" FROM "analytics"."public"."users" LIMIT 10`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ada"))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.Route, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRouter_HealthAlwaysOK(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	mux := buildRouter(testConfig(), logger, nil, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWaitForSource_SucceedsFirstTry(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectPing()

	src := &config.SourceConfig{Name: "db", Dialect: "mysql", ConnectionRetryInterval: time.Millisecond}
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	require.NoError(t, waitForSource(context.Background(), src, logger, db))
}

func TestWaitForSource_TimeoutExhaustedIsFatal(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	src := &config.SourceConfig{
		Name:                    "db",
		Dialect:                 "mysql",
		ConnectionTimeout:       5 * time.Millisecond,
		ConnectionRetryInterval: 2 * time.Millisecond,
	}
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	err = waitForSource(context.Background(), src, logger, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available after")
}

func TestWaitForSource_CancelStopsRetry(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for i := 0; i < 10; i++ {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	src := &config.SourceConfig{Name: "db", Dialect: "mysql", ConnectionRetryInterval: 2 * time.Millisecond}
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})

	err = waitForSource(ctx, src, logger, db)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForStop_ServerError(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	app, err := New(testConfig(), logger)
	require.NoError(t, err)

	serverErrors := make(chan error, 1)
	serverErrors <- sql.ErrConnDone

	reason, err := app.WaitForStop(nil, serverErrors)
	assert.Equal(t, "server_error", reason)
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestWaitForStop_Signal(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	app, err := New(testConfig(), logger)
	require.NoError(t, err)

	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, make(chan error))
	assert.Equal(t, "signal", reason)
	require.NoError(t, err)
}

func TestWaitForStop_NothingToWaitOn(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	app, err := New(testConfig(), logger)
	require.NoError(t, err)

	_, err = app.WaitForStop(nil, nil)
	require.Error(t, err)
}

func TestCleanupStack_RunsInReverseOrder(t *testing.T) {
	var order []string
	stack := cleanupStack{}
	stack.push("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	stack.push("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	stack.run(context.Background(), nil)

	assert.Equal(t, []string{"second", "first"}, order)
}
