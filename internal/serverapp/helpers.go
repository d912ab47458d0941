package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sql-autoapi/internal/config"
	"sql-autoapi/internal/dialect"
	"sql-autoapi/internal/logging"
	"sql-autoapi/internal/middleware"
	"sql-autoapi/internal/observability"
	"sql-autoapi/internal/registry"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "github.com/trinodb/trino-go-client/trino"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitLogger builds the process logger from config and installs it as the
// slog default.
func InitLogger(cfg *config.Config) *logging.Logger {
	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	})
	slog.SetDefault(logger.Logger)
	return logger
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.APIMetrics, *observability.DiscoveryMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	apiMetrics, err := observability.InitAPIMetrics()
	if err != nil {
		return nil, nil, nil, err
	}

	discoveryMetrics, err := observability.InitDiscoveryMetrics()
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Info("metrics initialized",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)
	return meterProvider, apiMetrics, discoveryMetrics, nil
}

func dbSystemAttribute(dialectName string) attribute.KeyValue {
	switch dialectName {
	case "mysql":
		return semconv.DBSystemMySQL
	case "postgres":
		return semconv.DBSystemPostgreSQL
	default:
		return semconv.DBSystemKey.String(dialectName)
	}
}

// connectSource opens an instrumented handle for one data source and applies
// pool settings. The connection is not verified here; waitForSource does that.
func connectSource(src *config.SourceConfig) (*sql.DB, error) {
	dsn, err := src.DSN()
	if err != nil {
		return nil, err
	}

	dialectName := strings.ToLower(src.Dialect)
	db, err := otelsql.Open(dialect.DriverName(dialectName), dsn,
		otelsql.WithAttributes(dbSystemAttribute(dialectName)),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(src.Pool.MaxOpen)
	db.SetMaxIdleConns(src.Pool.MaxIdle)
	db.SetConnMaxLifetime(src.Pool.MaxLifetime)

	return db, nil
}

// waitForSource pings the source until it answers. With a zero
// connection_timeout it retries forever; otherwise exhausting the timeout is
// fatal.
func waitForSource(ctx context.Context, src *config.SourceConfig, logger *logging.Logger, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := src.ConnectionTimeout
	interval := src.ConnectionRetryInterval

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("data source connection established",
					slog.String("source", src.EffectiveName()),
					slog.Int("attempts", attempt),
				)
			}
			return nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("not available after %v: %w", timeout, err)
		}

		logger.Warn("data source not ready, retrying...",
			slog.String("source", src.EffectiveName()),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

func buildDataSource(src *config.SourceConfig, db *sql.DB) (registry.DataSource, error) {
	adapter, err := dialect.New(strings.ToLower(src.Dialect), db, src.Database)
	if err != nil {
		return registry.DataSource{}, err
	}
	return registry.DataSource{
		Name:    src.EffectiveName(),
		Adapter: adapter,
		Filter:  src.Filter,
	}, nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, endpoints []registry.Endpoint, apiMetrics *observability.APIMetrics, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()

	for _, endpoint := range endpoints {
		// Discovery already rejects unroutable names, but a route that would
		// trip the mux pattern parser must never abort startup.
		if strings.ContainsAny(endpoint.Route, "{}") {
			logger.Warn("route is not a valid mux pattern, skipping endpoint",
				slog.String("route", endpoint.Route),
			)
			continue
		}
		handler := endpointHandler(endpoint, apiMetrics)
		mux.Handle(endpoint.Route, handler)
		// Trailing-slash alias, exact match only.
		mux.Handle(endpoint.Route+"/", exactPath(endpoint.Route+"/", handler))
	}

	mux.HandleFunc("/health", healthHandler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

// exactPath guards a subtree registration so only the named path matches.
func exactPath(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, apiMetrics *observability.APIMetrics, handler http.Handler) http.Handler {
	handler = middleware.Observe(logger, apiMetrics)(handler)

	if cfg.Server.CORS.Enabled {
		handler = middleware.CORS(cfg.Server.CORS)(handler)
	}

	if cfg.Observability.MetricsEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	return handler
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string, endpointCount int) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.Int("endpoints", endpointCount),
			slog.String("health_endpoint", "/health"),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}

		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler reports liveness. It intentionally does not touch the data
// sources: a degraded backend should not make the process look dead.
func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
