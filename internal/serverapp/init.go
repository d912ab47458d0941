package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"sql-autoapi/internal/registry"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	meterProvider, apiMetrics, discoveryMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	dbs := make(map[string]*sql.DB, len(a.cfg.Sources))
	sources := make([]registry.DataSource, 0, len(a.cfg.Sources))
	for i := range a.cfg.Sources {
		srcCfg := &a.cfg.Sources[i]
		name := srcCfg.EffectiveName()

		a.logger.Info("connecting data source",
			slog.String("source", name),
			slog.String("dialect", srcCfg.Dialect),
			slog.String("host", srcCfg.Host),
			slog.Int("port", srcCfg.Port),
		)

		db, err := connectSource(srcCfg)
		if err != nil {
			return fmt.Errorf("failed to connect source %q: %w", name, err)
		}
		cleanup.push("data source "+name, func(_ context.Context) error {
			return db.Close()
		})

		if err := waitForSource(ctx, srcCfg, a.logger, db); err != nil {
			return fmt.Errorf("source %q not available: %w", name, err)
		}

		source, err := buildDataSource(srcCfg, db)
		if err != nil {
			return fmt.Errorf("failed to build adapter for source %q: %w", name, err)
		}

		dbs[name] = db
		sources = append(sources, source)
	}

	discoveryStart := time.Now()
	endpoints, stats, err := registry.Build(ctx, sources, a.logger.Logger)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if discoveryMetrics != nil {
		discoveryMetrics.RecordDiscovery(ctx, time.Since(discoveryStart),
			int64(len(endpoints)), int64(stats.TablesSkipped), int64(stats.RouteCollisions))
	}
	a.logger.Info("discovery complete",
		slog.Int("endpoints", len(endpoints)),
		slog.Int("tables_visited", stats.TablesVisited),
		slog.Int("tables_skipped", stats.TablesSkipped),
		slog.Int("route_collisions", stats.RouteCollisions),
		slog.Duration("duration", time.Since(discoveryStart)),
	)

	mux := buildRouter(a.cfg, a.logger, endpoints, apiMetrics, meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, apiMetrics, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.apiMetrics = apiMetrics
	a.discoveryMetrics = discoveryMetrics
	a.dbs = dbs
	a.endpoints = endpoints
	a.stats = stats
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
