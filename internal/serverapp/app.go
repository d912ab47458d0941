// Package serverapp owns the server lifecycle: connecting data sources,
// running the discovery pass, building the HTTP surface, and shutting
// everything down in order.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"sql-autoapi/internal/config"
	"sql-autoapi/internal/logging"
	"sql-autoapi/internal/observability"
	"sql-autoapi/internal/registry"
)

// App owns runtime resources for the sql-autoapi server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	meterProvider    *observability.MeterProvider
	apiMetrics       *observability.APIMetrics
	discoveryMetrics *observability.DiscoveryMetrics

	dbs       map[string]*sql.DB
	endpoints []registry.Endpoint
	stats     registry.Stats

	mux     *http.ServeMux
	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Endpoints returns the endpoints generated during Init.
func (a *App) Endpoints() []registry.Endpoint {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.endpoints
}

// Handler returns the fully wrapped HTTP handler. Nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
