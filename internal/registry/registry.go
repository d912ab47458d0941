// Package registry builds the process-wide set of endpoint descriptors by
// composing the metadata walker with the schema synthesizer. The registry is
// constructed once during initialization and is read-only afterwards; the only
// way to pick up schema changes is a restart.
package registry

import (
	"context"
	"log/slog"
	"strings"

	"sql-autoapi/internal/dialect"
	"sql-autoapi/internal/discovery"
	"sql-autoapi/internal/schema"
)

// Binding identifies which data source and which catalog/schema/table tuple a
// descriptor's route resolves to at request time. It is owned exclusively by
// its Endpoint.
type Binding struct {
	Source  string
	Adapter dialect.Adapter
	Catalog string
	Schema  string
	Table   string
}

// Endpoint binds a URL route to a generated response schema and a backing
// table. Route, schema, and binding always describe the same table.
type Endpoint struct {
	Route   string
	Schema  *schema.Response
	Binding Binding
}

// DataSource is one configured, connected data source to discover.
type DataSource struct {
	Name    string
	Adapter dialect.Adapter
	Filter  discovery.Filter
}

// Stats summarizes one discovery pass.
type Stats struct {
	TablesVisited   int
	TablesSkipped   int
	RouteCollisions int
}

// Build runs a single synchronous discovery pass over all data sources and
// returns the ordered endpoint list. Tables that fail synthesis are logged and
// skipped; Build itself fails only on context cancellation. A pass that yields
// zero endpoints is valid.
func Build(ctx context.Context, sources []DataSource, logger *slog.Logger) ([]Endpoint, Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var endpoints []Endpoint
	var stats Stats
	routeIndex := make(map[string]int)

	for _, source := range sources {
		walker := discovery.NewWalker(source.Adapter, source.Filter, logger)
		err := walker.Walk(ctx, func(visit discovery.TableVisit) error {
			stats.TablesVisited++

			if !RoutableName(visit.Schema) || !RoutableName(visit.Table) ||
				(visit.Catalog != "" && !RoutableName(visit.Catalog)) {
				stats.TablesSkipped++
				logger.Warn("table name cannot form a route, skipping table",
					slog.String("source", source.Name),
					slog.String("catalog", visit.Catalog),
					slog.String("schema", visit.Schema),
					slog.String("table", visit.Table),
				)
				return nil
			}

			resp, err := schema.Synthesize(visit.Schema, visit.Table, visit.Columns)
			if err != nil {
				stats.TablesSkipped++
				logger.Warn("cannot synthesize response schema, skipping table",
					slog.String("source", source.Name),
					slog.String("catalog", visit.Catalog),
					slog.String("schema", visit.Schema),
					slog.String("table", visit.Table),
					slog.String("error", err.Error()),
				)
				return nil
			}

			endpoint := Endpoint{
				Route:  Route(visit.Catalog, visit.Schema, visit.Table),
				Schema: resp,
				Binding: Binding{
					Source:  source.Name,
					Adapter: source.Adapter,
					Catalog: visit.Catalog,
					Schema:  visit.Schema,
					Table:   visit.Table,
				},
			}

			// Collisions are possible when a backend without a catalog segment
			// repeats schema/table names across sources. The later descriptor
			// wins, mirroring overwrite-on-register semantics, but is surfaced
			// in the logs rather than silently.
			if prev, ok := routeIndex[endpoint.Route]; ok {
				stats.RouteCollisions++
				logger.Warn("route collision, later table replaces earlier one",
					slog.String("route", endpoint.Route),
					slog.String("replaced_source", endpoints[prev].Binding.Source),
					slog.String("replaced_table", endpoints[prev].Binding.Table),
					slog.String("source", source.Name),
					slog.String("table", visit.Table),
				)
				endpoints[prev] = endpoint
				return nil
			}

			routeIndex[endpoint.Route] = len(endpoints)
			endpoints = append(endpoints, endpoint)

			logger.Info("generated endpoint",
				slog.String("source", source.Name),
				slog.String("route", endpoint.Route),
				slog.String("schema", resp.Name),
				slog.Int("fields", len(resp.Fields)),
			)
			return nil
		})
		if err != nil {
			return nil, stats, err
		}
	}

	return endpoints, stats, nil
}

// RoutableName reports whether a discovered name can stand as one literal
// path segment. ServeMux patterns treat '{' as wildcard syntax and refuse
// malformed wildcards outright, and '/' would splice extra segments into
// the route, so names carrying either are unregistrable.
func RoutableName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/{}")
}

// Route renders the path for a table in the fixed order
// /{catalog?}/{schema}/{table}; the catalog segment is omitted when the
// backend has no catalog concept.
func Route(catalog, schemaName, table string) string {
	if catalog == "" {
		return "/" + schemaName + "/" + table
	}
	return "/" + catalog + "/" + schemaName + "/" + table
}
