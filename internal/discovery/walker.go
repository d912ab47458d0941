// Package discovery walks a data source's metadata hierarchy (catalog, schema,
// table, column) through a dialect adapter, applying per-level exclusion sets.
// A failure while listing one node is logged with full path context and skips
// only that subtree; the walk always continues at the sibling level.
package discovery

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sql-autoapi/internal/dialect"
)

// TableVisit carries the identity and column list of one discovered table.
type TableVisit struct {
	Catalog string
	Schema  string
	Table   string
	Columns []dialect.Column
}

// VisitFunc receives each table that survives filtering. Returning an error
// stops the walk (used only for context cancellation in practice).
type VisitFunc func(visit TableVisit) error

// Walker traverses one adapter's hierarchy.
type Walker struct {
	adapter dialect.Adapter
	filter  Filter
	logger  *slog.Logger
}

// NewWalker creates a walker over an adapter. The filter's exclusion globs are
// applied on top of the adapter's built-in system namespaces.
func NewWalker(adapter dialect.Adapter, filter Filter, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{adapter: adapter, filter: filter, logger: logger}
}

// Walk enumerates catalogs, schemas, and tables depth first and calls visit for
// every table with its columns. Metadata failures are recovered locally: the
// failing node is logged and skipped, and traversal resumes with its siblings.
func (w *Walker) Walk(ctx context.Context, visit VisitFunc) error {
	ctx, span := startSpan(ctx, "discovery.walk",
		attribute.String("db.dialect", w.adapter.Name()),
	)
	defer span.End()

	catalogs, err := w.adapter.ListCatalogs(ctx)
	if err != nil {
		// Nothing below the root is reachable; the data source contributes no
		// endpoints but discovery for other sources continues.
		recordSpanError(span, err)
		w.logger.Warn("failed to list catalogs, skipping data source",
			slog.String("dialect", w.adapter.Name()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	for _, catalog := range catalogs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.catalogExcluded(catalog) {
			continue
		}
		if err := w.walkCatalog(ctx, catalog, visit); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) walkCatalog(ctx context.Context, catalog string, visit VisitFunc) error {
	schemas, err := w.adapter.ListSchemas(ctx, catalog)
	if err != nil {
		w.logger.Warn("failed to list schemas, skipping catalog",
			slog.String("catalog", catalog),
			slog.String("error", err.Error()),
		)
		return nil
	}

	for _, schemaName := range schemas {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.schemaExcluded(schemaName) {
			continue
		}
		if err := w.walkSchema(ctx, catalog, schemaName, visit); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) walkSchema(ctx context.Context, catalog, schemaName string, visit VisitFunc) error {
	tables, err := w.adapter.ListTables(ctx, catalog, schemaName)
	if err != nil {
		w.logger.Warn("failed to list tables, skipping schema",
			slog.String("catalog", catalog),
			slog.String("schema", schemaName),
			slog.String("error", err.Error()),
		)
		return nil
	}

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.tableExcluded(table) {
			continue
		}

		columns, err := w.adapter.ListColumns(ctx, catalog, schemaName, table)
		if err != nil {
			w.logger.Warn("failed to list columns, skipping table",
				slog.String("catalog", catalog),
				slog.String("schema", schemaName),
				slog.String("table", table),
				slog.String("error", err.Error()),
			)
			continue
		}
		columns = w.filterColumns(table, columns)

		if err := visit(TableVisit{
			Catalog: catalog,
			Schema:  schemaName,
			Table:   table,
			Columns: columns,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) catalogExcluded(catalog string) bool {
	if catalog == "" {
		return false
	}
	return matchesAny(catalog, w.adapter.SystemCatalogs()) ||
		matchesAny(catalog, w.filter.ExcludeCatalogs)
}

func (w *Walker) schemaExcluded(schemaName string) bool {
	return matchesAny(schemaName, w.adapter.SystemSchemas()) ||
		matchesAny(schemaName, w.filter.ExcludeSchemas)
}

func (w *Walker) tableExcluded(table string) bool {
	return matchesAny(table, w.filter.ExcludeTables)
}

func (w *Walker) filterColumns(table string, columns []dialect.Column) []dialect.Column {
	patterns := w.filter.columnPatterns(table)
	if len(patterns) == 0 {
		return columns
	}
	kept := make([]dialect.Column, 0, len(columns))
	for _, col := range columns {
		if matchesAny(col.Name, patterns) {
			continue
		}
		kept = append(kept, col)
	}
	return kept
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("sql-autoapi/discovery")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
