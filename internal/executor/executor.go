// Package executor resolves an endpoint descriptor back into a bounded SQL
// fetch at request time and maps result rows into the descriptor's response
// schema. It holds no per-endpoint mutable state and is safe for concurrent
// use from simultaneously served requests.
package executor

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"sql-autoapi/internal/apitype"
	"sql-autoapi/internal/registry"
	"sql-autoapi/internal/schema"
)

// DefaultLimit bounds a fetch when the caller supplies no limit or a
// non-positive one.
const DefaultLimit = 10

// BackendError reports a request-time query failure (lost connection, table
// dropped after discovery, permission revoked). It is surfaced to the caller
// as a server error and never retried.
type BackendError struct {
	Source string
	Table  string
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %q unavailable for table %q: %v", e.Source, e.Table, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Row is one fetched row. It serializes as a JSON object whose keys are
// exactly the response schema's field names, in declared order.
type Row struct {
	schema *schema.Response
	values []any
}

// Value returns the scalar for a field position. Optional fields holding SQL
// NULL return nil.
func (r Row) Value(i int) any { return r.values[i] }

// MarshalJSON writes the row with fields in schema order. encoding/json maps
// would lose the ordering, so the object is built by hand.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range r.schema.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Fetch runs the bounded read for one endpoint. The query selects exactly the
// columns present in the response schema, against the descriptor's
// catalog/schema/table identity, with a LIMIT equal to the normalized limit.
func Fetch(ctx context.Context, endpoint registry.Endpoint, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	tracer := otel.Tracer("sql-autoapi/executor")
	ctx, span := tracer.Start(ctx, "executor.fetch")
	span.SetAttributes(
		attribute.String("db.source", endpoint.Binding.Source),
		attribute.String("db.table", endpoint.Binding.Table),
		attribute.Int("db.limit", limit),
	)
	defer span.End()

	adapter := endpoint.Binding.Adapter

	columns := make([]string, len(endpoint.Schema.Fields))
	for i, field := range endpoint.Schema.Fields {
		columns[i] = adapter.QuoteIdentifier(field.Name)
	}

	query, args, err := sq.Select(columns...).
		From(adapter.QualifyTable(endpoint.Binding.Catalog, endpoint.Binding.Schema, endpoint.Binding.Table)).
		Limit(uint64(limit)).
		PlaceholderFormat(adapter.PlaceholderFormat()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query for %s: %w", endpoint.Route, err)
	}

	rows, err := adapter.QueryContext(ctx, query, args...)
	if err != nil {
		backendErr := &BackendError{Source: endpoint.Binding.Source, Table: endpoint.Binding.Table, Err: err}
		span.RecordError(backendErr)
		span.SetStatus(codes.Error, backendErr.Error())
		return nil, backendErr
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []Row
	for rows.Next() {
		row, err := scanRow(endpoint.Schema, rows)
		if err != nil {
			backendErr := &BackendError{Source: endpoint.Binding.Source, Table: endpoint.Binding.Table, Err: err}
			span.RecordError(backendErr)
			span.SetStatus(codes.Error, backendErr.Error())
			return nil, backendErr
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		backendErr := &BackendError{Source: endpoint.Binding.Source, Table: endpoint.Binding.Table, Err: err}
		span.RecordError(backendErr)
		span.SetStatus(codes.Error, backendErr.Error())
		return nil, backendErr
	}

	span.SetAttributes(attribute.Int("db.rows", len(result)))
	return result, nil
}

// scanRow scans one result row into holders typed by the schema's scalar
// categories, so a value can never drift from its declared field type.
func scanRow(resp *schema.Response, rows *sql.Rows) (Row, error) {
	dest := make([]any, len(resp.Fields))
	for i, field := range resp.Fields {
		switch field.Type {
		case apitype.TypeInteger:
			dest[i] = new(sql.NullInt64)
		case apitype.TypeFloat:
			dest[i] = new(sql.NullFloat64)
		case apitype.TypeBoolean:
			dest[i] = new(sql.NullBool)
		default:
			dest[i] = new(sql.NullString)
		}
	}

	if err := rows.Scan(dest...); err != nil {
		return Row{}, err
	}

	values := make([]any, len(dest))
	for i, holder := range dest {
		switch v := holder.(type) {
		case *sql.NullInt64:
			if v.Valid {
				values[i] = v.Int64
			}
		case *sql.NullFloat64:
			if v.Valid {
				values[i] = v.Float64
			}
		case *sql.NullBool:
			if v.Valid {
				values[i] = v.Bool
			}
		case *sql.NullString:
			if v.Valid {
				values[i] = v.String
			}
		}
	}

	return Row{schema: resp, values: values}, nil
}
