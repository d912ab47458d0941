// Package schema converts introspected column lists into the response schemas
// that shape generated endpoint payloads.
package schema

import (
	"fmt"

	"sql-autoapi/internal/apitype"
	"sql-autoapi/internal/dialect"
)

// Field is one named scalar in a response schema. Field order follows column
// order as returned by introspection.
type Field struct {
	Name string
	Type apitype.Type
	// Required marks columns that are neither nullable nor defaulted; optional
	// fields serialize as JSON null when the row holds NULL.
	Required bool
}

// Response is the named, immutable shape of one endpoint's row objects. It is
// created once per table at startup and shared read-only by every request.
type Response struct {
	// Name is derived from schema and table name and is unique within a data
	// source, e.g. "public_users".
	Name   string
	Fields []Field
}

// FieldNames returns the field names in declared order.
func (r *Response) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// EmptySchemaError reports a table with no representable columns. This is a
// common, non-fatal outcome; the caller logs it and skips the table.
type EmptySchemaError struct {
	Table string
}

func (e *EmptySchemaError) Error() string {
	return fmt.Sprintf("table %q has no representable columns", e.Table)
}

// Synthesize builds the response schema for one table. Any column whose native
// type has no scalar mapping fails the whole table with the underlying
// *apitype.UnsupportedTypeError; a table with zero columns fails with
// *EmptySchemaError. Both are expected, non-fatal discovery outcomes.
func Synthesize(schemaName, tableName string, columns []dialect.Column) (*Response, error) {
	if len(columns) == 0 {
		return nil, &EmptySchemaError{Table: tableName}
	}

	fields := make([]Field, 0, len(columns))
	for _, col := range columns {
		mapped, err := apitype.Map(col.Name, col.NativeType)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{
			Name:     col.Name,
			Type:     mapped,
			Required: !col.Nullable && !col.HasDefault,
		})
	}

	return &Response{
		Name:   schemaName + "_" + tableName,
		Fields: fields,
	}, nil
}
