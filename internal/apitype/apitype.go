// Package apitype provides the closed mapping from native SQL column types to
// the scalar types exposed by generated endpoints. The same mapping is used
// during schema synthesis and request-time row scanning so the two can never
// disagree.
package apitype

import (
	"fmt"
	"strings"
)

// Type is the scalar type category for a response field.
type Type int

const (
	// TypeString covers character, text, enumerated-string, and date/time types.
	TypeString Type = iota
	// TypeInteger covers integer numeric types.
	TypeInteger
	// TypeFloat covers floating-point and fixed-point numeric types.
	TypeFloat
	// TypeBoolean covers boolean types.
	TypeBoolean
)

// String returns the scalar type name used in schema descriptions and logs.
func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeBoolean:
		return "Boolean"
	default:
		return "String"
	}
}

// UnsupportedTypeError reports a column whose native type has no scalar mapping.
type UnsupportedTypeError struct {
	Column     string
	NativeType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("no scalar mapping for column %q with native type %q", e.Column, e.NativeType)
}

// Map converts a native SQL data type to its scalar category. The input is
// case-insensitive and size specifiers like (10,2) or (255) are stripped before
// matching. The supported set is the union of the MySQL, Postgres, and Trino
// spellings of the four representable families; anything else returns an
// *UnsupportedTypeError carrying the column name for diagnostics.
func Map(column, nativeType string) (Type, error) {
	base := nativeType
	if idx := strings.Index(base, "("); idx != -1 {
		base = base[:idx]
	}
	base = strings.ToUpper(strings.TrimSpace(base))

	switch base {
	// Integer numeric types
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INT2", "INT4", "INT8",
		"INTEGER", "BIGINT", "SERIAL", "SMALLSERIAL", "BIGSERIAL":
		return TypeInteger, nil
	// Floating-point numeric types
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "REAL":
		return TypeFloat, nil
	// Fixed-point numeric types
	case "DECIMAL", "NUMERIC":
		return TypeFloat, nil
	// Boolean types
	case "BOOL", "BOOLEAN":
		return TypeBoolean, nil
	// Character and text types
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "CHARACTER", "CHARACTER VARYING",
		"TINYTEXT", "TEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		return TypeString, nil
	// Date and time types serialize as strings
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMPTZ", "TIME",
		"TIME WITH TIME ZONE", "TIME WITHOUT TIME ZONE", "TIMETZ", "YEAR":
		return TypeString, nil
	default:
		return TypeString, &UnsupportedTypeError{Column: column, NativeType: nativeType}
	}
}
