// Package sqlutil provides SQL utility functions.
package sqlutil

import "strings"

// QuoteBacktick quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier. This is the
// quoting style of MySQL-family engines.
func QuoteBacktick(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteAnsi quotes a SQL identifier with double quotes per the ANSI standard,
// escaping embedded double quotes by doubling them. This is the quoting style
// of Postgres and Trino.
func QuoteAnsi(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// QualifyBacktick joins non-empty identifier parts into a dotted, backtick
// quoted name, e.g. `db`.`table`.
func QualifyBacktick(parts ...string) string {
	return qualify(QuoteBacktick, parts)
}

// QualifyAnsi joins non-empty identifier parts into a dotted, double-quoted
// name, e.g. "catalog"."schema"."table".
func QualifyAnsi(parts ...string) string {
	return qualify(QuoteAnsi, parts)
}

func qualify(quote func(string) string, parts []string) string {
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		quoted = append(quoted, quote(part))
	}
	return strings.Join(quoted, ".")
}
