package discovery

import "path"

// Filter holds caller-supplied exclusion globs applied during the walk, on top
// of the adapter's built-in system namespaces. Missing lists exclude nothing.
type Filter struct {
	ExcludeCatalogs []string `mapstructure:"exclude_catalogs"`
	ExcludeSchemas  []string `mapstructure:"exclude_schemas"`
	ExcludeTables   []string `mapstructure:"exclude_tables"`
	// ExcludeColumns maps table glob patterns to column glob patterns.
	ExcludeColumns map[string][]string `mapstructure:"exclude_columns"`
}

func (f Filter) columnPatterns(table string) []string {
	var patterns []string
	for tablePattern, columnPatterns := range f.ExcludeColumns {
		if nameMatches(table, tablePattern) {
			patterns = append(patterns, columnPatterns...)
		}
	}
	return patterns
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if nameMatches(name, pattern) {
			return true
		}
	}
	return false
}

// nameMatches treats the pattern as a path.Match glob, falling back to literal
// comparison when the pattern is malformed.
func nameMatches(name, pattern string) bool {
	matched, err := path.Match(pattern, name)
	if err != nil {
		return name == pattern
	}
	return matched
}
