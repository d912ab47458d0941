package config

import (
	"fmt"
	"path"
	"strings"

	"sql-autoapi/internal/dialect"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	if len(c.Sources) == 0 {
		result.addError("sources", "at least one data source must be configured",
			"add a sources entry with dialect and connection settings")
	}

	seen := make(map[string]int)
	for i := range c.Sources {
		src := &c.Sources[i]
		field := fmt.Sprintf("sources[%d]", i)
		src.validate(result, field)

		name := src.EffectiveName()
		if prev, ok := seen[name]; ok {
			result.addError(field+".name",
				fmt.Sprintf("source name %q already used by sources[%d]", name, prev),
				"give each source a unique name")
		}
		seen[name] = i
	}

	c.Server.validate(result)
	c.Observability.validate(result)

	return result
}

func (s *SourceConfig) validate(result *ValidationResult, field string) {
	d := strings.ToLower(s.Dialect)
	if !dialect.IsSupported(d) {
		result.addError(field+".dialect",
			fmt.Sprintf("unsupported dialect %q", s.Dialect),
			"use one of: mysql, postgres, trino")
		return
	}

	if s.ConnectionString == "" && s.ConnectionStringFile == "" {
		if d == "trino" && s.User == "" {
			result.addError(field+".user", "trino sources require a user",
				"set user or provide a full dsn")
		}
		if d != "trino" && s.User == "" {
			result.addError(field+".user", "user is required when dsn is not set", "")
		}
	}

	if s.Port < 0 || s.Port > 65535 {
		result.addError(field+".port", fmt.Sprintf("invalid port %d", s.Port), "")
	}

	if s.Pool.MaxIdle > s.Pool.MaxOpen && s.Pool.MaxOpen > 0 {
		result.addWarning(field+".pool.max_idle",
			"max_idle exceeds max_open; the pool will cap idle connections",
			"set max_idle <= max_open")
	}

	if s.ConnectionRetryInterval < 0 {
		result.addError(field+".connection_retry_interval", "must not be negative", "")
	}
	if s.ConnectionTimeout < 0 {
		result.addError(field+".connection_timeout", "must not be negative", "")
	}

	validateGlobs(result, field+".exclude_catalogs", s.Filter.ExcludeCatalogs)
	validateGlobs(result, field+".exclude_schemas", s.Filter.ExcludeSchemas)
	validateGlobs(result, field+".exclude_tables", s.Filter.ExcludeTables)
	for table, cols := range s.Filter.ExcludeColumns {
		validateGlobs(result, fmt.Sprintf("%s.exclude_columns[%s]", field, table), cols)
	}
}

func validateGlobs(result *ValidationResult, field string, patterns []string) {
	for _, p := range patterns {
		if p == "" {
			result.addError(field, "empty pattern", "remove the empty entry")
			continue
		}
		if _, err := path.Match(p, "x"); err != nil {
			result.addError(field, fmt.Sprintf("invalid glob pattern %q", p), "")
		}
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("invalid port %d", s.Port),
			"use a port between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		result.addError("server.shutdown_timeout", "must not be negative", "")
	}
	if s.CORS.Enabled && len(s.CORS.AllowedOrigins) == 0 {
		result.addWarning("server.cors.allowed_origins",
			"CORS is enabled but no origins are allowed",
			"add allowed_origins or disable CORS")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	switch strings.ToLower(o.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		result.addError("observability.logging.level",
			fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"use debug, info, warn, or error")
	}

	switch strings.ToLower(o.Logging.Format) {
	case "json", "text":
	default:
		result.addError("observability.logging.format",
			fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"use json or text")
	}
}
