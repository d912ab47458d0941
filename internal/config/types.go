// Package config loads and validates service configuration from flags,
// environment variables, and a YAML config file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"sql-autoapi/internal/discovery"
	"sql-autoapi/internal/middleware"
)

// Config holds the application configuration.
type Config struct {
	Sources       []SourceConfig      `mapstructure:"sources"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// SourceConfig holds the connection and filtering settings for one data source.
type SourceConfig struct {
	// Name identifies the source in logs and metrics. Optional; falls back to
	// the dialect name when only one source of that dialect is configured.
	Name string `mapstructure:"name"`

	// Dialect selects the adapter: mysql, postgres, or trino.
	Dialect string `mapstructure:"dialect"`

	// ConnectionString is a complete driver DSN. When set, it overrides the
	// discrete Host/Port/User/Password/Database fields.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN (for secrets
	// management). Supports "@-" to read from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	// Discrete connection fields (used when DSN is not set)
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	// Database restricts introspection to a single schema on schema-scoped
	// backends (mysql, postgres). Ignored for trino, which walks catalogs.
	Database string `mapstructure:"database"`
	// Catalog sets the session default catalog for trino sources. Discovery
	// still walks every visible catalog; this only anchors unqualified
	// statements.
	Catalog string `mapstructure:"catalog"`
	// SSLMode is passed through to the postgres driver (disable, require, ...).
	SSLMode string `mapstructure:"sslmode"`

	// Filter narrows what the discovery walk exposes.
	Filter discovery.Filter `mapstructure:",squash"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout bounds the startup wait for this source. Zero means
	// retry until the source answers.
	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout"`
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int                   `mapstructure:"port"`
	ReadTimeout     time.Duration         `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration         `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration         `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration         `mapstructure:"shutdown_timeout"`
	CORS            middleware.CORSConfig `mapstructure:"cors"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds metrics and logging configuration.
type ObservabilityConfig struct {
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	Environment    string        `mapstructure:"environment"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	Logging        LoggingConfig `mapstructure:"logging"`
}

// DSN returns the driver-specific data source name for this source.
// If ConnectionString is set it is used directly, apart from mysql where the
// parseTime and loc parameters are forced so time columns scan correctly.
func (s *SourceConfig) DSN() (string, error) {
	switch strings.ToLower(s.Dialect) {
	case "mysql":
		return s.mysqlDSN(), nil
	case "postgres":
		return s.postgresDSN(), nil
	case "trino":
		return s.trinoDSN()
	default:
		return "", fmt.Errorf("unsupported dialect %q", s.Dialect)
	}
}

func (s *SourceConfig) mysqlDSN() string {
	var dsn string
	if s.ConnectionString != "" {
		dsn = s.ConnectionString
	} else {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", s.User, s.Password, s.Host, s.Port, s.Database)
	}
	if !strings.Contains(dsn, "parseTime") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}
	if !strings.Contains(dsn, "loc=") {
		dsn += "&loc=UTC"
	}
	return dsn
}

func (s *SourceConfig) postgresDSN() string {
	if s.ConnectionString != "" {
		return s.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", s.Host, s.Port),
		Path:   "/" + s.Database,
	}
	if s.Password != "" {
		u.User = url.UserPassword(s.User, s.Password)
	} else if s.User != "" {
		u.User = url.User(s.User)
	}
	q := url.Values{}
	if s.SSLMode != "" {
		q.Set("sslmode", s.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *SourceConfig) trinoDSN() (string, error) {
	if s.ConnectionString != "" {
		return s.ConnectionString, nil
	}
	// The trino driver requires https when basic auth credentials are present.
	u := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", s.Host, s.Port),
	}
	if s.Password != "" {
		u.Scheme = "https"
		u.User = url.UserPassword(s.User, s.Password)
	} else if s.User != "" {
		u.User = url.User(s.User)
	} else {
		return "", fmt.Errorf("trino source %q requires a user", s.Name)
	}
	q := url.Values{}
	q.Set("source", "sql-autoapi")
	if s.Catalog != "" {
		q.Set("catalog", s.Catalog)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// EffectiveName returns the log-friendly name for this source.
func (s *SourceConfig) EffectiveName() string {
	if s.Name != "" {
		return s.Name
	}
	return strings.ToLower(s.Dialect)
}
