package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var defineFlagsOnce sync.Once

// Default ports per dialect, applied when a source uses discrete fields
// without an explicit port.
var defaultPorts = map[string]int{
	"mysql":    3306,
	"postgres": 5432,
	"trino":    8080,
}

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (file-backed secrets, interactive password prompt)
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()

	// Defaults (lowest priority)
	setDefaults(v)

	// --- Flags ---
	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	// --- Config file ---
	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("sql-autoapi")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/sql-autoapi/")
		v.AddConfigPath("$HOME/.sql-autoapi")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	// Canonical keys: dot + snake_case
	// Env vars: AUTOAPI_SERVER_PORT, AUTOAPI_OBSERVABILITY_LOGGING_LEVEL
	v.SetEnvPrefix("AUTOAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags binding (highest normal priority) ---
	bindChangedFlagsToViper(v)

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolveSourceSecrets(&cfg); err != nil {
		return nil, err
	}
	applySourceDefaults(&cfg)

	return &cfg, nil
}

// resolveSourceSecrets reads DSNs and passwords backed by files or the
// terminal. Only one source may read from stdin via @-.
func resolveSourceSecrets(cfg *Config) error {
	stdinUsed := ""
	claimStdin := func(field string) error {
		if stdinUsed != "" {
			return fmt.Errorf(
				"multiple stdin-backed file settings use @- (%s, %s); only one @- source is allowed",
				stdinUsed, field,
			)
		}
		stdinUsed = field
		return nil
	}

	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		name := src.EffectiveName()

		if src.ConnectionString == "" && src.ConnectionStringFile != "" {
			if src.ConnectionStringFile == "@-" {
				if err := claimStdin(fmt.Sprintf("sources[%s].dsn_file", name)); err != nil {
					return err
				}
			}
			dsn, err := readSecretFile(src.ConnectionStringFile)
			if err != nil {
				return fmt.Errorf("failed to read DSN file for source %q: %w", name, err)
			}
			src.ConnectionString = dsn
		}

		if src.Password == "" && src.PasswordFile != "" {
			if src.PasswordFile == "@-" {
				if err := claimStdin(fmt.Sprintf("sources[%s].password_file", name)); err != nil {
					return err
				}
			}
			pwd, err := readSecretFile(src.PasswordFile)
			if err != nil {
				return fmt.Errorf("failed to read password file for source %q: %w", name, err)
			}
			src.Password = pwd
		}

		if src.Password == "" && src.PasswordPrompt {
			pwd, err := promptPassword(name)
			if err != nil {
				return fmt.Errorf("failed to read password for source %q: %w", name, err)
			}
			src.Password = pwd
		}
	}

	return nil
}

// applySourceDefaults fills per-source defaults that cannot be expressed as
// viper defaults because sources are a list.
func applySourceDefaults(cfg *Config) {
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.Port == 0 {
			src.Port = defaultPorts[strings.ToLower(src.Dialect)]
		}
		if src.Host == "" {
			src.Host = "localhost"
		}
		if src.Pool.MaxOpen == 0 {
			src.Pool.MaxOpen = 25
		}
		if src.Pool.MaxIdle == 0 {
			src.Pool.MaxIdle = 5
		}
		if src.Pool.MaxLifetime == 0 {
			src.Pool.MaxLifetime = 5 * time.Minute
		}
		if src.ConnectionRetryInterval == 0 {
			src.ConnectionRetryInterval = 3 * time.Second
		}
	}
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper) {
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := pflag.CommandLine.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := pflag.CommandLine.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := pflag.CommandLine.GetBool(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := pflag.CommandLine.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := pflag.CommandLine.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
// Data sources are config-file only because they form a list.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		// Server flags
		pflag.Int("server.port", 0, "HTTP server port")
		pflag.Duration("server.read_timeout", 0, "HTTP server read timeout")
		pflag.Duration("server.write_timeout", 0, "HTTP server write timeout")
		pflag.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
		pflag.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
		pflag.Bool("server.cors.enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
		pflag.StringSlice("server.cors.allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
		pflag.StringSlice("server.cors.allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
		pflag.Int("server.cors.max_age", 0, "CORS preflight cache duration (seconds)")

		// Observability flags
		pflag.String("observability.service_name", "", "Service name for observability")
		pflag.String("observability.service_version", "", "Service version for observability")
		pflag.String("observability.environment", "", "Environment name (dev, staging, prod)")
		pflag.Bool("observability.metrics_enabled", false, "Enable metrics collection")

		// Logging flags (under observability)
		pflag.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("observability.logging.format", "", "Log format (json, text)")

		// Config file flag
		pflag.StringP("config", "c", "", "Config file path")
	})
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_headers", []string{})
	v.SetDefault("server.cors.max_age", 0)

	// Observability defaults
	v.SetDefault("observability.service_name", "sql-autoapi")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")

	// Sources default to empty; validation rejects that later with a hint.
	v.SetDefault("sources", []map[string]any{})
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword(source string) (string, error) {
	fmt.Printf("Enter password for source %s: ", source)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
