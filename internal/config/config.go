// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"erpsync/internal/domain"
)

// SourceConfig holds the legacy ERP (SQL Server) connection parameters.
type SourceConfig struct {
	Host           string
	Port           int
	Instance       string // named instance, e.g. SQLEXPRESS
	Database       string
	Schema         string // default "dbo"
	User           string
	Password       string
	Encrypt        string // disable, false, true (default "disable")
	ConnectRetries int    // ping retries on first use (default 3)
}

// DestinationConfig holds the PostgreSQL connection parameters.
type DestinationConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // default "disable"
	PoolSize int    // default 10
}

// Config holds the configuration for the sync engine, the CLI and the
// operations console.
type Config struct {
	Source      SourceConfig
	Destination DestinationConfig

	QueryTimeout      time.Duration   // per-query deadline (default 5m)
	LoadMode          domain.LoadMode // append (default) or upsert
	TableTransactions bool            // one transaction per table (default true)

	// Allow-lists. "*" admits every table.
	SyncTables        []string
	TruncatableTables []string
	SyncConfigFile    string // YAML overlay for the allow-lists (default "erpsync.yaml")

	ListenAddr string // HTTP listen address (default ":8080")
	APIKey     string // required X-API-Key value for the console; empty disables the check outside production
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 20)
	RateLimitBurst int     // burst capacity (default 40)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// fileConfig is the layout of SYNC_CONFIG_FILE.
type fileConfig struct {
	SyncTables        []string `yaml:"sync_tables"`
	TruncatableTables []string `yaml:"truncatable_tables"`
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SyncAllowList returns the allow-list SyncSelected uses when no tables are
// named.
func (c *Config) SyncAllowList() domain.AllowList {
	return allowList(c.SyncTables)
}

// TruncatableAllowList returns the tables single-table truncate may touch.
func (c *Config) TruncatableAllowList() domain.AllowList {
	return allowList(c.TruncatableTables)
}

func allowList(names []string) domain.AllowList {
	for _, n := range names {
		if n == "*" {
			return domain.AllTables()
		}
	}
	return domain.OnlyTables(names...)
}

// LoadFromEnv loads configuration from environment variables, then overlays
// the allow-lists from SYNC_CONFIG_FILE for any list the environment left
// empty.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Source: SourceConfig{
			Host:     os.Getenv("SOURCE_HOST"),
			Instance: os.Getenv("SOURCE_INSTANCE"),
			Database: os.Getenv("SOURCE_DATABASE"),
			Schema:   os.Getenv("SOURCE_SCHEMA"),
			User:     os.Getenv("SOURCE_USER"),
			Password: os.Getenv("SOURCE_PASSWORD"),
			Encrypt:  os.Getenv("SOURCE_ENCRYPT"),
		},
		Destination: DestinationConfig{
			Host:     os.Getenv("DEST_HOST"),
			Database: os.Getenv("DEST_DATABASE"),
			User:     os.Getenv("DEST_USER"),
			Password: os.Getenv("DEST_PASSWORD"),
			SSLMode:  os.Getenv("DEST_SSLMODE"),
		},
		LoadMode:          domain.LoadMode(strings.ToLower(strings.TrimSpace(os.Getenv("LOAD_MODE")))),
		TableTransactions: parseBoolEnvDefault("TABLE_TRANSACTIONS", true),
		SyncTables:        splitList(os.Getenv("SYNC_TABLES")),
		TruncatableTables: splitList(os.Getenv("TRUNCATABLE_TABLES")),
		SyncConfigFile:    os.Getenv("SYNC_CONFIG_FILE"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		APIKey:            os.Getenv("API_KEY"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Env:               os.Getenv("ENV"),
	}

	cfg.Source.Port = cfg.intEnv("SOURCE_PORT", 1433)
	cfg.Source.ConnectRetries = cfg.intEnv("SOURCE_CONNECT_RETRIES", 3)
	cfg.Destination.Port = cfg.intEnv("DEST_PORT", 5432)
	cfg.Destination.PoolSize = cfg.intEnv("DEST_POOL_SIZE", 10)

	cfg.QueryTimeout = 5 * time.Minute
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("QUERY_TIMEOUT %q is not a valid duration; using %s", v, cfg.QueryTimeout))
		} else {
			cfg.QueryTimeout = d
		}
	}

	cfg.RateLimitRPS = cfg.floatEnv("RATE_LIMIT_RPS", 20)
	cfg.RateLimitBurst = cfg.intEnv("RATE_LIMIT_BURST", 40)

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	// Defaults
	if cfg.Source.Schema == "" {
		cfg.Source.Schema = "dbo"
	}
	if cfg.Source.Encrypt == "" {
		cfg.Source.Encrypt = "disable"
	}
	if cfg.Destination.SSLMode == "" {
		cfg.Destination.SSLMode = "disable"
	}
	switch cfg.LoadMode {
	case "":
		cfg.LoadMode = domain.LoadAppend
	case domain.LoadAppend, domain.LoadUpsert:
	default:
		return nil, fmt.Errorf("LOAD_MODE must be %q or %q, got %q", domain.LoadAppend, domain.LoadUpsert, cfg.LoadMode)
	}
	if cfg.SyncConfigFile == "" {
		cfg.SyncConfigFile = "erpsync.yaml"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := cfg.loadSyncConfigFile(); err != nil {
		return nil, err
	}
	if cfg.LoadMode == domain.LoadAppend {
		cfg.Warnings = append(cfg.Warnings, "LOAD_MODE=append: re-running a sync duplicates rows already loaded; truncate first or use LOAD_MODE=upsert")
	}
	if cfg.APIKey == "" {
		cfg.Warnings = append(cfg.Warnings, "API_KEY not set; the operations console accepts unauthenticated requests")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API_KEY must be set in production (ENV=production)")
		}
		for _, o := range cfg.CORSAllowedOrigins {
			if o == "*" {
				return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
			}
		}
	}

	return cfg, nil
}

// loadSyncConfigFile overlays allow-lists from the YAML file. A missing file
// is not an error; lists already set from the environment win.
func (c *Config) loadSyncConfigFile() error {
	data, err := os.ReadFile(c.SyncConfigFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", c.SyncConfigFile, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", c.SyncConfigFile, err)
	}
	if len(c.SyncTables) == 0 {
		c.SyncTables = compactNonEmpty(trimAll(fc.SyncTables))
	}
	if len(c.TruncatableTables) == 0 {
		c.TruncatableTables = compactNonEmpty(trimAll(fc.TruncatableTables))
	}
	return nil
}

func (c *Config) intEnv(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s %q is not a positive integer; using %d", key, v, defaultVal))
		return defaultVal
	}
	return n
}

func (c *Config) floatEnv(key string, defaultVal float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s %q is not a positive number; using %g", key, v, defaultVal))
		return defaultVal
	}
	return f
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return compactNonEmpty(trimAll(strings.Split(v, ",")))
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
