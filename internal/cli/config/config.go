package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/redcapp/redcapp/internal/cache"
	"github.com/redcapp/redcapp/internal/logging"
	"github.com/redcapp/redcapp/internal/metadata"
	"github.com/redcapp/redcapp/internal/migrate"
	"github.com/redcapp/redcapp/internal/schema"
)

// EnvPrefix prefixes every environment override, e.g. REDCAP_API_TOKEN
const EnvPrefix = "REDCAP"

// Config represents the redcapp configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Export   ExportConfig   `mapstructure:"export"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// APIConfig locates the project's API endpoint
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects where fetched snapshots are kept
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	Prefix        string        `mapstructure:"prefix"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// ExportConfig holds defaults for the export command
type ExportConfig struct {
	GroupBy    string `mapstructure:"group_by"`
	Dialect    string `mapstructure:"dialect"`
	SchemaName string `mapstructure:"schema_name"`
}

// DatabaseConfig is the migration target
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from redcapp.yml or redcapp.yaml in the
// working directory, with REDCAP_ environment overrides
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads the configuration from path, or searches the working
// directory when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api.url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("cache.backend", cache.BackendNone)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.prefix", "redcapp:")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("export.group_by", metadata.DefaultGroupBy)
	v.SetDefault("export.dialect", "")
	v.SetDefault("export.schema_name", "")
	v.SetDefault("database.driver", migrate.DriverPgx)
	v.SetDefault("database.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("redcapp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.Export.Dialect == "" {
		config.Export.Dialect = string(DialectForDriver(config.Database.Driver))
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DialectForDriver returns the export dialect matching a database driver,
// so an unconfigured export produces scripts the migrate command can apply
func DialectForDriver(driver string) schema.Dialect {
	switch driver {
	case migrate.DriverPgx, migrate.DriverPostgres:
		return schema.DialectPostgres
	case migrate.DriverSQLite:
		return schema.DialectSQLite
	default:
		return schema.DialectGeneric
	}
}

// CacheOptions converts the cache section for cache.New
func (c *Config) CacheOptions() cache.Config {
	return cache.Config{
		Backend:       c.Cache.Backend,
		DefaultTTL:    c.Cache.TTL,
		Prefix:        c.Cache.Prefix,
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Cache.RedisPassword,
		RedisDB:       c.Cache.RedisDB,
	}
}

// SchemaOptions converts the export section for schema.Write
func (c *Config) SchemaOptions() schema.Options {
	return schema.Options{
		SchemaName: c.Export.SchemaName,
		GroupBy:    c.Export.GroupBy,
		Dialect:    schema.Dialect(c.Export.Dialect),
	}
}

// LoggingOptions converts the log section for logging.New
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:       c.Log.Level,
		Development: c.Log.Development,
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.API.URL != "" {
		u, err := url.Parse(cfg.API.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("api.url must be an http(s) URL, got: %s", cfg.API.URL)
		}
	}
	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got: %s", cfg.API.Timeout)
	}

	if !metadata.IsColumn(cfg.Export.GroupBy) {
		return fmt.Errorf("export.group_by must be a metadata column, got: %s", cfg.Export.GroupBy)
	}
	if _, err := schema.ParseDialect(cfg.Export.Dialect); err != nil {
		return fmt.Errorf("export.dialect: %w", err)
	}

	switch cfg.Cache.Backend {
	case cache.BackendMemory, cache.BackendRedis, cache.BackendNone:
	default:
		return fmt.Errorf("cache.backend must be memory, redis or none, got: %s", cfg.Cache.Backend)
	}

	switch cfg.Database.Driver {
	case migrate.DriverPgx, migrate.DriverPostgres, migrate.DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be pgx, postgres or sqlite3, got: %s", cfg.Database.Driver)
	}

	return nil
}
