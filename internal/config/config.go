package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"

	"github.com/DanielPopoola/fetchcache/internal/domain"
)

const EnvPrefix = "FETCHD_"

type Config struct {
	Client       ClientConfig       `koanf:"client"`
	Retry        RetryConfig        `koanf:"retry"`
	Store        StoreConfig        `koanf:"store"`
	Redis        RedisConfig        `koanf:"redis"`
	Database     DatabaseConfig     `koanf:"database"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	Server       ServerConfig       `koanf:"server"`
	Logger       LoggerConfig       `koanf:"logger"`
}

type ClientConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"required,url"`
	Timeout       time.Duration `koanf:"timeout" validate:"required"`
	Platform      string        `koanf:"platform" validate:"required"`
	CachePrefix   string        `koanf:"cache_prefix" validate:"required"`
	CacheTTL      time.Duration `koanf:"cache_ttl" validate:"required"`
	DedupInFlight bool          `koanf:"dedup_in_flight"`
	AuthTokenKey  string        `koanf:"auth_token_key"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1,max=10"`
	BaseDelay   time.Duration `koanf:"base_delay"`
}

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Driver     string `koanf:"driver" validate:"required,oneof=memory redis postgres"`
	MemorySize int    `koanf:"memory_size" validate:"min=1"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

const (
	ConnectivityAlways = "always"
	ConnectivityDial   = "dial"
)

type ConnectivityConfig struct {
	Mode         string        `koanf:"mode" validate:"required,oneof=always dial"`
	ProbeAddress string        `koanf:"probe_address"`
	ProbeTimeout time.Duration `koanf:"probe_timeout" validate:"gt=0"`
	Interval     time.Duration `koanf:"interval" validate:"gt=0"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c LoggerConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func defaults() map[string]any {
	return map[string]any{
		"client.base_url":            "https://api.example.com",
		"client.timeout":             "10s",
		"client.platform":            "server",
		"client.cache_prefix":        domain.DefaultCachePrefix,
		"client.cache_ttl":           domain.DefaultCacheTTL.String(),
		"retry.max_attempts":         1,
		"retry.base_delay":           "500ms",
		"store.driver":               StoreMemory,
		"store.memory_size":          4096,
		"redis.addr":                 "localhost:6379",
		"redis.timeout":              "1s",
		"database.port":              5432,
		"database.ssl_mode":          "disable",
		"database.max_open_conns":    10,
		"database.max_idle_conns":    2,
		"connectivity.mode":          ConnectivityAlways,
		"connectivity.probe_timeout": "2s",
		"connectivity.interval":      "5s",
		"server.port":                "8090",
		"server.read_timeout":        "15s",
		"server.write_timeout":       "15s",
		"server.idle_timeout":        "60s",
		"logger.level":               "info",
		"logger.format":              "text",
	}
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		logger.Error("failed to load defaults", "error", err)
		return nil, err
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	if err := mainConfig.Validate(); err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

func errMissing(field string) error {
	return fmt.Errorf("config: %s must be set", field)
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Store.Driver {
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errMissing("redis.addr")
		}
	case StorePostgres:
		if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
			return errMissing("database.host, database.name and database.user")
		}
	}

	if c.Connectivity.Mode == ConnectivityDial && c.Connectivity.ProbeAddress == "" {
		return errMissing("connectivity.probe_address")
	}

	if c.Client.Timeout >= c.Server.WriteTimeout {
		return fmt.Errorf("config: client.timeout (%s) must be shorter than server.write_timeout (%s)",
			c.Client.Timeout, c.Server.WriteTimeout)
	}

	return nil
}
