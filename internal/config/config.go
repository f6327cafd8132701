// Package config loads settings for the catalog browser binaries.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/Sternrassler/catalog-browser/pkg/client"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. POKEDEX_HTTP_TIMEOUT.
const EnvPrefix = "POKEDEX"

// Config holds application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Catalog   ServiceConfig   `mapstructure:"catalog"`
	Category  ServiceConfig   `mapstructure:"category"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	Browse    BrowseConfig    `mapstructure:"browse"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

// ServiceConfig locates one remote service.
type ServiceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// HTTPConfig holds transport settings.
type HTTPConfig struct {
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// RateLimitConfig holds the client-side token bucket.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// RedisConfig enables the in-session response cache when Addr is set.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

// ServerConfig holds the catalog-server listen address.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// BrowseConfig holds orchestration settings.
type BrowseConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// POKEDEX_; POKEDEX_CONFIG names a TOML file, which must then exist.
// Without it ~/.config/pokedex/config.toml is read if present.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("catalog.base_url", catalog.DefaultBaseURL)
	v.SetDefault("category.base_url", catalog.DefaultBaseURL)
	v.SetDefault("http.user_agent", "catalog-browser/1.0 (+https://github.com/Sternrassler/catalog-browser)")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_attempts", 1)
	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("browse.page_size", 20)

	v.SetConfigType("toml")

	cfgPath := os.Getenv(EnvPrefix + "_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "pokedex"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	for key, raw := range map[string]string{
		"catalog.base_url":  c.Catalog.BaseURL,
		"category.base_url": c.Category.BaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL (got %q)", key, raw)
		}
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.MaxAttempts < 1 {
		return fmt.Errorf("http.max_attempts must be >= 1 (got %d)", c.HTTP.MaxAttempts)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative (got %s)", c.HTTP.Timeout)
	}
	if c.Browse.PageSize < 1 {
		return fmt.Errorf("browse.page_size must be >= 1 (got %d)", c.Browse.PageSize)
	}
	return nil
}

// Logging returns the logger setup for these settings.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	cfg.File = c.Log.File
	return cfg
}

// RedisClient returns a client for the response cache, or nil when
// caching is disabled.
func (c Config) RedisClient() *redis.Client {
	if c.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: c.Redis.Addr, DB: c.Redis.DB})
}

// Client returns the transport settings. rdb may be nil.
func (c Config) Client(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(rdb, c.HTTP.UserAgent)
	cfg.Timeout = c.HTTP.Timeout
	cfg.MaxAttempts = c.HTTP.MaxAttempts
	cfg.RateLimit = c.RateLimit.RPS
	cfg.Burst = c.RateLimit.Burst
	return cfg
}

// Service builds the catalog service on top of a transport.
func (c Config) Service(getter catalog.Getter) *catalog.Service {
	return catalog.NewService(getter,
		catalog.WithCatalogBaseURL(c.Catalog.BaseURL),
		catalog.WithCategoryBaseURL(c.Category.BaseURL),
	)
}
