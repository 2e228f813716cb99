// Package config loads the runtime YAML configuration for the front end.
package config

import (
	"bytes"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort            = 3001
	defaultEnv             = "development"
	defaultUpstreamBaseURL = "https://www.imsun.org"
	defaultUpstreamTimeout = 15
	defaultRedisHost       = "localhost"
	defaultRedisPort       = 6379
	defaultRedisDB         = 0
	defaultCacheTTL        = 15
	defaultOrigin          = "http://localhost:3000"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	Upstream       UpstreamRuntimeConfig `yaml:"upstream"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	RedisURL       string                `yaml:"redis_url"`
	Cache          CacheRuntimeConfig    `yaml:"cache"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Timezone       string                `yaml:"timezone"`
}

// UpstreamRuntimeConfig points at the remote content API.
type UpstreamRuntimeConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RedisRuntimeConfig describes the optional page-cache backend. A missing
// redis section leaves caching disabled; it is never required to run.
type RedisRuntimeConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
	Enabled  bool   `yaml:"-"`
}

// CacheRuntimeConfig tunes the rendered-page response cache.
type CacheRuntimeConfig struct {
	TTLSeconds int  `yaml:"ttl_seconds"`
	Disable    bool `yaml:"disable"`
}

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	Env            string            `yaml:"env"`
	NodeEnv        string            `yaml:"node_env"`
	Upstream       rawUpstreamConfig `yaml:"upstream"`
	UpstreamURL    string            `yaml:"upstream_url"`
	APIBaseURL     string            `yaml:"api_base_url"`
	Redis          *rawRedisConfig   `yaml:"redis"`
	RedisURL       string            `yaml:"redis_url"`
	Cache          rawCacheConfig    `yaml:"cache"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	CORSOrigins    []string          `yaml:"cors_allowed_origins"`
	Timezone       string            `yaml:"timezone"`
	TZ             string            `yaml:"tz"`
}

type rawUpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawCacheConfig struct {
	TTLSeconds int   `yaml:"ttl_seconds"`
	Disable    *bool `yaml:"disable"`
}

// Load reads and validates the config file. A missing file yields the
// defaults so the binary runs with zero configuration.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultConfigPath {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyRawAppConfig(&cfg, raw)
	applyEnvOverrides(&cfg)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if _, err := neturl.Parse(cfg.Upstream.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid upstream.base_url %q in %q: %w", cfg.Upstream.BaseURL, path, err)
	}
	if cfg.Redis.Enabled && (cfg.Redis.Port < 1 || cfg.Redis.Port > 65535) {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Upstream: UpstreamRuntimeConfig{
			BaseURL:        defaultUpstreamBaseURL,
			TimeoutSeconds: defaultUpstreamTimeout,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Cache: CacheRuntimeConfig{
			TTLSeconds: defaultCacheTTL,
		},
		AllowedOrigins: []string{defaultOrigin},
	}
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}

	if v := strings.TrimSpace(raw.Upstream.BaseURL); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(raw.Upstream.URL); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(raw.UpstreamURL); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(raw.APIBaseURL); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if raw.Upstream.TimeoutSeconds > 0 {
		cfg.Upstream.TimeoutSeconds = raw.Upstream.TimeoutSeconds
	}

	if raw.Redis != nil {
		cfg.Redis.Enabled = true
		if v := strings.TrimSpace(raw.Redis.URL); v != "" {
			cfg.Redis.URL = v
		}
		if v := strings.TrimSpace(raw.Redis.Host); v != "" {
			cfg.Redis.Host = v
		}
		if raw.Redis.Port != 0 {
			cfg.Redis.Port = raw.Redis.Port
		}
		if v := strings.TrimSpace(raw.Redis.Username); v != "" {
			cfg.Redis.Username = v
		}
		if v := strings.TrimSpace(raw.Redis.Password); v != "" {
			cfg.Redis.Password = v
		}
		if raw.Redis.DB != nil {
			cfg.Redis.DB = *raw.Redis.DB
		}
		if raw.Redis.TLS != nil {
			cfg.Redis.TLS = *raw.Redis.TLS
		}
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.URL = v
	}
	cfg.RedisURL = cfg.Redis.URLValue()

	if raw.Cache.TTLSeconds > 0 {
		cfg.Cache.TTLSeconds = raw.Cache.TTLSeconds
	}
	if raw.Cache.Disable != nil {
		cfg.Cache.Disable = *raw.Cache.Disable
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSOrigins)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultOrigin}
	}

	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}

	cfg.Env = normalizeEnv(cfg.Env)
}

// applyEnvOverrides mirrors the original front end's environment knobs:
// PORT and the API base URL.
func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("BLOG_UPSTREAM_URL")); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("BLOG_REDIS_URL")); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.URL = v
		cfg.RedisURL = cfg.Redis.URLValue()
	}
	cfg.Env = normalizeEnv(cfg.Env)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

// URLValue builds the redis connection URL from the discrete fields unless
// an explicit URL was provided.
func (c RedisRuntimeConfig) URLValue() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		if strings.HasPrefix(u, "redis://") || strings.HasPrefix(u, "rediss://") {
			return u
		}
		return "redis://" + u
	}

	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = defaultRedisHost
	}
	port := c.Port
	if port == 0 {
		port = defaultRedisPort
	}
	db := c.DB
	if db < 0 {
		db = defaultRedisDB
	}
	scheme := "redis"
	if c.TLS {
		scheme = "rediss"
	}

	u := &neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + strconv.Itoa(db),
	}
	username := strings.TrimSpace(c.Username)
	password := strings.TrimSpace(c.Password)
	if username != "" {
		if password != "" {
			u.User = neturl.UserPassword(username, password)
		} else {
			u.User = neturl.User(username)
		}
	} else if password != "" {
		u.User = neturl.UserPassword("", password)
	}
	return u.String()
}

// UpstreamTimeout returns the configured upstream HTTP timeout.
func (c *AppConfig) UpstreamTimeout() time.Duration {
	if c.Upstream.TimeoutSeconds <= 0 {
		return defaultUpstreamTimeout * time.Second
	}
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// CacheTTL returns the rendered-page cache TTL.
func (c *AppConfig) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return defaultCacheTTL * time.Second
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}
