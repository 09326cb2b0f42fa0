// Package config loads and resolves zolo core configuration: a YAML file on
// disk, overridden by ZOLO_*/WEBSOCKET_* environment variables (environment
// always wins, per spec.md §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/logging"
)

// Config holds the process-wide configuration for the core engine.
type Config struct {
	Deployment string `yaml:"deployment"`

	DB       DBConfig       `yaml:"db"`
	JWT      JWTConfig      `yaml:"jwt"`
	WS       WebSocketConfig `yaml:"websocket"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DBConfig carries credentials for the adapter collaborator (§6); the core
// never opens the connection itself.
type DBConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// JWTConfig carries the session-signing secret for the auth collaborator.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// WebSocketConfig configures the Bridge (spec.md §4.4, §6).
type WebSocketConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	RequireAuth     bool     `yaml:"require_auth"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	MaxConnections  int      `yaml:"max_connections"`
}

// CacheConfig configures the Cache Orchestrator's LRU tier defaults.
type CacheConfig struct {
	LRUMaxSize int `yaml:"lru_max_size"`
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
}

// LoggingConfig gates internal/logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the built-in defaults, mirroring the teacher's
// DefaultConfig() shape.
func DefaultConfig() *Config {
	return &Config{
		Deployment: "development",
		WS: WebSocketConfig{
			Host:           "0.0.0.0",
			Port:           8765,
			RequireAuth:    false,
			AllowedOrigins: []string{"*"},
			MaxConnections: 1000,
		},
		Cache: CacheConfig{
			LRUMaxSize:        100,
			DefaultTTLSeconds: 300,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads a YAML config file, falling back to defaults if the file is
// absent, then applies environment overrides — file values always lose to
// environment values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config back to YAML, used by the config collaborator to
// persist detected/edited settings.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides implements the ZOLO_*/WEBSOCKET_* precedence chain from
// spec.md §6. Environment values override file-sourced config.
func (c *Config) applyEnvOverrides() {
	if v := firstNonEmpty("ZOLO_DEPLOYMENT", "ZOLO_ENV"); v != "" {
		c.Deployment = v
	}
	if v := os.Getenv("ZOLO_DB_USERNAME"); v != "" {
		c.DB.Username = v
	}
	if v := os.Getenv("ZOLO_DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("ZOLO_JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("WEBSOCKET_HOST"); v != "" {
		c.WS.Host = v
	}
	if v := os.Getenv("WEBSOCKET_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.WS.Port = p
		} else {
			logging.Get(logging.CategoryBoot).Warn("invalid WEBSOCKET_PORT %q: %v", v, err)
		}
	}
	if v := os.Getenv("WEBSOCKET_REQUIRE_AUTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.WS.RequireAuth = b
		}
	}
	if v := os.Getenv("WEBSOCKET_ALLOWED_ORIGINS"); v != "" {
		c.WS.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("WEBSOCKET_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WS.MaxConnections = n
		}
	}
}

func firstNonEmpty(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// DefaultTTL returns Cache.DefaultTTLSeconds as a duration. No cache tier
// expires entries by age, so the LRU tier does not read this value.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.Cache.DefaultTTLSeconds) * time.Second
}
