// Package config loads the tile-proxy configuration from an optional YAML
// file overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/tile-fetch/pkg/logging"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "CONFIG_FILE"

// Config is the full tile-proxy configuration.
type Config struct {
	Port         string        `yaml:"port"`
	UserAgent    string        `yaml:"user_agent"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRedirects int           `yaml:"max_redirects"`
	Log          LogConfig     `yaml:"log"`
	Cache        CacheConfig   `yaml:"cache"`
}

// LogConfig controls logging.Setup.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// CacheConfig controls the Redis response cache.
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// MaxTTL caps entry lifetimes; zero disables the cap.
	MaxTTL time.Duration `yaml:"max_ttl"`

	// MaxEntryBytes is the largest tile stored; zero means unlimited.
	MaxEntryBytes int `yaml:"max_entry_bytes"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Port:         "8080",
		UserAgent:    "tile-fetch/0.1.0",
		PollInterval: 10 * time.Millisecond,
		MaxRedirects: 10,
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
		Cache: CacheConfig{
			Enabled:       false,
			RedisURL:      "localhost:6379",
			MaxTTL:        24 * time.Hour,
			MaxEntryBytes: 4 << 20,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then environment variables. The result is validated.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Cache.RedisURL = getEnv("REDIS_URL", c.Cache.RedisURL)
	c.Cache.RedisPassword = getEnv("REDIS_PASSWORD", c.Cache.RedisPassword)

	var err error
	if c.PollInterval, err = getEnvDuration("POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.MaxRedirects, err = getEnvInt("MAX_REDIRECTS", c.MaxRedirects); err != nil {
		return err
	}
	if c.Cache.RedisDB, err = getEnvInt("REDIS_DB", c.Cache.RedisDB); err != nil {
		return err
	}
	if c.Cache.MaxTTL, err = getEnvDuration("CACHE_MAX_TTL", c.Cache.MaxTTL); err != nil {
		return err
	}
	if c.Cache.Enabled, err = getEnvBool("CACHE_ENABLED", c.Cache.Enabled); err != nil {
		return err
	}
	if c.Log.Pretty, err = getEnvBool("LOG_PRETTY", c.Log.Pretty); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration for values the proxy cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("user agent must not be empty"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.MaxRedirects < 1 {
		errs = append(errs, fmt.Errorf("max redirects must be at least 1, got %d", c.MaxRedirects))
	}
	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		errs = append(errs, errors.New("redis url is required when the cache is enabled"))
	}
	if c.Cache.MaxTTL < 0 || c.Cache.MaxEntryBytes < 0 {
		errs = append(errs, errors.New("cache limits must not be negative"))
	}
	if c.Cache.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("redis db must not be negative, got %d", c.Cache.RedisDB))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LoggingConfig converts the log section for logging.Setup.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
