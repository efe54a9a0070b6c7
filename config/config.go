// Package config resolves runtime settings from an optional YAML file, a
// .env file and READLIST_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/robertmeta/readlist/store"
	"github.com/robertmeta/readlist/view"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

type Config struct {
	Driver     string `yaml:"driver"`      // "sqlite" | "redis" | "memory"
	SQLitePath string `yaml:"sqlite_path"` // ex: "~/.readlist.db"

	Redis Redis `yaml:"redis"`

	WriteTimeout time.Duration `yaml:"write_timeout"` // bound on each backend write

	LogLevel  string `yaml:"log_level"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `yaml:"pretty_log"` // true => zap dev (color), false => zap prod (JSON)

	Language    string `yaml:"language"`     // BCP 47 tag used for title collation
	DefaultSort string `yaml:"default_sort"` // ex: "created_desc"
}

type Redis struct {
	Addr           string        `yaml:"addr"`     // ex: "localhost:6379"
	User           string        `yaml:"user"`     // optional
	Password       string        `yaml:"password"` // optional
	DB             int           `yaml:"db"`
	Prefix         string        `yaml:"prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // total time to retry connecting
	RetryInterval  time.Duration `yaml:"retry_interval"`  // initial wait, doubled up to MaxWait
	MaxWait        time.Duration `yaml:"max_wait"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Driver:     DriverSQLite,
		SQLitePath: defaultDBPath(),
		Redis: Redis{
			Addr:           "localhost:6379",
			Prefix:         store.DefaultKeyPrefix,
			ConnectTimeout: 10 * time.Second,
			RetryInterval:  500 * time.Millisecond,
			MaxWait:        5 * time.Second,
			PingTimeout:    2 * time.Second,
		},
		WriteTimeout: 5 * time.Second,
		LogLevel:     "warn",
		PrettyLog:    false,
		Language:     "ja",
		DefaultSort:  view.DefaultSort(view.Active).String(),
	}
}

// Load resolves the configuration. An empty path skips the YAML file; a
// non-empty path that does not exist is an error.
func Load(path string) (*Config, error) {
	return load(path, DefaultEnvFile)
}

func load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config yaml: %w", err)
		}
	}

	// Variables already in the environment win over the file.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg.Driver = getenv("READLIST_DRIVER", cfg.Driver)
	cfg.SQLitePath = getenv("READLIST_DB", cfg.SQLitePath)

	cfg.Redis.Addr = getenv("READLIST_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.User = getenv("READLIST_REDIS_USERNAME", cfg.Redis.User)
	cfg.Redis.Password = getenv("READLIST_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvInt("READLIST_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Prefix = getenv("READLIST_REDIS_PREFIX", cfg.Redis.Prefix)
	cfg.Redis.ConnectTimeout = mustDuration("READLIST_REDIS_CONNECT_TIMEOUT", cfg.Redis.ConnectTimeout)
	cfg.WriteTimeout = mustDuration("READLIST_WRITE_TIMEOUT", cfg.WriteTimeout)

	cfg.LogLevel = getenv("READLIST_LOG_LEVEL", cfg.LogLevel)
	cfg.PrettyLog = mustBool("READLIST_PRETTY_LOG", cfg.PrettyLog)
	cfg.Language = getenv("READLIST_LANGUAGE", cfg.Language)
	cfg.DefaultSort = getenv("READLIST_SORT", cfg.DefaultSort)

	cfg.SQLitePath = expandHome(cfg.SQLitePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis address is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown driver %q (expected sqlite, redis or memory)", c.Driver)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %s", c.WriteTimeout)
	}
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("invalid language %q: %w", c.Language, err)
	}
	if _, err := view.ParseSort(c.DefaultSort); err != nil {
		return err
	}
	return nil
}

// Tag returns the collation language. Validate has already accepted it.
func (c *Config) Tag() language.Tag {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return language.Japanese
	}
	return tag
}

// Sort returns the configured default sort, falling back to newest first.
func (c *Config) Sort() view.Sort {
	s, err := view.ParseSort(c.DefaultSort)
	if err != nil {
		return view.DefaultSort(view.Active)
	}
	return s
}

// RedisOptions maps the redis section onto the store's connection options.
func (c *Config) RedisOptions() store.RedisOptions {
	return store.RedisOptions{
		Addr:           c.Redis.Addr,
		User:           c.Redis.User,
		Password:       c.Redis.Password,
		DB:             c.Redis.DB,
		ConnectTimeout: c.Redis.ConnectTimeout,
		RetryInterval:  c.Redis.RetryInterval,
		MaxWait:        c.Redis.MaxWait,
		PingTimeout:    c.Redis.PingTimeout,
	}
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.Redis.Password != "" {
		out.Redis.Password = "***REDACTED***"
	}
	return out
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".readlist.db"
	}
	return filepath.Join(home, ".readlist.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
