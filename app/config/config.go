// Package config loads the application settings from a YAML file, fills in
// defaults and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverBadger   = "badger"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Session backends.
const (
	SessionBadger = "badger"
	SessionRedis  = "redis"
)

// Config is the root of the configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects where posts and users live. Path is used by badger and
// sqlite, DSN by postgres.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	InMemory bool   `yaml:"in_memory"`
}

// MinSecretLength is the shortest session.secret accepted.
const MinSecretLength = 32

type SessionConfig struct {
	Backend    string        `yaml:"backend"`
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
	// Secret signs the session cookie. Empty means a random key per process,
	// which signs everyone out on restart.
	Secret string `yaml:"secret"`

	// badger backend
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`

	// redis backend
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a configuration that runs locally with Badger for both
// posts and sessions.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverBadger,
			Path:   filepath.Join("data", "badger"),
		},
		Session: SessionConfig{
			Backend:    SessionBadger,
			CookieName: "postingapp_session",
			TTL:        24 * time.Hour,
			Path:       filepath.Join("data", "sessions"),
			KeyPrefix:  "postingapp:session:",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"POSTINGAPP_ADDR":            &c.Server.Addr,
		"POSTINGAPP_STORE_DRIVER":    &c.Store.Driver,
		"POSTINGAPP_STORE_PATH":      &c.Store.Path,
		"POSTINGAPP_STORE_DSN":       &c.Store.DSN,
		"POSTINGAPP_SESSION_BACKEND": &c.Session.Backend,
		"POSTINGAPP_REDIS_ADDR":      &c.Session.RedisAddr,
		"POSTINGAPP_REDIS_PASSWORD":  &c.Session.RedisPassword,
		"POSTINGAPP_SESSION_SECRET":  &c.Session.Secret,
		"POSTINGAPP_LOG_LEVEL":       &c.Log.Level,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("POSTINGAPP_SESSION_SECURE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("POSTINGAPP_SESSION_SECURE: %w", err)
		}
		c.Session.Secure = b
	}
	return nil
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}

	switch c.Store.Driver {
	case DriverBadger, DriverSQLite:
		if c.Store.Path == "" && !c.Store.InMemory {
			errs = append(errs, fmt.Errorf("store.path is required for driver %q", c.Store.Driver))
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for driver \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Session.Backend {
	case SessionBadger:
		if c.Session.Path == "" && !c.Session.InMemory {
			errs = append(errs, errors.New("session.path is required for the badger backend"))
		}
	case SessionRedis:
		if c.Session.RedisAddr == "" {
			errs = append(errs, errors.New("session.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.backend %q", c.Session.Backend))
	}

	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name must not be empty"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.Secret != "" && len(c.Session.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("session.secret must be at least %d bytes", MinSecretLength))
	}

	return errors.Join(errs...)
}
