// Package config loads this runtime's process configuration from a single
// YAML file, following pkg/config/loader.go's load-then-merge-then-validate
// shape: read the file, expand environment variables, unmarshal into the
// YAML schema, merge user values over built-in defaults with
// dario.cat/mergo, then validate the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/surveyrt/runtime/internal/store"
)

// Config is the fully resolved process configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Quota    QuotaConfig    `yaml:"quota"`
	Session  SessionConfig  `yaml:"session"`
	GeoIP    GeoIPConfig    `yaml:"geoip"`
	Mailer   MailerConfig   `yaml:"mailer"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig controls the Postgres connection pool. Field shape
// mirrors internal/store.Config directly so Load's result can be handed
// to store.NewClient without translation.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// AsStoreConfig converts to internal/store.Config for NewClient.
func (d DatabaseConfig) AsStoreConfig() store.Config {
	return store.Config{
		Host: d.Host, Port: d.Port, User: d.User, Password: d.Password,
		Database: d.Database, SSLMode: d.SSLMode,
		MaxOpenConns: d.MaxOpenConns, MaxIdleConns: d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime, ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}

// OutboxConfig controls the relay that publishes committed outbox rows.
type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// QuotaConfig controls the background reservation sweep (spec.md §5's
// 30-minute reservation expiry).
type QuotaConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SessionConfig controls the incomplete-session abandonment sweep
// (spec.md §4.7's incomplete-response TTL).
type SessionConfig struct {
	AbandonSweepInterval time.Duration `yaml:"abandon_sweep_interval"`
	AbandonAfter         time.Duration `yaml:"abandon_after"`
}

// GeoIPConfig points at the admission-time IP lookup service
// (internal/geoip's external collaborator).
type GeoIPConfig struct {
	BaseURL string `yaml:"base_url"`
}

// MailerConfig configures the completion-time SMTP mailer
// (internal/notify's external collaborator).
type MailerConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads configFile, expands environment variables, merges it over
// the built-in defaults, and validates the result.
func Load(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configFile)
		}
		return nil, fmt.Errorf("read %s: %w", configFile, err)
	}

	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	cfg := DefaultConfig()
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge %s over defaults: %w", filepath.Base(configFile), err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return cfg, nil
}
