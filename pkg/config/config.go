// Package config loads twentyfivefive settings from a YAML file and the
// environment.
//
// Precedence, lowest first: DefaultConfig, the YAML file, TFF_* variables.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/twentyfivefive/pkg/alert"
	"github.com/daviddao/twentyfivefive/pkg/model"
	"github.com/daviddao/twentyfivefive/pkg/pubsub"
)

const (
	// DefaultDir holds the default accomplishment log.
	DefaultDir = ".twentyfivefive"
	// DefaultDB is the default accomplishment log path.
	DefaultDB = DefaultDir + "/accomplishments.db"
	// UserConfigFile is the config path relative to the home directory.
	UserConfigFile = ".config/twentyfivefive/config.yaml"
)

// Config is the complete twentyfivefive configuration.
type Config struct {
	PublishKey   string `yaml:"publish_key"`
	SubscribeKey string `yaml:"subscribe_key"`
	// SigningKey enables publish signatures when set.
	SigningKey string `yaml:"signing_key"`
	TLS        bool   `yaml:"tls"`
	Origin     string `yaml:"origin"`
	// ClientID identifies this listener for presence; generated when empty.
	ClientID string `yaml:"client_id"`
	Channel  string `yaml:"channel"`

	// DB is a SQLite path or a postgres:// DSN.
	DB             string        `yaml:"db"`
	IntervalLength time.Duration `yaml:"interval_length"`
	// RequestTimeout bounds each HTTP request; 0 leaves timing to the server.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Retry RetryConfig `yaml:"retry"`
	Alert AlertConfig `yaml:"alert"`
}

// RetryConfig configures subscription recovery. The zero value retries
// every second forever.
type RetryConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	MaxRetries int           `yaml:"max_retries"`
}

// AlertConfig configures the alert phase.
type AlertConfig struct {
	Tick        time.Duration `yaml:"tick"`
	NotifyEvery int           `yaml:"notify_every"`
	Bell        bool          `yaml:"bell"`
}

// DefaultConfig returns a Config with defaults for everything except the
// keys and the channel.
func DefaultConfig() *Config {
	return &Config{
		Origin:         pubsub.DefaultOrigin,
		DB:             DefaultDB,
		IntervalLength: model.DefaultIntervalLength,
		Retry: RetryConfig{
			Initial: pubsub.DefaultRetryDelay,
		},
		Alert: AlertConfig{
			Tick:        alert.DefaultTick,
			NotifyEvery: alert.DefaultNotifyEvery,
			Bell:        true,
		},
	}
}

// UserConfigPath returns ~/.config/twentyfivefive/config.yaml, or "" when
// the home directory is unknown.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigFile)
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Load reads path and applies environment overrides from getenv. When
// optional is true a missing file yields the defaults.
func Load(path string, optional bool, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		switch {
		case err == nil:
			cfg = loaded
		case optional && errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TFF_* variables. Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	for key, dst := range map[string]*string{
		"TFF_PUBLISH_KEY":   &c.PublishKey,
		"TFF_SUBSCRIBE_KEY": &c.SubscribeKey,
		"TFF_SIGNING_KEY":   &c.SigningKey,
		"TFF_CHANNEL":       &c.Channel,
		"TFF_DB":            &c.DB,
		"TFF_ORIGIN":        &c.Origin,
		"TFF_CLIENT_ID":     &c.ClientID,
	} {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	if v := getenv("TFF_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TFF_TLS: %w", err)
		}
		c.TLS = b
	}
	return nil
}

// Validate checks the settings needed to talk to the pub/sub service.
func (c *Config) Validate() error {
	if c.PublishKey == "" {
		return fmt.Errorf("publish_key is required")
	}
	if c.SubscribeKey == "" {
		return fmt.Errorf("subscribe_key is required")
	}
	if c.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	return nil
}

// Pubsub returns the client configuration.
func (c *Config) Pubsub() pubsub.Config {
	return pubsub.Config{
		PublishKey:   c.PublishKey,
		SubscribeKey: c.SubscribeKey,
		SigningKey:   c.SigningKey,
		TLS:          c.TLS,
		Origin:       c.Origin,
		ClientID:     c.ClientID,
	}
}

// RetryPolicy returns the subscription retry policy.
func (c *Config) RetryPolicy() pubsub.RetryPolicy {
	return pubsub.RetryPolicy{
		Initial:    c.Retry.Initial,
		Max:        c.Retry.Max,
		Multiplier: c.Retry.Multiplier,
		MaxRetries: c.Retry.MaxRetries,
	}
}
