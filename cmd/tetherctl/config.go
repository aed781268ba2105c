package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/tether"
	"github.com/arloliu/tether/origin"
	"github.com/arloliu/tether/topology"
)

// envPassword overrides origin.password so secrets can stay out of config files.
const envPassword = "TETHER_PASSWORD"

// Config is the tetherctl configuration file.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Origin   OriginConfig   `yaml:"origin"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Drain    DrainConfig    `yaml:"drain"`
}

type RegistryConfig struct {
	Pooling       bool          `yaml:"pooling"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	OpenTimeout   time.Duration `yaml:"open_timeout"`
	CloseTimeout  time.Duration `yaml:"close_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxHandles    int           `yaml:"max_handles"`
}

type OriginConfig struct {
	ConnectionString string            `yaml:"connection_string"`
	Username         string            `yaml:"username"`
	Password         string            `yaml:"password"`
	Options          map[string]string `yaml:"options"`
}

type MetricsConfig struct {
	Listen  string `yaml:"listen"`  // empty disables the endpoint
	Backend string `yaml:"backend"` // vm | prom
	Prefix  string `yaml:"prefix"`
}

type DrainConfig struct {
	NATSURL string `yaml:"nats_url"` // empty disables drain watching
	Bucket  string `yaml:"bucket"`
	Key     string `yaml:"key"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Pooling:       true,
			IdleTimeout:   tether.DefaultIdleTimeout,
			OpenTimeout:   tether.DefaultOpenTimeout,
			CloseTimeout:  tether.DefaultCloseTimeout,
			SweepInterval: tether.DefaultSweepInterval,
		},
		Origin: OriginConfig{
			ConnectionString: "cql://127.0.0.1",
		},
		Metrics: MetricsConfig{
			Backend: "vm",
			Prefix:  "tether",
		},
		Drain: DrainConfig{
			Bucket: "tether-config",
			Key:    topology.DefaultWatcherConfig().Key,
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
// An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if pw := os.Getenv(envPassword); pw != "" {
		cfg.Origin.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that the registry options would otherwise ignore silently.
func (c *Config) Validate() error {
	var errs []error

	if c.Registry.IdleTimeout < 0 || c.Registry.OpenTimeout < 0 || c.Registry.CloseTimeout < 0 {
		errs = append(errs, errors.New("registry: timeouts must not be negative"))
	}
	if c.Registry.SweepInterval < 0 {
		errs = append(errs, errors.New("registry: sweep_interval must not be negative"))
	}
	if c.Registry.MaxHandles < 0 {
		errs = append(errs, errors.New("registry: max_handles must not be negative"))
	}
	if c.Origin.ConnectionString == "" {
		errs = append(errs, errors.New("origin: connection_string is required"))
	}
	switch c.Metrics.Backend {
	case "vm", "prom":
	default:
		errs = append(errs, fmt.Errorf("metrics: unknown backend %q", c.Metrics.Backend))
	}
	if c.Drain.NATSURL != "" && c.Drain.Bucket == "" {
		errs = append(errs, errors.New("drain: bucket is required with nats_url"))
	}

	return errors.Join(errs...)
}

// OriginOptions returns the credentials and tuning options for Acquire.
func (c *Config) OriginOptions() origin.Options {
	return origin.Options{
		Username: c.Origin.Username,
		Password: c.Origin.Password,
		Values:   c.Origin.Options,
	}
}

// RegistryOptions translates the registry section into registry options.
func (c *Config) RegistryOptions() []tether.Option {
	return []tether.Option{
		tether.WithPooling(c.Registry.Pooling),
		tether.WithIdleTimeout(c.Registry.IdleTimeout),
		tether.WithOpenTimeout(c.Registry.OpenTimeout),
		tether.WithCloseTimeout(c.Registry.CloseTimeout),
		tether.WithSweepInterval(c.Registry.SweepInterval),
		tether.WithMaxHandles(c.Registry.MaxHandles),
	}
}
