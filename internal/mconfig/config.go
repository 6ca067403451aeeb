// Package mconfig holds mapperd's configuration surface: the broker
// connection, cluster/warden tuning knobs, and the ambient logging
// sub-config, loaded with github.com/spf13/viper from environment
// variables and an optional YAML file, and checked with an explicit
// Validate method rather than a tag-driven validator library.
//
// Grounded on the teacher's core/mdp.Config (YAML-plus-env-override
// loading, explicit Validate-by-hand) and core/config.LogConfig/LokiConfig
// (recreated here since only their _test.go files were retrieved).
package mconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LokiConfig configures the optional Grafana Loki logging hook.
type LokiConfig struct {
	Address string            `mapstructure:"address"`
	Labels  map[string]string `mapstructure:"labels"`
}

// LogConfig configures mapperd's logrus setup.
type LogConfig struct {
	Formatter string     `mapstructure:"formatter"` // "text" or "json", default "text"
	Level     string     `mapstructure:"level"`     // trace|debug|info|warn|error|fatal|panic
	Loki      LokiConfig `mapstructure:"loki"`
}

// Config is mapperd's complete runtime configuration (§6 "Configuration").
type Config struct {
	// Identity is the mapper identity prefix; the final on-wire identity
	// is "mapper-<identity>".
	Identity string `mapstructure:"identity"`

	// Format names the serializer ("json" or "msgpack").
	Format string `mapstructure:"format"`

	// AgentTimeout is the heartbeat staleness window before reap. Default 15s.
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`

	// OfflineRedeliveryFrequency is the recover-sweep cadence. Default 10s.
	OfflineRedeliveryFrequency time.Duration `mapstructure:"offline_redelivery_frequency"`

	// Persistent is the default broker-durability flag for outgoing envelopes.
	Persistent bool `mapstructure:"persistent"`

	// Secure restricts agents to addressing only their own direct queue;
	// enforced at the broker, outside this package.
	Secure bool `mapstructure:"secure"`

	// Broker connection parameters.
	Vhost string `mapstructure:"vhost"`
	User  string `mapstructure:"user"`
	Pass  string `mapstructure:"pass"`
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`

	Log LogConfig `mapstructure:"log"`
}

// Default returns a Config populated with the §6 documented defaults.
func Default() *Config {
	return &Config{
		Format:                     "json",
		AgentTimeout:               15 * time.Second,
		OfflineRedeliveryFrequency: 10 * time.Second,
		Persistent:                 false,
		Secure:                     false,
		Vhost:                      "/",
		User:                       "guest",
		Pass:                       "guest",
		Host:                       "localhost",
		Port:                       5672,
		Log: LogConfig{
			Formatter: "text",
			Level:     "info",
		},
	}
}

// Load builds a viper instance seeded with defaults, overridden by an
// optional YAML file at path (ignored if empty or missing) and by
// MAPPERD_-prefixed environment variables, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("mapperd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("identity", def.Identity)
	v.SetDefault("format", def.Format)
	v.SetDefault("agent_timeout", def.AgentTimeout)
	v.SetDefault("offline_redelivery_frequency", def.OfflineRedeliveryFrequency)
	v.SetDefault("persistent", def.Persistent)
	v.SetDefault("secure", def.Secure)
	v.SetDefault("vhost", def.Vhost)
	v.SetDefault("user", def.User)
	v.SetDefault("pass", def.Pass)
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("log.formatter", def.Log.Formatter)
	v.SetDefault("log.level", def.Log.Level)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration by hand, matching the teacher's own
// style of validating mdp.Config rather than reaching for a tag-driven
// validator library.
func (c *Config) Validate() error {
	if c.Identity == "" {
		return fmt.Errorf("identity is required")
	}
	if c.Format != "json" && c.Format != "msgpack" {
		return fmt.Errorf("format must be \"json\" or \"msgpack\", got %q", c.Format)
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("agent_timeout must be positive")
	}
	if c.OfflineRedeliveryFrequency <= 0 {
		return fmt.Errorf("offline_redelivery_frequency must be positive")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("log.level %q is not recognized", c.Log.Level)
	}
	return nil
}

// AMQPURL builds the amqp091-go dial URL from the broker connection fields.
func (c *Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.User, c.Pass, c.Host, c.Port, c.Vhost)
}

// MapperIdentity returns the final on-wire identity, "mapper-<identity>".
func (c *Config) MapperIdentity() string {
	return "mapper-" + c.Identity
}
