package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all gateway service configuration. Provider definitions live
// in the separate catalog file named by Catalog.Path.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Alerts  AlertsConfig  `mapstructure:"alerts"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// CatalogConfig locates the provider catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig defines where routing attempts are persisted.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig defines the optional response cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AlertsConfig defines budget alerting integrations.
type AlertsConfig struct {
	ThresholdPct float64       `mapstructure:"threshold_pct"`
	Slack        SlackConfig   `mapstructure:"slack"`
	Webhook      WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".llmgw"), nil
}

// Load reads configuration from a .env file, the config file and
// environment variables, in increasing order of precedence.
func Load(cfgFile string) (*Config, error) {
	// Provider API keys are usually kept in .env and referenced from the catalog.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_size", 1<<20)
	v.SetDefault("server.cors_origins", []string{"http://localhost:*"})
	v.SetDefault("catalog.path", filepath.Join(dir, "providers.yaml"))
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(dir, "gateway.db"))
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("alerts.threshold_pct", 80)
	v.SetDefault("alerts.slack.channel", "#llm-gateway")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetEnvPrefix("LLMGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported (sqlite or postgres)", c.Storage.Driver)
	}
	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		return errors.New("cache.redis_url is required when the cache is enabled")
	}
	if c.Alerts.ThresholdPct <= 0 || c.Alerts.ThresholdPct > 100 {
		return fmt.Errorf("alerts.threshold_pct must be in (0, 100], got %v", c.Alerts.ThresholdPct)
	}
	return nil
}
