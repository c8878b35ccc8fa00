package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverChromedp = "chromedp"
	DriverStatic   = "static"
)

// Config holds the application configuration.
type Config struct {
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	LandingURL string `mapstructure:"LANDING_URL"`
	ResultsDir string `mapstructure:"RESULTS_DIR"`

	Driver                 string `mapstructure:"DRIVER"`
	Headless               bool   `mapstructure:"HEADLESS"`
	UserAgents             string `mapstructure:"USER_AGENTS"`
	Proxies                string `mapstructure:"PROXIES"`
	WaitTimeoutSeconds     int    `mapstructure:"WAIT_TIMEOUT_SECONDS"`
	PageLoadTimeoutSeconds int    `mapstructure:"PAGE_LOAD_TIMEOUT_SECONDS"`
	SkipWriteErrors        bool   `mapstructure:"SKIP_WRITE_ERRORS"`
	PollIntervalSeconds    int    `mapstructure:"POLL_INTERVAL_SECONDS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	PostgresURL string `mapstructure:"POSTGRES_URL"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LANDING_URL", "https://www.paginasamarillas.es/")
	v.SetDefault("RESULTS_DIR", "results")
	v.SetDefault("DRIVER", DriverChromedp)
	v.SetDefault("HEADLESS", true)
	v.SetDefault("USER_AGENTS", "")
	v.SetDefault("PROXIES", "")
	v.SetDefault("WAIT_TIMEOUT_SECONDS", 5)
	v.SetDefault("PAGE_LOAD_TIMEOUT_SECONDS", 60)
	v.SetDefault("SKIP_WRITE_ERRORS", true)
	v.SetDefault("POLL_INTERVAL_SECONDS", 2)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("POSTGRES_URL", "")
}

// Load reads configuration from an optional .env file and the environment.
// Values already set on v (for example bound command-line flags) take precedence.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env is fine; everything can come from the environment.
	_ = v.ReadInConfig()

	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted away.
func (c *Config) Validate() error {
	var errs []error
	if c.LandingURL == "" {
		errs = append(errs, errors.New("LANDING_URL must not be empty"))
	}
	if c.ResultsDir == "" {
		errs = append(errs, errors.New("RESULTS_DIR must not be empty"))
	}
	if c.Driver != DriverChromedp && c.Driver != DriverStatic {
		errs = append(errs, fmt.Errorf("DRIVER must be %q or %q, got %q", DriverChromedp, DriverStatic, c.Driver))
	}
	if c.WaitTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("WAIT_TIMEOUT_SECONDS must be positive"))
	}
	if c.PageLoadTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("PAGE_LOAD_TIMEOUT_SECONDS must be positive"))
	}
	if c.PollIntervalSeconds <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL_SECONDS must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// UserAgentList returns the configured user agents, or nil to use the built-in set.
func (c *Config) UserAgentList() []string {
	return splitList(c.UserAgents, "|")
}

func (c *Config) ProxyList() []string {
	return splitList(c.Proxies, ",")
}

func splitList(raw, sep string) []string {
	var out []string
	for _, item := range strings.Split(raw, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
