// Package config loads server configuration from defaults, an optional
// config file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvConfigFile names the config file when no -config flag is given.
const EnvConfigFile = "FILEROOT_CONFIG"

// Config holds all server configuration. Keys double as environment variable
// names when upper-cased: data_dir is read from DATA_DIR.
type Config struct {
	// Storage
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" validate:"required,dir"`

	// Server
	ListenHost      string        `mapstructure:"listen_host" yaml:"listen_host" validate:"omitempty,ip|hostname"`
	Port            int           `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	MetricsAddr     string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	AssetsDir       string        `mapstructure:"assets_dir" yaml:"assets_dir" validate:"omitempty,dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"-" validate:"gt=0"`
	EventsEnabled   bool          `mapstructure:"events_enabled" yaml:"events_enabled"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"oneof=json console"`

	// Rate limiting (0 requests per second disables it)
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst" validate:"gte=0"`
}

var defaults = map[string]any{
	"data_dir":         "",
	"listen_host":      "",
	"port":             3000,
	"metrics_addr":     ":9090",
	"assets_dir":       "",
	"shutdown_timeout": 10 * time.Second,
	"events_enabled":   true,
	"log_level":        "info",
	"log_format":       "json",
	"rate_limit_rps":   0.0,
	"rate_limit_burst": 0,
}

// validate is the singleton validator instance
var validate = validator.New()

// Load reads configuration. configPath may be empty, in which case the
// FILEROOT_CONFIG environment variable is consulted; with neither set only
// defaults and the environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v)

	if configPath == "" {
		configPath = v.GetString(strings.ToLower(EnvConfigFile))
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper) {
	// METRICS_ADDR= (empty) must disable metrics rather than fall back.
	v.AllowEmptyEnv(true)
	for key, value := range defaults {
		v.SetDefault(key, value)
		// Explicit binding so Unmarshal sees variables for keys that only
		// have a zero default.
		_ = v.BindEnv(key, strings.ToUpper(key))
	}
	_ = v.BindEnv(strings.ToLower(EnvConfigFile), EnvConfigFile)
}

// ApplyDefaults fills in values that depend on other settings.
func ApplyDefaults(cfg *Config) {
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults["shutdown_timeout"].(time.Duration)
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = int(math.Max(1, math.Ceil(cfg.RateLimitRPS)))
	}
}

// Validate validates the configuration using struct tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// MarshalYAML writes durations in string form ("10s") so the output can be
// read back by Load.
func (c Config) MarshalYAML() (any, error) {
	type plain Config
	return struct {
		plain           `yaml:",inline"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	}{plain(c), c.ShutdownTimeout.String()}, nil
}

// RateLimitEnabled reports whether a global request rate limit applies.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0
}
