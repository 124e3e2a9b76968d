// Package config provides configuration management for taoctl using Viper.
// It supports configuration from files, environment variables, and defaults.
//
// The core codec/container library (pkg/codec, pkg/format, ...) takes no
// configuration of its own beyond explicit constructor arguments; this
// package only configures the CLI collaborator around it.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultProbeBufferSize = 4096 // bytes, per spec.md open_input probe window
	defaultHTTPTimeout     = 30 * time.Second
)

// Config holds all configuration for taoctl.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Probe   ProbeConfig   `mapstructure:"probe"`
}

// LoggingConfig holds logging configuration, consumed by internal/observability.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ProbeConfig holds format-probing configuration for the `taoctl probe` and
// `remux` commands.
type ProbeConfig struct {
	// BufferSize is how many leading bytes are read for format probing
	// before rewinding (spec.md §4.4 FormatRegistry.open_input).
	BufferSize  int           `mapstructure:"buffer_size"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// SetDefaults installs default configuration values on the given Viper
// instance before any config file or environment variables are applied.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("probe.buffer_size", defaultProbeBufferSize)
	v.SetDefault("probe.http_timeout", defaultHTTPTimeout)
}

// Load reads a fully populated Config out of a Viper instance.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
