package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultsAndLoad(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Logging.AddSource)
	assert.Equal(t, time.RFC3339, cfg.Logging.TimeFormat)

	assert.Equal(t, 4096, cfg.Probe.BufferSize)
	assert.Equal(t, 30*time.Second, cfg.Probe.HTTPTimeout)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("logging.level", "debug")
	v.Set("probe.buffer_size", 8192)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8192, cfg.Probe.BufferSize)
}
