package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevDefaults(t *testing.T) {
	cfg, err := Load(EnvDev)
	require.NoError(t, err)

	assert.True(t, cfg.Dev())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Sweeper.RoomGrace)
	assert.Equal(t, "tandem", cfg.Redis.Prefix)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoadProdRequiresSecret(t *testing.T) {
	_, err := Load(EnvProd)
	assert.Error(t, err)

	t.Setenv("SECRET", "s3cret")
	cfg, err := Load(EnvProd)
	require.NoError(t, err)
	assert.False(t, cfg.Dev())
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, "release", cfg.Mode)
}

func TestLoadEnvFromVariable(t *testing.T) {
	t.Setenv("CONFIG_ENV", "staging")
	_, err := Load("")
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("INSTANCE_ID", "node-a")
	cfg, err := Load(EnvDev)
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, "node-a", cfg.InstanceID)
}
