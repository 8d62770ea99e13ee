package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresJWTKey(t *testing.T) {
	t.Setenv("JWT_KEY", "")
	v := viper.New()

	_, err := Load(v)
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("JWT_KEY", "secret")
	t.Setenv("HF_API_KEY", "")
	v := viper.New()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 5000, cfg.ContextBudget)
	assert.Equal(t, 8, cfg.MaxConnectionsPerUser)
	assert.False(t, cfg.AIEnabled)
	assert.NotEmpty(t, cfg.DBURL)
}

func TestLoad_AIEnabledWhenHFKeyPresent(t *testing.T) {
	t.Setenv("JWT_KEY", "secret")
	t.Setenv("HF_API_KEY", "hf-token")
	v := viper.New()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.True(t, cfg.AIEnabled)
	assert.Equal(t, "hf-token", cfg.HFAPIKey)
}

func TestLoad_DatabaseURLEnvOverridesFlagDefault(t *testing.T) {
	t.Setenv("JWT_KEY", "secret")
	wantPath := filepath.Join(t.TempDir(), "custom.db")
	t.Setenv("DATABASE_URL", wantPath)
	v := viper.New()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, wantPath, cfg.DBURL)
}

func TestLoad_RespectsBoundFlagValues(t *testing.T) {
	t.Setenv("JWT_KEY", "secret")
	v := viper.New()
	v.Set("port", 9999)
	v.Set("debug", true)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.True(t, cfg.Debug)
}
