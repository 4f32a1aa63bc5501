package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("MINIO_BUCKET", "")
	t.Setenv("TRAIN_WINDOW_SIZE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "models", cfg.MinioBucket)
	assert.Equal(t, 120, cfg.WindowSize)
	assert.Equal(t, 64, cfg.HiddenSize)
	assert.Equal(t, 30, cfg.MaxEpochs)
	assert.Same(t, cfg, AppConfig)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TRAIN_WINDOW_SIZE", "48")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 48, cfg.WindowSize)
	assert.True(t, cfg.MinioUseSSL)
}

func TestGetEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("TRAIN_MAX_EPOCHS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.MaxEpochs)
}

func TestMaskHost(t *testing.T) {
	assert.Equal(t, "***", maskHost("db"))
	assert.Equal(t, "loc***", maskHost("localhost"))

	masked := maskHost("db.internal.example.com")
	assert.Contains(t, masked, "***")
	assert.NotEqual(t, "db.internal.example.com", masked)
}
