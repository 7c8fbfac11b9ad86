package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "http://localhost:3000/api", cfg.APIBaseURL)
	assert.Equal(t, "memory", cfg.SessionStore)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "root:@tcp(localhost:3306)/psyconsult_chat?charset=utf8mb4&parseTime=True&loc=Local", cfg.Database.DSN)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://backend.example.com/api/")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SESSION_STORE", "mysql")
	t.Setenv("DB_DSN", "user:pw@tcp(db:3306)/chat")
	t.Setenv("POLL_INTERVAL", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://backend.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, "https://backend.example.com", cfg.AssetOrigin())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "user:pw@tcp(db:3306)/chat", cfg.Database.DSN)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
}

func TestLoadConfigRejects(t *testing.T) {
	t.Run("session store", func(t *testing.T) {
		t.Setenv("SESSION_STORE", "redis")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "SESSION_STORE")
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("SESSION_TTL", "forever")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestAssetOrigin(t *testing.T) {
	assert.Equal(t, "http://localhost:3000", AssetOrigin("http://localhost:3000/api"))
	assert.Equal(t, "http://localhost:3000", AssetOrigin("http://localhost:3000/api/"))
	assert.Equal(t, "http://files.local/v2", AssetOrigin("http://files.local/v2"))
}

func TestOriginPatterns(t *testing.T) {
	cfg := &Config{Origin: "https://app.example.com:8443"}
	assert.Equal(t, []string{"app.example.com:8443"}, cfg.OriginPatterns())

	cfg.Origin = "not a url"
	assert.Nil(t, cfg.OriginPatterns())
}
