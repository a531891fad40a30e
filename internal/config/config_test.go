package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVER_SECRET", "s3cret")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "X-API-Key", cfg.Auth.GateHeader)
	assert.Equal(t, "accounts", cfg.Auth.AccountCollection)
	assert.Equal(t, 10*time.Second, cfg.MongoDB.Timeout)
	assert.Equal(t, 8*24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_RequiredVars(t *testing.T) {
	t.Setenv("SERVER_SECRET", "")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("SERVER_SECRET", "s3cret")
	t.Setenv("MONGODB_URI", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_SECRET", "s3cret")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("AUTH_TOKEN_TTL_MINUTES", "1")
	t.Setenv("RATE_LIMIT_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Auth.TokenTTL)
	assert.True(t, cfg.RateLimit.Enabled)
}
