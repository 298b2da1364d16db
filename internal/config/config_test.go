package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "chat:", cfg.Store.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Store.SessionTTL())
	assert.Equal(t, 24*time.Hour, cfg.Store.ConversationTTL())
	assert.Equal(t, 5*time.Second, cfg.Store.ConnectionTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_KEY_PREFIX", "svc:")
	t.Setenv("SESSION_TTL_SECONDS", "600")
	t.Setenv("REDIS_CONNECTION_TIMEOUT_SECONDS", "2")

	cfg := Load()

	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "svc:", cfg.Store.KeyPrefix)
	assert.Equal(t, 10*time.Minute, cfg.Store.SessionTTL())
	assert.Equal(t, 2*time.Second, cfg.Store.ConnectionTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_UnparsableIntegerFallsBack(t *testing.T) {
	t.Setenv("REDIS_PORT", "not-a-port")

	cfg := Load()
	assert.Equal(t, 6379, cfg.Redis.Port)
}

func TestValidate_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Redis.Host = "" }},
		{"port out of range", func(c *Config) { c.Redis.Port = 70000 }},
		{"negative db", func(c *Config) { c.Redis.DB = -1 }},
		{"empty prefix", func(c *Config) { c.Store.KeyPrefix = "" }},
		{"glob in prefix", func(c *Config) { c.Store.KeyPrefix = "chat*:" }},
		{"class in prefix", func(c *Config) { c.Store.KeyPrefix = "chat[1]:" }},
		{"zero session ttl", func(c *Config) { c.Store.DefaultSessionTTLSeconds = 0 }},
		{"zero timeout", func(c *Config) { c.Store.ConnectionTimeoutSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrMalformedConfig)
		})
	}
}

func TestValidate_URLReplacesHost(t *testing.T) {
	cfg := Load()
	cfg.Redis.URL = "redis://:secret@cache:6379/1"
	cfg.Redis.Host = ""
	cfg.Redis.Port = 0

	assert.NoError(t, cfg.Validate())
}
