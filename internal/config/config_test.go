package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "happiness")
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("ENCRYPT_SALT", "salt")
	t.Setenv("OAUTH_BASE_URL", "https://api.example.com/")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
}

func TestLoad_DefaultsAndTrimming(t *testing.T) {
	setRequired(t)
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, "https://api.example.com", cfg.OAuthBaseURL)
	assert.Equal(t, "https://app.example.com", cfg.FrontendURL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "redis", cfg.StateStore)
	assert.False(t, cfg.S3.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("STATE_STORE", "MEMORY")
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")
	t.Setenv("S3_BUCKET", "pfp")
	t.Setenv("S3_ACCESS_KEY", "ak")

	cfg := Load()
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Equal(t, "memory", cfg.StateStore)
	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.RabbitURL)
	assert.True(t, cfg.S3.Enabled())
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 2*time.Second, c.RefillInterval)
	assert.Equal(t, 10*time.Second, c.TTL)
}

func TestLoadCacheConfig_Methods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	c := LoadCacheConfig()
	assert.True(t, c.Methods["GET"])
	assert.True(t, c.Methods["HEAD"])
	assert.False(t, c.Methods["POST"])
}

func TestEnvHelpers_FallBack(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "nope")
	t.Setenv("X_BOOL", "maybe")
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, time.Minute, envDur("X_DUR", time.Minute))
	assert.True(t, envBool("X_BOOL", true))
}
