package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadFlightConfigDefaults(t *testing.T) {
	t.Setenv("AFS_BASE_URL", "https://afs.example.com")
	t.Setenv("AFS_API_KEY", "k")
	t.Setenv("AFS_TIMEOUT", "1500ms")

	c := LoadFlightConfig()
	assert.Equal(t, "https://afs.example.com", c.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, c.Timeout)
	assert.Equal(t, 3, c.SearchAttempts)
	assert.Equal(t, uint32(5), c.BreakerFailures)
}

func TestRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 10*time.Second, c.TTL)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "off")
	t.Setenv("X_INT", "nope")
	assert.False(t, envBool("X_BOOL", true))
	assert.True(t, envBool("X_UNSET", true))
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, parseMethods(" get, HEAD ,"))
}

func TestLoadReconcilerConfig(t *testing.T) {
	t.Setenv("RECONCILE_GRACE", "5m")
	c := LoadReconcilerConfig()
	assert.Equal(t, 5*time.Minute, c.Grace)
	assert.Equal(t, 5, c.MaxAttempts)
}

func TestLoadClampsReconcileInterval(t *testing.T) {
	for _, k := range []string{"APP_ENV", "APP_PORT", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME", "JWT_SECRET"} {
		t.Setenv(k, "x")
	}
	for _, v := range []string{"0s", "-5s", "soon"} {
		t.Setenv("RECONCILE_INTERVAL", v)
		assert.Equal(t, 30*time.Second, Load().ReconcileInterval, v)
	}
	t.Setenv("RECONCILE_INTERVAL", "2m")
	assert.Equal(t, 2*time.Minute, Load().ReconcileInterval)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_TLS", "yes")
	c := LoadRedisConfig()
	assert.Equal(t, "cache:6380", c.Addr)
	assert.True(t, c.TLS)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	assert.Equal(t, "redis:6379", LoadRedisConfig().Addr)
}
