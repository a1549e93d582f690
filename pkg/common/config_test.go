package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfig_Defaults(t *testing.T) {
	cfg, err := LoadClientConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "redis://127.0.0.1:6379", cfg.URL)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, time.Duration(0), cfg.ReadTimeout)
	assert.Equal(t, 8, cfg.PoolSize)
}

func TestLoadClientConfig_FromEnv(t *testing.T) {
	t.Setenv("REDWIRE_URL", "rediss://cache.internal:6380/3")
	t.Setenv("REDWIRE_DIAL_TIMEOUT", "2s")
	t.Setenv("REDWIRE_READ_TIMEOUT", "500ms")
	t.Setenv("REDWIRE_POOL_SIZE", "16")

	cfg, err := LoadClientConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "rediss://cache.internal:6380/3", cfg.URL)
	assert.Equal(t, 2*time.Second, cfg.DialTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ReadTimeout)
	assert.Equal(t, 16, cfg.PoolSize)
}
