package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "support.events", cfg.AMQPExchange)
	assert.Equal(t, time.Hour, cfg.Buffer.Retention)
	assert.Equal(t, "*/5 * * * *", cfg.Buffer.PruneCron)
	assert.Equal(t, 200, cfg.Buffer.MaxPerRoom)
	assert.Equal(t, 20, cfg.WSLimiter.Burst)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9000")
	t.Setenv("BUFFER_RETENTION", "15m")
	t.Setenv("BUFFER_PRUNE_CRON", "@hourly")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.Buffer.Retention)
	assert.Equal(t, "@hourly", cfg.Buffer.PruneCron)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsBadCron(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BUFFER_PRUNE_CRON", "every now and then")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUFFER_PRUNE_CRON")
}
