package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, int64(65536), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, []string{"jobs", "nodes", "agents"}, cfg.DefaultChannels)
	assert.Equal(t, 5*time.Minute, cfg.NodeTTL)
	assert.Equal(t, 10*time.Minute, cfg.AgentTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 0.01, cfg.CreditEarningRate)
	assert.Equal(t, 1.0, cfg.SubmissionCost)
	assert.Equal(t, 2.0, cfg.HighPriorityMultiplier)
	assert.Equal(t, 0.5, cfg.RefundFraction)
	assert.Equal(t, "petrel.db", cfg.DatabaseDSN)
	assert.Empty(t, cfg.RedisAddr)
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PETREL_HTTP_PORT", "9090")
	t.Setenv("PETREL_LIVENESS_NODE_TTL", "2m")
	t.Setenv("PETREL_WS_DEFAULT_CHANNELS", "jobs,metrics")
	t.Setenv("PETREL_CREDITS_SUBMISSION_COST", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.NodeTTL)
	assert.Equal(t, []string{"jobs", "metrics"}, cfg.DefaultChannels)
	assert.Equal(t, 2.5, cfg.SubmissionCost)
}
