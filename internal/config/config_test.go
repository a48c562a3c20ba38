package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/reachbox.db", cfg.DatabasePath)
	assert.Equal(t, 2*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 720*time.Hour, cfg.LookbackWindow)
	assert.Equal(t, 100, cfg.FetchBatchLimit)
	assert.Equal(t, 10*time.Second, cfg.IMAPDialTimeout)
	assert.Equal(t, 3*time.Second, cfg.IMAPAuthTimeout)
	assert.Equal(t, time.Minute, cfg.IMAPCommandTimeout)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "30s")
	t.Setenv("FETCH_BATCH_LIMIT", "25")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 25, cfg.FetchBatchLimit)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_INTERVAL")
}
