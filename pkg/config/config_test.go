package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "DRY_RUN", cfg.ExecutionMode)
	assert.True(t, cfg.ExecutionEnabled)
	assert.Equal(t, "symbol", cfg.GateFeedScope)
	assert.Equal(t, 5*time.Second, cfg.GateFreshness)
	assert.InDelta(t, 10, cfg.GateDriftBps, 1e-9)
	assert.InDelta(t, 5, cfg.GateIndexDriftBps, 1e-9)
	assert.Contains(t, cfg.GateIndexSymbols, "NIFTY")
	assert.Equal(t, 15*time.Second, cfg.FeedStaleAfter)
	assert.Equal(t, 5, cfg.WSMaxFailures)
	assert.Equal(t, 5*time.Minute, cfg.WSCooldown)
	assert.Equal(t, 10, cfg.QueueRegularLimit)
	assert.Equal(t, "console", cfg.StorageMode)
	assert.Equal(t, DefaultBrokers(), cfg.Brokers)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("EXECUTION_MODE", "live")
	t.Setenv("EXECUTION_ENABLED", "false")
	t.Setenv("GATE_FEED_SCOPE", "GLOBAL")
	t.Setenv("FEED_INSTRUMENTS", "NSE:INFY, NSE:TCS,,")
	t.Setenv("QUEUE_REGULAR_WINDOW", "2s")
	t.Setenv("RISK_MAX_NOTIONAL", "250000.5")
	t.Setenv("STORAGE_MODE", "sqlite")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "LIVE", cfg.ExecutionMode)
	assert.False(t, cfg.ExecutionEnabled)
	assert.Equal(t, "global", cfg.GateFeedScope)
	assert.Equal(t, []string{"NSE:INFY", "NSE:TCS"}, cfg.FeedInstruments)
	assert.Equal(t, 2*time.Second, cfg.QueueRegularWindow)
	assert.InDelta(t, 250000.5, cfg.RiskMaxNotional, 1e-9)
	assert.Equal(t, "sqlite", cfg.StorageMode)
}

func TestLoadFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("QUEUE_REGULAR_LIMIT", "ten")
	t.Setenv("GATE_FRESHNESS", "soon")
	t.Setenv("EXECUTION_ENABLED", "maybe")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.QueueRegularLimit)
	assert.Equal(t, 5*time.Second, cfg.GateFreshness)
	assert.True(t, cfg.ExecutionEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{"bad mode", map[string]string{"EXECUTION_MODE": "paper"}, "EXECUTION_MODE"},
		{"bad scope", map[string]string{"GATE_FEED_SCOPE": "venue"}, "GATE_FEED_SCOPE"},
		{"bad storage", map[string]string{"STORAGE_MODE": "s3"}, "STORAGE_MODE"},
		{"zero drift", map[string]string{"GATE_DRIFT_BPS": "0"}, "drift"},
		{"zero breaker threshold", map[string]string{"BREAKER_FAILURE_THRESHOLD": "0"}, "BREAKER_FAILURE_THRESHOLD"},
		{"missing brokers file", map[string]string{"BROKERS_FILE": "/nonexistent/brokers.yaml"}, "load brokers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXECGW_TEST_DOTENV=from-file\nHTTP_PORT=9999\n"), 0o600))

	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("EXECGW_TEST_DOTENV", "")
	os.Unsetenv("EXECGW_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("EXECGW_TEST_DOTENV"))
	assert.Equal(t, "7070", os.Getenv("HTTP_PORT"), "existing variables win")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
