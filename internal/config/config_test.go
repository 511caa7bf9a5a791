package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ledger.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Snapshot.Interval)
	assert.Equal(t, 100, cfg.Snapshot.BatchSize)
	assert.Equal(t, 256, cfg.Signals.QueueSize)
	assert.Equal(t, 4, cfg.Signals.MaxWorkers)
	assert.True(t, cfg.Settlement.MinTradeValue.Equal(decimal.NewFromInt(5)))
	assert.Empty(t, cfg.Formance.StackURL)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "market.yaml", cfg.MarketFile)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/other.db")
	t.Setenv("SNAPSHOT_BATCH_SIZE", "50")
	t.Setenv("SIGNAL_MAX_AGE", "2m")
	t.Setenv("MIN_TRADE_VALUE", "0.5")
	t.Setenv("DISPATCH_MAX_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, 50, cfg.Snapshot.BatchSize)
	assert.Equal(t, 2*time.Minute, cfg.Signals.MaxAge)
	assert.True(t, cfg.Settlement.MinTradeValue.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 4, cfg.Signals.MaxWorkers, "unparseable ints fall back to the default")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SNAPSHOT_INTERVAL", "often"},
		{"MIN_TRADE_VALUE", "five"},
		{"MIN_TRADE_VALUE", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
