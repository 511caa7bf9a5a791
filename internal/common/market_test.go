package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"copytrade-ledger-go/internal/database"
	"copytrade-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleMarket = `
treasury_cash: "50000"
coins:
  - symbol: BTC
    price_feed_id: BTCUSDT
    fee_rate: "0.001"
    treasury_liquidity: "2"
  - symbol: eth
    price_feed_id: ETHUSDT
bots:
  - name: btc-trend
    coin: BTC
    fee_rate: "0.01"
  - name: eth-swing
    coin: ETH
    status: inactive
`

func writeMarket(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func openTestDb(t *testing.T) *database.Service {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestLoadMarketConfig(t *testing.T) {
	cfg, err := LoadMarketConfig(writeMarket(t, sampleMarket))
	require.NoError(t, err)

	assert.Equal(t, "50000", cfg.TreasuryCash)
	require.Len(t, cfg.Coins, 2)
	assert.Equal(t, "BTCUSDT", cfg.Coins[0].PriceFeedId)
	assert.Equal(t, "2", cfg.Coins[0].Liquidity)
	require.Len(t, cfg.Bots, 2)
	assert.Equal(t, models.BotStatusInactive, cfg.Bots[1].Status)
}

func TestLoadMarketConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing symbol", "coins:\n  - price_feed_id: X\n"},
		{"missing feed", "coins:\n  - symbol: BTC\n"},
		{"bot without name", "coins:\n  - {symbol: BTC, price_feed_id: BTCUSDT}\nbots:\n  - coin: BTC\n"},
		{"bot on unknown coin", "coins:\n  - {symbol: BTC, price_feed_id: BTCUSDT}\nbots:\n  - {name: b, coin: SOL}\n"},
		{"unknown bot status", "coins:\n  - {symbol: BTC, price_feed_id: BTCUSDT}\nbots:\n  - {name: b, coin: BTC, status: paused}\n"},
		{"malformed yaml", "coins: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMarketConfig(writeMarket(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadMarketConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSeedMarket_FundsOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDb(t)

	cfg, err := LoadMarketConfig(writeMarket(t, sampleMarket))
	require.NoError(t, err)

	require.NoError(t, SeedMarket(ctx, db, cfg))
	require.NoError(t, SeedMarket(ctx, db, cfg))

	treasury, err := db.GetTreasury(ctx)
	require.NoError(t, err)
	assert.True(t, treasury.Balance.Equal(decimal.NewFromInt(50000)), "treasury cash = %s", treasury.Balance)

	btc, err := db.GetCoinBySymbol(ctx, "BTC")
	require.NoError(t, err)
	holdings, err := db.GetHoldings(ctx, treasury.Id)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, btc.Id, holdings[0].CoinId)
	assert.True(t, holdings[0].Amount.Equal(decimal.NewFromInt(2)), "treasury BTC = %s", holdings[0].Amount)

	_, err = db.GetCoinBySymbol(ctx, "ETH")
	assert.NoError(t, err)

	bot, err := db.GetBotByName(ctx, "eth-swing")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusInactive, bot.Status)
}

func TestSeedMarket_BadAmount(t *testing.T) {
	ctx := context.Background()
	db := openTestDb(t)

	err := SeedMarket(ctx, db, &MarketConfig{TreasuryCash: "lots"})
	assert.Error(t, err)
}

func TestInitializeUsers(t *testing.T) {
	ctx := context.Background()
	db := openTestDb(t)

	_, err := db.EnsureTreasury(ctx)
	require.NoError(t, err)
	_, err = db.CreateUser(ctx, "u-1", "Alice", "alice@example.com")
	require.NoError(t, err)
	_, err = db.CreateUser(ctx, "u-2", "Bob", "bob@example.com")
	require.NoError(t, err)

	all, err := InitializeUsers(ctx, db, "", zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, u := range all {
		assert.NotEmpty(t, u.WalletId)
	}

	one, err := InitializeUsers(ctx, db, "bob@example.com", zap.NewNop())
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "u-2", one[0].Id)

	_, err = InitializeUsers(ctx, db, "nobody@example.com", zap.NewNop())
	assert.Error(t, err)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "+12.50", FormatCash(decimal.RequireFromString("12.5"), true))
	assert.Equal(t, "-3.00", FormatCash(decimal.NewFromInt(-3), true))
	assert.Equal(t, "12.50", FormatCash(decimal.RequireFromString("12.5"), false))
	assert.Equal(t, "+9.60%", FormatPercent(decimal.RequireFromString("9.6")))
	assert.Equal(t, "-0.40%", FormatPercent(decimal.RequireFromString("-0.4")))
	assert.Equal(t, "0.9702", FormatQuantity(decimal.RequireFromString("0.97020000")))
}
