package settlement

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"copytrade-ledger-go/internal/database"
	"copytrade-ledger-go/internal/ledger"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db       *database.Service
	engine   *Engine
	treasury *models.Wallet
	coin     *models.Coin
	bot      *models.Bot
	user     *models.User
	wallet   *models.Wallet
}

// newFixture seeds a treasury with 10000 cash and 10 BTC (fee 2%), a bot with
// a 1% fee and one user wallet holding 1000 cash.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	treasury, err := db.EnsureTreasury(ctx)
	require.NoError(t, err)
	require.NoError(t, db.FundTreasuryCash(ctx, decimal.NewFromInt(10000), "seed-cash"))

	coin, err := db.CreateCoin(ctx, store.CreateCoinParams{
		Symbol: "BTC", PriceFeedId: "BTCUSDT", FeeRate: decimal.RequireFromString("0.02"),
	})
	require.NoError(t, err)
	require.NoError(t, db.FundTreasuryCoin(ctx, "BTC", decimal.NewFromInt(10), "seed-btc"))

	bot, err := db.CreateBot(ctx, store.CreateBotParams{
		Name: "trend", CoinSymbol: "BTC", FeeRate: decimal.RequireFromString("0.01"),
	})
	require.NoError(t, err)

	user, wallet := addUser(t, db, "alice@example.com", 1000)

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{
		db:       db,
		engine:   NewEngine(db, decimal.NewFromInt(5), opts...),
		treasury: treasury,
		coin:     coin,
		bot:      bot,
		user:     user,
		wallet:   wallet,
	}
}

func addUser(t *testing.T, db *database.Service, email string, cash int64) (*models.User, *models.Wallet) {
	t.Helper()
	ctx := context.Background()
	user, err := db.CreateUser(ctx, uuid.New().String(), "Test User", email)
	require.NoError(t, err)
	wallet, err := db.GetWalletByUser(ctx, user.Id)
	require.NoError(t, err)
	if cash > 0 {
		require.NoError(t, db.Deposit(ctx, wallet.Id, decimal.NewFromInt(cash), "deposit-"+email))
	}
	return user, wallet
}

func (f *fixture) subscribe(t *testing.T, userId string, virtualCash, pct string) *models.Subscription {
	t.Helper()
	sub, err := f.db.CreateSubscription(context.Background(), store.CreateSubscriptionParams{
		UserId: userId, BotId: f.bot.Id,
		VirtualBalance:  decimal.RequireFromString(virtualCash),
		TradePercentage: decimal.RequireFromString(pct),
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) cash(t *testing.T, walletId string) decimal.Decimal {
	t.Helper()
	ctx := context.Background()
	if walletId == f.treasury.Id {
		w, err := f.db.GetTreasury(ctx)
		require.NoError(t, err)
		return w.Balance
	}
	wallets, err := f.db.ListWalletPositions(ctx, "", 1000)
	require.NoError(t, err)
	for _, w := range wallets {
		if w.Id == walletId {
			return w.Balance
		}
	}
	t.Fatalf("wallet %s not found", walletId)
	return decimal.Zero
}

func (f *fixture) holding(t *testing.T, walletId string) (decimal.Decimal, decimal.Decimal) {
	t.Helper()
	holdings, err := f.db.GetHoldings(context.Background(), walletId)
	require.NoError(t, err)
	for _, h := range holdings {
		if h.CoinId == f.coin.Id {
			return h.Amount, h.AverageBuyPrice
		}
	}
	return decimal.Zero, decimal.Zero
}

func (f *fixture) tradeCount(t *testing.T, walletId string) int {
	t.Helper()
	trades, err := f.db.GetTradeHistory(context.Background(), walletId, 100, 0)
	require.NoError(t, err)
	return len(trades)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), append([]any{"expected %s, got %s", expected, actual.String()}, msgAndArgs...)...)
}

func TestManualBuy_ConservesValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cashBefore := f.cash(t, f.wallet.Id).Add(f.cash(t, f.treasury.Id))

	result, err := f.engine.ManualTrade(ctx, f.wallet.Id, "btc", models.TradeBuy, dec("2"), dec("100"))
	require.NoError(t, err)
	require.True(t, result.Executed)

	assertDecimal(t, "200", result.Trade.Notional)
	assertDecimal(t, "4", result.Trade.Fee)
	assertDecimal(t, "796", f.cash(t, f.wallet.Id))
	assertDecimal(t, "10204", f.cash(t, f.treasury.Id))

	walletBtc, avg := f.holding(t, f.wallet.Id)
	treasuryBtc, _ := f.holding(t, f.treasury.Id)
	assertDecimal(t, "2", walletBtc)
	assertDecimal(t, "100", avg)
	assertDecimal(t, "8", treasuryBtc)

	cashAfter := f.cash(t, f.wallet.Id).Add(f.cash(t, f.treasury.Id))
	assert.True(t, cashBefore.Equal(cashAfter), "cash must be conserved")
	assertDecimal(t, "10", walletBtc.Add(treasuryBtc), "coin must be conserved")

	entries, err := f.db.GetJournalEntries(ctx, result.Trade.Id)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	perAsset := map[string]decimal.Decimal{}
	for _, e := range entries {
		perAsset[e.Asset] = perAsset[e.Asset].Add(e.DebitAmount).Sub(e.CreditAmount)
	}
	for asset, net := range perAsset {
		assert.True(t, net.IsZero(), "journal for %s must balance", asset)
	}

	assert.True(t, result.Trade.CreatedAt.Equal(fixedNow))
}

func TestManualBuy_AverageCostBasis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.db.CreateCoin(ctx, store.CreateCoinParams{Symbol: "ETH", PriceFeedId: "ETHUSDT"})
	require.NoError(t, err)
	require.NoError(t, f.db.FundTreasuryCoin(ctx, "ETH", decimal.NewFromInt(10), "seed-eth"))

	_, err = f.engine.ManualTrade(ctx, f.wallet.Id, "ETH", models.TradeBuy, dec("1"), dec("100"))
	require.NoError(t, err)
	_, err = f.engine.ManualTrade(ctx, f.wallet.Id, "ETH", models.TradeBuy, dec("1"), dec("200"))
	require.NoError(t, err)

	holdings, err := f.db.GetHoldings(ctx, f.wallet.Id)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, "2", holdings[0].Amount)
	assertDecimal(t, "150.00", holdings[0].AverageBuyPrice)
	assertDecimal(t, "700", f.cash(t, f.wallet.Id))
}

func TestManualTrade_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		direction models.TradeType
		symbol    string
		qty       string
		price     string
		expected  error
	}{
		{"cash short", models.TradeBuy, "BTC", "20", "100", store.ErrInsufficientFunds},
		{"treasury coin short", models.TradeBuy, "BTC", "11", "1", store.ErrInsufficientTreasuryLiquidity},
		{"nothing to sell", models.TradeSell, "BTC", "1", "100", store.ErrInsufficientCoinBalance},
		{"unknown coin", models.TradeBuy, "DOGE", "1", "1", store.ErrCoinNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.ManualTrade(ctx, f.wallet.Id, tt.symbol, tt.direction, dec(tt.qty), dec(tt.price))
			assert.True(t, errors.Is(err, tt.expected), "got %v", err)
		})
	}

	assert.Equal(t, 0, f.tradeCount(t, f.wallet.Id))
	assertDecimal(t, "1000", f.cash(t, f.wallet.Id))
	assertDecimal(t, "10000", f.cash(t, f.treasury.Id))
}

func TestManualSell_TreasuryCashShort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ManualTrade(ctx, f.wallet.Id, "BTC", models.TradeBuy, dec("1"), dec("100"))
	require.NoError(t, err)

	_, err = f.engine.ManualTrade(ctx, f.wallet.Id, "BTC", models.TradeSell, dec("1"), dec("1000000"))
	assert.True(t, errors.Is(err, store.ErrInsufficientTreasuryLiquidity), "got %v", err)

	held, _ := f.holding(t, f.wallet.Id)
	assertDecimal(t, "1", held)
}

func TestManualSell_RemovesEmptiedHolding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ManualTrade(ctx, f.wallet.Id, "BTC", models.TradeBuy, dec("1"), dec("100"))
	require.NoError(t, err)
	result, err := f.engine.ManualTrade(ctx, f.wallet.Id, "BTC", models.TradeSell, dec("1"), dec("100"))
	require.NoError(t, err)
	assertDecimal(t, "2", result.Trade.Fee)

	holdings, err := f.db.GetHoldings(ctx, f.wallet.Id)
	require.NoError(t, err)
	assert.Empty(t, holdings)
	assertDecimal(t, "996", f.cash(t, f.wallet.Id))
	assertDecimal(t, "10004", f.cash(t, f.treasury.Id))
	assert.Equal(t, 2, f.tradeCount(t, f.wallet.Id))
}

func TestCopyBuy_SequentialFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.user.Id, "200", "0.5")

	result, err := f.engine.ExecuteBuy(ctx, sub.Id, "signal-1", dec("100"))
	require.NoError(t, err)
	require.True(t, result.Executed)
	require.NotNil(t, result.BotTrade)

	// 100 spend at 100 is 1 BTC raw, then 1 x 0.98 x 0.99
	assertDecimal(t, "0.9702", result.Trade.Quantity)
	assertDecimal(t, "97.02", result.Trade.Notional)
	assertDecimal(t, "2.98", result.Trade.Fee)
	assert.Equal(t, result.Trade.Id, result.BotTrade.TradeId)
	assert.Equal(t, "signal-1", result.BotTrade.SignalId)

	assertDecimal(t, "900", f.cash(t, f.wallet.Id))
	assertDecimal(t, "10100", f.cash(t, f.treasury.Id))
	held, avg := f.holding(t, f.wallet.Id)
	assertDecimal(t, "0.9702", held)
	assertDecimal(t, "100", avg)

	reloaded, err := f.db.GetSubscription(ctx, sub.Id)
	require.NoError(t, err)
	assertDecimal(t, "100", reloaded.VirtualBalance)
	assertDecimal(t, "0.9702", reloaded.VirtualCoinBalance)
	assert.Equal(t, 1, f.tradeCount(t, f.wallet.Id))
}

func TestCopyBuy_DuplicateSignalRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.user.Id, "200", "0.5")

	_, err := f.engine.ExecuteBuy(ctx, sub.Id, "signal-1", dec("100"))
	require.NoError(t, err)

	_, err = f.engine.ExecuteBuy(ctx, sub.Id, "signal-1", dec("100"))
	assert.True(t, errors.Is(err, store.ErrDuplicateTransaction), "got %v", err)
	assertDecimal(t, "900", f.cash(t, f.wallet.Id))
	assert.Equal(t, 1, f.tradeCount(t, f.wallet.Id))
}

func TestCopyBuy_NoOps(t *testing.T) {
	t.Run("below minimum", func(t *testing.T) {
		f := newFixture(t)
		sub := f.subscribe(t, f.user.Id, "8", "0.5")

		result, err := f.engine.ExecuteBuy(context.Background(), sub.Id, "signal-1", dec("100"))
		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.Equal(t, SkipBelowMinimum, result.SkipReason)
		assert.Equal(t, 0, f.tradeCount(t, f.wallet.Id))
		assertDecimal(t, "1000", f.cash(t, f.wallet.Id))
	})

	t.Run("wallet cash below spend", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		sub := f.subscribe(t, f.user.Id, "1000", "1")
		_, err := f.engine.ManualTrade(ctx, f.wallet.Id, "BTC", models.TradeBuy, dec("1"), dec("100"))
		require.NoError(t, err)

		result, err := f.engine.ExecuteBuy(ctx, sub.Id, "signal-1", dec("100"))
		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.Equal(t, SkipWalletDesync, result.SkipReason)
	})

	t.Run("inactive subscription", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		sub := f.subscribe(t, f.user.Id, "200", "0.5")
		require.NoError(t, f.db.DeactivateSubscription(ctx, sub.Id, fixedNow))

		result, err := f.engine.ExecuteBuy(ctx, sub.Id, "signal-1", dec("100"))
		require.NoError(t, err)
		assert.False(t, result.Executed)
		assert.Equal(t, SkipInactive, result.SkipReason)
	})
}

func TestCopyBuy_TreasuryLiquidity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.user.Id, "1000", "1")

	_, err := f.engine.ExecuteBuy(ctx, sub.Id, "signal-1", dec("1"))
	assert.True(t, errors.Is(err, store.ErrInsufficientTreasuryLiquidity), "got %v", err)

	reloaded, err := f.db.GetSubscription(ctx, sub.Id)
	require.NoError(t, err)
	assertDecimal(t, "1000", reloaded.VirtualBalance)
	assertDecimal(t, "1000", f.cash(t, f.wallet.Id))
}

func TestCopySell_ClampsToRealHolding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.user.Id, "200", "0.5")

	_, err := f.engine.ExecuteBuy(ctx, sub.Id, "signal-1", dec("100"))
	require.NoError(t, err)
	// The user sells part of the position by hand, so the wallet holds less than the subscription thinks
	_, err = f.engine.ManualTrade(ctx, f.wallet.Id, "BTC", models.TradeSell, dec("0.5"), dec("100"))
	require.NoError(t, err)

	result, err := f.engine.ExecuteSell(ctx, sub.Id, "signal-2", dec("100"))
	require.NoError(t, err)
	require.True(t, result.Executed)

	assertDecimal(t, "0.4702", result.Trade.Quantity)
	assertDecimal(t, "47.02", result.Trade.Notional)
	// 47.02 x 0.98 = 46.0796, x 0.99 = 45.618804
	assertDecimal(t, "1.401196", result.Trade.Fee)

	held, _ := f.holding(t, f.wallet.Id)
	assert.True(t, held.IsZero())

	reloaded, err := f.db.GetSubscription(ctx, sub.Id)
	require.NoError(t, err)
	assertDecimal(t, "145.618804", reloaded.VirtualBalance)
	assertDecimal(t, "0.5", reloaded.VirtualCoinBalance)
}

func TestCopySell_NoHoldingIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.user.Id, "200", "0.5")

	_, err := f.engine.ExecuteBuy(ctx, sub.Id, "signal-1", dec("100"))
	require.NoError(t, err)
	_, err = f.engine.ManualTrade(ctx, f.wallet.Id, "BTC", models.TradeSell, dec("0.9702"), dec("100"))
	require.NoError(t, err)

	result, err := f.engine.ExecuteSell(ctx, sub.Id, "signal-2", dec("100"))
	require.NoError(t, err)
	assert.False(t, result.Executed)
	assert.Equal(t, SkipNoHolding, result.SkipReason)
}

type recordingJournal struct {
	mu         sync.Mutex
	references []string
	transfers  [][]ledger.Transfer
	err        error
}

func (j *recordingJournal) RecordSettlement(_ context.Context, reference string, transfers []ledger.Transfer) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.references = append(j.references, reference)
	j.transfers = append(j.transfers, transfers)
	return j.err
}

func TestEngine_MirrorsToJournal(t *testing.T) {
	journal := &recordingJournal{err: errors.New("mirror unavailable")}
	f := newFixture(t, WithJournal(journal))

	result, err := f.engine.ManualTrade(context.Background(), f.wallet.Id, "BTC", models.TradeBuy, dec("1"), dec("100"))
	require.NoError(t, err, "a journal failure must not fail the settlement")

	require.Len(t, journal.references, 1)
	assert.Equal(t, result.Trade.Id, journal.references[0])
	assert.Len(t, journal.transfers[0], 2)
}

func TestTradeIntent_Validate(t *testing.T) {
	valid := TradeIntent{Kind: KindCopy, Direction: models.TradeBuy, Price: dec("1"), SubscriptionId: "s", SignalId: "g"}
	assert.NoError(t, valid.Validate())

	noPrice := valid
	noPrice.Price = decimal.Zero
	assert.Error(t, noPrice.Validate())

	badDirection := valid
	badDirection.Direction = "HOLD"
	assert.Error(t, badDirection.Validate())

	dust := TradeIntent{Kind: KindManual, Direction: models.TradeBuy, Price: dec("1"), WalletId: "w", CoinSymbol: "BTC", Quantity: dec("0.000000001")}
	assert.Error(t, dust.Validate())
}
