package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"copytrade-ledger-go/internal/database"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/settlement"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	subs []models.Subscription
}

func (l staticLister) ListActiveSubscriptionsByBot(context.Context, string) ([]models.Subscription, error) {
	return l.subs, nil
}

type scriptedSettler struct {
	calls   atomic.Int32
	outcome map[string]func() (*settlement.Result, error)
}

func (s *scriptedSettler) Execute(_ context.Context, intent settlement.TradeIntent) (*settlement.Result, error) {
	s.calls.Add(1)
	return s.outcome[intent.SubscriptionId]()
}

func buySignal(price string) *models.Signal {
	return &models.Signal{
		Id: uuid.New().String(), BotId: "bot-1", Action: models.TradeBuy,
		ReferencePrice: decimal.RequireFromString(price), SignalTime: time.Now(),
	}
}

func TestProcessSubscriptions_RejectsInvalidSignal(t *testing.T) {
	settler := &scriptedSettler{}
	d := New(staticLister{subs: []models.Subscription{{Id: "s1"}}}, settler, nil, 2)

	for _, signal := range []*models.Signal{
		buySignal("0"),
		buySignal("-1"),
		{Id: "x", BotId: "bot-1", Action: "HOLD", ReferencePrice: decimal.NewFromInt(1)},
	} {
		_, err := d.ProcessSubscriptions(context.Background(), signal)
		assert.True(t, errors.Is(err, store.ErrInvalidSignal), "got %v", err)
	}
	assert.Equal(t, int32(0), settler.calls.Load())
}

func TestProcessSubscriptions_IsolatesEachSubscriber(t *testing.T) {
	executed := func() (*settlement.Result, error) { return &settlement.Result{Executed: true}, nil }
	settler := &scriptedSettler{outcome: map[string]func() (*settlement.Result, error){
		"ok-1":      executed,
		"liquidity": func() (*settlement.Result, error) { return nil, store.ErrInsufficientTreasuryLiquidity },
		"panics":    func() (*settlement.Result, error) { panic("boom") },
		"dust": func() (*settlement.Result, error) {
			return &settlement.Result{SkipReason: settlement.SkipBelowMinimum}, nil
		},
		"replayed": func() (*settlement.Result, error) { return nil, store.ErrDuplicateTransaction },
		"ok-2":     executed,
	}}

	var subs []models.Subscription
	for _, id := range []string{"ok-1", "liquidity", "panics", "dust", "replayed", "ok-2"} {
		subs = append(subs, models.Subscription{Id: id})
	}

	d := New(staticLister{subs: subs}, settler, nil, 3)
	result, err := d.ProcessSubscriptions(context.Background(), buySignal("100"))
	require.NoError(t, err)

	assert.Equal(t, 6, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, int32(6), settler.calls.Load())
}

func TestProcessSubscriptions_LiquidityFailureDoesNotBlockOthers(t *testing.T) {
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

	_, err = db.EnsureTreasury(ctx)
	require.NoError(t, err)
	_, err = db.CreateCoin(ctx, store.CreateCoinParams{Symbol: "BTC", PriceFeedId: "BTCUSDT", FeeRate: decimal.RequireFromString("0.02")})
	require.NoError(t, err)
	require.NoError(t, db.FundTreasuryCoin(ctx, "BTC", decimal.NewFromInt(10), "seed-btc"))
	bot, err := db.CreateBot(ctx, store.CreateBotParams{Name: "trend", CoinSymbol: "BTC", FeeRate: decimal.RequireFromString("0.01")})
	require.NoError(t, err)

	// The second subscriber would need about 485 BTC from a treasury holding 10
	allocations := []int64{200, 100000, 200}
	subIds := make([]string, len(allocations))
	for i, amount := range allocations {
		user, err := db.CreateUser(ctx, uuid.New().String(), "Subscriber", fmt.Sprintf("sub%d@example.com", i))
		require.NoError(t, err)
		wallet, err := db.GetWalletByUser(ctx, user.Id)
		require.NoError(t, err)
		require.NoError(t, db.Deposit(ctx, wallet.Id, decimal.NewFromInt(amount), fmt.Sprintf("deposit-%d", i)))

		sub, err := db.CreateSubscription(ctx, store.CreateSubscriptionParams{
			UserId: user.Id, BotId: bot.Id,
			VirtualBalance:  decimal.NewFromInt(amount),
			TradePercentage: decimal.RequireFromString("0.5"),
		})
		require.NoError(t, err)
		subIds[i] = sub.Id
	}

	d := New(db, settlement.NewEngine(db, decimal.NewFromInt(5)), nil, 3)
	signal := &models.Signal{
		Id: uuid.New().String(), BotId: bot.Id, Action: models.TradeBuy,
		ReferencePrice: decimal.NewFromInt(100), SignalTime: time.Now(),
	}

	result, err := d.ProcessSubscriptions(ctx, signal)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	failed, err := db.GetSubscription(ctx, subIds[1])
	require.NoError(t, err)
	assert.True(t, failed.VirtualCoinBalance.IsZero())
	for _, id := range []string{subIds[0], subIds[2]} {
		sub, err := db.GetSubscription(ctx, id)
		require.NoError(t, err)
		assert.True(t, sub.VirtualCoinBalance.Equal(decimal.RequireFromString("0.9702")))
	}

	// Redelivery settles nothing twice
	replay, err := d.ProcessSubscriptions(ctx, signal)
	require.NoError(t, err)
	assert.Equal(t, 0, replay.Succeeded)
	assert.Equal(t, 2, replay.Skipped)
	assert.Equal(t, 1, replay.Failed)
}
