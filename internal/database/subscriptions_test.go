package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"copytrade-ledger-go/internal/ledger"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSubscription_EnforcesAllocation(t *testing.T) {
	service := setupTestDb(t)
	m := seedMarket(t, service)
	ctx := context.Background()

	sub, err := service.CreateSubscription(ctx, store.CreateSubscriptionParams{
		UserId: m.user.Id, BotId: m.bot.Id,
		VirtualBalance: decimal.NewFromInt(600), TradePercentage: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.True(t, sub.NetInvestment.IsZero())

	// Same user and bot again
	_, err = service.CreateSubscription(ctx, store.CreateSubscriptionParams{
		UserId: m.user.Id, BotId: m.bot.Id,
		VirtualBalance: decimal.NewFromInt(1), TradePercentage: decimal.RequireFromString("0.5"),
	})
	assert.True(t, errors.Is(err, store.ErrDuplicateTransaction))

	other, err := service.CreateBot(ctx, store.CreateBotParams{Name: "other", CoinSymbol: "BTC"})
	require.NoError(t, err)

	_, err = service.CreateSubscription(ctx, store.CreateSubscriptionParams{
		UserId: m.user.Id, BotId: other.Id,
		VirtualBalance: decimal.NewFromInt(401), TradePercentage: decimal.RequireFromString("0.5"),
	})
	assert.True(t, errors.Is(err, store.ErrAllocationExceeded), "got %v", err)

	_, err = service.CreateSubscription(ctx, store.CreateSubscriptionParams{
		UserId: m.user.Id, BotId: other.Id,
		VirtualCoinBalance: decimal.NewFromInt(1), TradePercentage: decimal.RequireFromString("0.5"),
	})
	assert.True(t, errors.Is(err, store.ErrAllocationExceeded), "coin allocation without holding, got %v", err)
}

func TestUpdateSubscription_RechecksAllocation(t *testing.T) {
	service := setupTestDb(t)
	m := seedMarket(t, service)
	ctx := context.Background()

	sub, err := service.CreateSubscription(ctx, store.CreateSubscriptionParams{
		UserId: m.user.Id, BotId: m.bot.Id,
		VirtualBalance: decimal.NewFromInt(500), TradePercentage: decimal.RequireFromString("0.1"),
	})
	require.NoError(t, err)

	tooMuch := decimal.NewFromInt(1500)
	_, err = service.UpdateSubscription(ctx, store.UpdateSubscriptionParams{SubscriptionId: sub.Id, VirtualBalance: &tooMuch})
	assert.True(t, errors.Is(err, store.ErrAllocationExceeded))

	pct := decimal.RequireFromString("0.25")
	updated, err := service.UpdateSubscription(ctx, store.UpdateSubscriptionParams{SubscriptionId: sub.Id, TradePercentage: &pct})
	require.NoError(t, err)
	assert.True(t, updated.TradePercentage.Equal(pct))
	assert.True(t, updated.VirtualBalance.Equal(decimal.NewFromInt(500)))
}

func TestSubscriptionLifecycle(t *testing.T) {
	service := setupTestDb(t)
	m := seedMarket(t, service)
	ctx := context.Background()

	sub, err := service.CreateSubscription(ctx, store.CreateSubscriptionParams{
		UserId: m.user.Id, BotId: m.bot.Id,
		VirtualBalance: decimal.NewFromInt(100), TradePercentage: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)

	active, err := service.ListActiveSubscriptionsByBot(ctx, m.bot.Id)
	require.NoError(t, err)
	require.Len(t, active, 1)

	stoppedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, service.DeactivateSubscription(ctx, sub.Id, stoppedAt))

	active, err = service.ListActiveSubscriptionsByBot(ctx, m.bot.Id)
	require.NoError(t, err)
	assert.Empty(t, active)

	stopped, err := service.GetSubscription(ctx, sub.Id)
	require.NoError(t, err)
	assert.False(t, stopped.Active)
	require.NotNil(t, stopped.StoppedAt)
	assert.True(t, stopped.StoppedAt.Equal(stoppedAt))

	require.NoError(t, service.DeleteSubscription(ctx, sub.Id))
	_, err = service.GetSubscription(ctx, sub.Id)
	assert.True(t, errors.Is(err, store.ErrSubscriptionNotFound))
	assert.True(t, errors.Is(service.DeleteSubscription(ctx, sub.Id), store.ErrSubscriptionNotFound))
}

func TestListSubscriptionPositions_CursorAndMissingCoin(t *testing.T) {
	service := setupTestDb(t)
	m := seedMarket(t, service)
	ctx := context.Background()

	ghost, err := service.CreateBot(ctx, store.CreateBotParams{Name: "ghost", CoinSymbol: "NOPE"})
	require.NoError(t, err)

	for i, botId := range []string{m.bot.Id, ghost.Id} {
		_, err := service.CreateSubscription(ctx, store.CreateSubscriptionParams{
			UserId: m.user.Id, BotId: botId,
			VirtualBalance: decimal.NewFromInt(int64(100 * (i + 1))), TradePercentage: decimal.RequireFromString("0.5"),
		})
		require.NoError(t, err)
	}

	first, err := service.ListSubscriptionPositions(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := service.ListSubscriptionPositions(ctx, first[0].Id, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Greater(t, second[0].Id, first[0].Id)

	rest, err := service.ListSubscriptionPositions(ctx, second[0].Id, 1)
	require.NoError(t, err)
	assert.Empty(t, rest)

	byBot := map[string]models.SubscriptionPosition{first[0].BotId: first[0], second[0].BotId: second[0]}
	assert.Equal(t, m.coin.Id, byBot[m.bot.Id].CoinId)
	assert.Equal(t, "BTCUSDT", byBot[m.bot.Id].PriceFeedId)
	assert.Empty(t, byBot[ghost.Id].CoinId)
}

func TestListWalletPositions_EagerHoldings(t *testing.T) {
	service := setupTestDb(t)
	m := seedMarket(t, service)
	ctx := context.Background()

	require.NoError(t, service.RunInTx(ctx, func(tx store.LedgerTx) error {
		return tx.ApplyTransfers(ctx, "buy", []ledger.Transfer{
			ledger.Coin(m.coin.Id, m.treasury.Id, m.wallet.Id, decimal.RequireFromString("0.25")),
		})
	}))
	for i := 0; i < 3; i++ {
		_, err := service.CreateUser(ctx, fmt.Sprintf("extra-%d", i), "Extra", fmt.Sprintf("extra%d@example.com", i))
		require.NoError(t, err)
	}

	var all []models.WalletPosition
	cursor := ""
	for {
		batch, err := service.ListWalletPositions(ctx, cursor, 2)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		cursor = batch[len(batch)-1].Id
	}

	require.Len(t, all, 4, "treasury is excluded")
	for _, p := range all {
		assert.False(t, p.IsTreasury)
		if p.Id == m.wallet.Id {
			require.Len(t, p.Holdings, 1)
			assert.True(t, p.Holdings[0].Amount.Equal(decimal.RequireFromString("0.25")))
		} else {
			assert.Empty(t, p.Holdings)
		}
	}
}

func TestSaveSubscriptionSnapshots_PersistsBaseline(t *testing.T) {
	service := setupTestDb(t)
	m := seedMarket(t, service)
	ctx := context.Background()

	sub, err := service.CreateSubscription(ctx, store.CreateSubscriptionParams{
		UserId: m.user.Id, BotId: m.bot.Id,
		VirtualBalance: decimal.NewFromInt(100), TradePercentage: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)

	recordedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err = service.SaveSubscriptionSnapshots(ctx, []models.SubscriptionSnapshot{{
		SubscriptionId: sub.Id, Equity: decimal.NewFromInt(100), NetInvestment: decimal.NewFromInt(100),
		Pnl: decimal.Zero, Roi: decimal.Zero, VirtualBalance: decimal.NewFromInt(100),
		VirtualCoinBalance: decimal.Zero, Price: decimal.NewFromInt(50), RecordedAt: recordedAt,
		BaselineInitialized: true,
	}})
	require.NoError(t, err)

	reloaded, err := service.GetSubscription(ctx, sub.Id)
	require.NoError(t, err)
	assert.True(t, reloaded.NetInvestment.Equal(decimal.NewFromInt(100)))

	snaps, err := service.ListSubscriptionSnapshots(ctx, sub.Id, time.Time{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].RecordedAt.Equal(recordedAt))

	later, err := service.ListSubscriptionSnapshots(ctx, sub.Id, recordedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestSaveSignal_Idempotent(t *testing.T) {
	service := setupTestDb(t)
	m := seedMarket(t, service)
	ctx := context.Background()

	signal := &models.Signal{
		BotId: m.bot.Id, Action: models.TradeBuy, ReferencePrice: decimal.NewFromInt(100),
		SignalTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), IdempotencyKey: "key-1",
	}
	stored, err := service.SaveSignal(ctx, signal)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusPending, stored.Status)

	dup, err := service.SaveSignal(ctx, &models.Signal{
		BotId: m.bot.Id, Action: models.TradeBuy, ReferencePrice: decimal.NewFromInt(100),
		SignalTime: signal.SignalTime, IdempotencyKey: "key-1",
	})
	assert.True(t, errors.Is(err, store.ErrDuplicateTransaction))
	require.NotNil(t, dup)
	assert.Equal(t, stored.Id, dup.Id)

	pending, err := service.ListPendingSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, service.MarkSignal(ctx, stored.Id, models.SignalStatusProcessed))
	pending, err = service.ListPendingSignals(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	reloaded, err := service.GetSignal(ctx, stored.Id)
	require.NoError(t, err)
	assert.Equal(t, models.SignalStatusProcessed, reloaded.Status)
	assert.NotNil(t, reloaded.ProcessedAt)
}
