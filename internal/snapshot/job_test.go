package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"copytrade-ledger-go/internal/database"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/pricing"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu            sync.Mutex
	subs          []models.SubscriptionPosition
	wallets       []models.WalletPosition
	failSaveCall  int
	saveCalls     int
	subBatches    [][]models.SubscriptionSnapshot
	walletBatches [][]models.WalletSnapshot
}

func (f *fakeStore) ListSubscriptionPositions(_ context.Context, afterId string, limit int) ([]models.SubscriptionPosition, error) {
	var out []models.SubscriptionPosition
	for _, p := range f.subs {
		if p.Id > afterId && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListWalletPositions(_ context.Context, afterId string, limit int) ([]models.WalletPosition, error) {
	var out []models.WalletPosition
	for _, w := range f.wallets {
		if w.Id > afterId && len(out) < limit {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveSubscriptionSnapshots(_ context.Context, snapshots []models.SubscriptionSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveCalls == f.failSaveCall {
		return errors.New("disk full")
	}
	f.subBatches = append(f.subBatches, append([]models.SubscriptionSnapshot(nil), snapshots...))
	return nil
}

func (f *fakeStore) SaveWalletSnapshots(_ context.Context, snapshots []models.WalletSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveCalls == f.failSaveCall {
		return errors.New("disk full")
	}
	f.walletBatches = append(f.walletBatches, append([]models.WalletSnapshot(nil), snapshots...))
	return nil
}

func (f *fakeStore) savedBatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subBatches) + len(f.walletBatches)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

// subscriptionPositions builds n positions with 100 cash, 1 coin and a net of 100
func subscriptionPositions(n int) []models.SubscriptionPosition {
	out := make([]models.SubscriptionPosition, n)
	for i := range out {
		out[i] = models.SubscriptionPosition{
			Subscription: models.Subscription{
				Id:                 fmt.Sprintf("sub-%03d", i),
				VirtualBalance:     decimal.NewFromInt(100),
				VirtualCoinBalance: decimal.NewFromInt(1),
				NetInvestment:      decimal.NewFromInt(100),
				Active:             true,
			},
			CoinId:      "coin-btc",
			PriceFeedId: "BTCUSDT",
		}
	}
	return out
}

// steppingClock advances one minute per call
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Minute)
		return current
	}
}

func newTestJob(s store.SnapshotStore, oracle pricing.Oracle, batchSize int) *Job {
	return NewJob(s, oracle, models.SnapshotConfig{BatchSize: batchSize, BatchTimeout: time.Second}, WithClock(steppingClock()))
}

func TestCaptureSubscriptions_BatchesAndGhostCoin(t *testing.T) {
	subs := subscriptionPositions(250)
	subs[37].CoinId = ""
	subs[37].PriceFeedId = ""

	fake := &fakeStore{subs: subs}
	oracle := pricing.NewStaticOracle(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50)})

	result, err := newTestJob(fake, oracle, 100).CaptureSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, JobResult{Batches: 3, Processed: 249, Skipped: 1}, result)
	assert.Equal(t, 3, oracle.BatchCalls(), "one price fetch per batch")
	require.Len(t, fake.subBatches, 3)
	assert.Len(t, fake.subBatches[0], 99)

	seen := make(map[time.Time]bool)
	for _, batch := range fake.subBatches {
		ts := batch[0].RecordedAt
		for _, snap := range batch {
			assert.Equal(t, ts, snap.RecordedAt, "all rows in a batch share one timestamp")
			assert.NotEqual(t, "sub-037", snap.SubscriptionId)
		}
		assert.False(t, seen[ts], "batches have distinct timestamps")
		seen[ts] = true
	}

	first := fake.subBatches[0][0]
	assertDecimal(t, "150", first.Equity)
	assertDecimal(t, "50", first.Pnl)
	assertDecimal(t, "50", first.Roi)
	assertDecimal(t, "50", first.Price)
	assert.False(t, first.BaselineInitialized)
}

func TestCaptureSubscriptions_FailedBatchDoesNotHaltRun(t *testing.T) {
	fake := &fakeStore{subs: subscriptionPositions(250), failSaveCall: 2}
	oracle := pricing.NewStaticOracle(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50)})

	result, err := newTestJob(fake, oracle, 100).CaptureSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 1, result.FailedBatches)
	assert.Equal(t, 100, result.Failed)
	assert.Equal(t, 150, result.Processed)
	require.Len(t, fake.subBatches, 2)
	assert.Equal(t, "sub-200", fake.subBatches[1][0].SubscriptionId)
}

func TestCaptureSubscriptions_MissingPriceSkipsEntity(t *testing.T) {
	subs := subscriptionPositions(3)
	subs[1].PriceFeedId = "DOGEUSDT"

	fake := &fakeStore{subs: subs}
	oracle := pricing.NewStaticOracle(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50)})

	result, err := newTestJob(fake, oracle, 10).CaptureSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, JobResult{Batches: 1, Processed: 2, Skipped: 1}, result)
}

func TestCaptureWallets(t *testing.T) {
	wallets := []models.WalletPosition{
		{
			Wallet: models.Wallet{Id: "w-a", Balance: decimal.NewFromInt(500)},
			Holdings: []models.HoldingPosition{
				{CoinHolding: models.CoinHolding{Amount: decimal.NewFromInt(2)}, PriceFeedId: "BTCUSDT"},
			},
		},
		{
			Wallet: models.Wallet{Id: "w-b", Balance: decimal.NewFromInt(100), NetInvestment: decimal.NewFromInt(100)},
			Holdings: []models.HoldingPosition{
				{CoinHolding: models.CoinHolding{Amount: decimal.NewFromInt(1)}, PriceFeedId: "DOGEUSDT"},
			},
		},
		{
			Wallet: models.Wallet{Id: "w-c", Balance: decimal.NewFromInt(1000), NetInvestment: decimal.NewFromInt(800)},
		},
	}
	fake := &fakeStore{wallets: wallets}
	oracle := pricing.NewStaticOracle(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(100)})

	result, err := newTestJob(fake, oracle, 10).CaptureWallets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, JobResult{Batches: 1, Processed: 2, Skipped: 1}, result)
	require.Len(t, fake.walletBatches, 1)

	byId := make(map[string]models.WalletSnapshot)
	for _, s := range fake.walletBatches[0] {
		byId[s.WalletId] = s
	}

	a := byId["w-a"]
	assertDecimal(t, "700", a.Equity)
	assertDecimal(t, "200", a.HoldingsValue)
	assertDecimal(t, "700", a.NetInvestment)
	assertDecimal(t, "0", a.Pnl)
	assert.True(t, a.BaselineInitialized)

	c := byId["w-c"]
	assertDecimal(t, "200", c.Pnl)
	assertDecimal(t, "25", c.Roi)
	assert.False(t, c.BaselineInitialized)
}

func TestJob_AgainstDatabase(t *testing.T) {
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
	_, err = db.CreateCoin(ctx, store.CreateCoinParams{Symbol: "BTC", PriceFeedId: "BTCUSDT", FeeRate: dec("0.02")})
	require.NoError(t, err)
	bot, err := db.CreateBot(ctx, store.CreateBotParams{Name: "trend", CoinSymbol: "BTC", FeeRate: dec("0.01")})
	require.NoError(t, err)

	user, err := db.CreateUser(ctx, uuid.New().String(), "Snap User", "snap@example.com")
	require.NoError(t, err)
	wallet, err := db.GetWalletByUser(ctx, user.Id)
	require.NoError(t, err)
	require.NoError(t, db.Deposit(ctx, wallet.Id, decimal.NewFromInt(1000), "deposit-1"))

	sub, err := db.CreateSubscription(ctx, store.CreateSubscriptionParams{
		UserId: user.Id, BotId: bot.Id, VirtualBalance: decimal.NewFromInt(200), TradePercentage: dec("0.5"),
	})
	require.NoError(t, err)

	oracle := pricing.NewStaticOracle(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(100)})
	job := NewJob(db, oracle, models.SnapshotConfig{BatchSize: 10, BatchTimeout: time.Second})
	subs, wallets := NewScheduler(job, time.Hour).RunOnce(ctx)
	assert.Equal(t, 1, subs.Processed)
	assert.Equal(t, 1, wallets.Processed)

	reloaded, err := db.GetSubscription(ctx, sub.Id)
	require.NoError(t, err)
	assertDecimal(t, "200", reloaded.NetInvestment)

	history, err := db.ListSubscriptionSnapshots(ctx, sub.Id, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assertDecimal(t, "200", history[0].Equity)
	assertDecimal(t, "0", history[0].Roi)

	walletHistory, err := db.ListWalletSnapshots(ctx, wallet.Id, time.Time{})
	require.NoError(t, err)
	require.Len(t, walletHistory, 1)
	assertDecimal(t, "1000", walletHistory[0].Equity)
	assertDecimal(t, "1000", walletHistory[0].NetInvestment)
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	fake := &fakeStore{subs: subscriptionPositions(5)}
	oracle := pricing.NewStaticOracle(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50)})

	scheduler := NewScheduler(newTestJob(fake, oracle, 10), time.Hour)
	scheduler.Start(context.Background())
	assert.Eventually(t, func() bool { return fake.savedBatches() >= 1 }, 2*time.Second, 10*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()
}

func TestEvaluate(t *testing.T) {
	p := Evaluate(dec("1100.1234567"), dec("1000"))
	assertDecimal(t, "1100.123457", p.Equity)
	assertDecimal(t, "100.123457", p.Pnl)
	assertDecimal(t, "10.0123", p.Roi)
	assert.False(t, p.BaselineInitialized)

	p = Evaluate(dec("500"), decimal.Zero)
	assertDecimal(t, "500", p.NetInvestment)
	assertDecimal(t, "0", p.Roi)
	assert.True(t, p.BaselineInitialized)
}

func TestMaxDrawdown(t *testing.T) {
	net := decimal.NewFromInt(1000)
	var points []Point
	for _, e := range []int64{1000, 1200, 900, 1100} {
		points = append(points, Point{Equity: decimal.NewFromInt(e), NetInvestment: net})
	}
	amount, pct := MaxDrawdown(points)
	assertDecimal(t, "-100", amount)
	assertDecimal(t, "-10", pct)

	amount, pct = MaxDrawdown(nil)
	assert.True(t, amount.IsZero())
	assert.True(t, pct.IsZero())

	// Positive-only series keeps the smallest gain
	amount, _ = MaxDrawdown([]Point{{Equity: dec("1200"), NetInvestment: net}, {Equity: dec("1050"), NetInvestment: net}})
	assertDecimal(t, "50", amount)
}
