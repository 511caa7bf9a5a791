package listener

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"copytrade-ledger-go/internal/database"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signalTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *fakeProcessor) ProcessSubscriptions(_ context.Context, signal *models.Signal) (models.DispatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, signal.Id)
	return models.DispatchResult{SignalId: signal.Id, Total: 1, Succeeded: 1}, p.err
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func setup(t *testing.T, processor SignalProcessor, now time.Time) (*SignalListener, *database.Service, *models.Bot) {
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

	bot, err := db.CreateBot(ctx, store.CreateBotParams{Name: "trend", CoinSymbol: "BTC"})
	require.NoError(t, err)

	l := NewSignalListener(SignalListenerConfig{
		Store:           db,
		Processor:       processor,
		PollingInterval: 20 * time.Millisecond,
		QueueSize:       4,
		MaxAge:          time.Minute,
		Clock:           func() time.Time { return now },
	})
	return l, db, bot
}

func request(botId, price string) models.SignalRequest {
	return models.SignalRequest{
		BotId: botId, Action: "buy",
		ReferencePrice: decimal.RequireFromString(price), Timestamp: signalTime,
	}
}

func TestIdempotencyKey_Deterministic(t *testing.T) {
	a := request("bot", "100.5")
	b := request("bot", "100.5")
	b.Timestamp = signalTime.In(time.FixedZone("X", 3600))
	assert.Equal(t, IdempotencyKey(a), IdempotencyKey(b))

	c := request("bot", "100.6")
	assert.NotEqual(t, IdempotencyKey(a), IdempotencyKey(c))
}

func TestSubmit_DeduplicatesRedelivery(t *testing.T) {
	l, _, bot := setup(t, &fakeProcessor{}, signalTime)
	ctx := context.Background()

	first, err := l.Submit(ctx, request(bot.Id, "100"))
	require.NoError(t, err)
	assert.Equal(t, models.TradeBuy, first.Action)
	assert.Equal(t, 1, l.QueueDepth())

	again, err := l.Submit(ctx, request(bot.Id, "100"))
	assert.True(t, errors.Is(err, store.ErrDuplicateTransaction))
	assert.Equal(t, first.Id, again.Id)
	assert.Equal(t, 1, l.QueueDepth())
}

func TestSubmit_RejectsInvalid(t *testing.T) {
	l, _, bot := setup(t, &fakeProcessor{}, signalTime)
	ctx := context.Background()

	_, err := l.Submit(ctx, request(bot.Id, "0"))
	assert.True(t, errors.Is(err, store.ErrInvalidSignal))

	bad := request(bot.Id, "1")
	bad.Action = "HOLD"
	_, err = l.Submit(ctx, bad)
	assert.True(t, errors.Is(err, store.ErrInvalidSignal))

	_, err = l.Submit(ctx, request("missing-bot", "1"))
	assert.True(t, errors.Is(err, store.ErrBotNotFound))
}

func TestHandle_StatusTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		now        time.Time
		processErr error
		status     string
		processed  int
	}{
		{"settled", signalTime.Add(time.Second), nil, models.SignalStatusProcessed, 1},
		{"stale", signalTime.Add(time.Hour), nil, models.SignalStatusStale, 0},
		{"rejected by dispatcher", signalTime, store.ErrInvalidSignal, models.SignalStatusRejected, 1},
		{"transient failure stays pending", signalTime, errors.New("database is locked"), models.SignalStatusPending, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &fakeProcessor{err: tt.processErr}
			l, db, bot := setup(t, processor, tt.now)

			signal, err := l.Submit(ctx, request(bot.Id, "100"))
			require.NoError(t, err)

			_ = l.handle(ctx, signal.Id)
			reloaded, err := db.GetSignal(ctx, signal.Id)
			require.NoError(t, err)
			assert.Equal(t, tt.status, reloaded.Status)
			assert.Equal(t, tt.processed, processor.count())

			if tt.status != models.SignalStatusPending {
				// A second delivery of a finished signal is ignored
				require.NoError(t, l.handle(ctx, signal.Id))
				assert.Equal(t, tt.processed, processor.count())
			}
		})
	}
}

func TestStart_RecoversPendingSignals(t *testing.T) {
	processor := &fakeProcessor{}
	l, db, bot := setup(t, processor, signalTime)
	ctx := context.Background()

	// Persisted by a previous run that never settled them
	for _, key := range []string{"a", "b", "c"} {
		_, err := db.SaveSignal(ctx, &models.Signal{
			BotId: bot.Id, Action: models.TradeSell, ReferencePrice: decimal.NewFromInt(10),
			SignalTime: signalTime, IdempotencyKey: key,
		})
		require.NoError(t, err)
	}

	require.NoError(t, l.Start(ctx))
	defer l.Stop()
	assert.Equal(t, 3, processor.count())

	pending, err := db.ListPendingSignals(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	signal, err := l.Submit(ctx, request(bot.Id, "101"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		s, err := db.GetSignal(ctx, signal.Id)
		return err == nil && s.Status == models.SignalStatusProcessed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPoller_PicksUpOverflow(t *testing.T) {
	processor := &fakeProcessor{}
	l, db, bot := setup(t, processor, signalTime)
	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	// Written behind the listener's back, only the poller can find it
	stored, err := db.SaveSignal(ctx, &models.Signal{
		BotId: bot.Id, Action: models.TradeBuy, ReferencePrice: decimal.NewFromInt(10),
		SignalTime: signalTime, IdempotencyKey: "late",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		s, err := db.GetSignal(ctx, stored.Id)
		return err == nil && s.Status == models.SignalStatusProcessed
	}, 2*time.Second, 10*time.Millisecond)
}
