// Package dispatcher fans one bot signal out to every active subscription of
// that bot. Each subscription settles independently.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/settlement"
	"copytrade-ledger-go/internal/store"
	"copytrade-ledger-go/internal/telemetry"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Settler executes one copy-trade intent
type Settler interface {
	Execute(ctx context.Context, intent settlement.TradeIntent) (*settlement.Result, error)
}

type Dispatcher struct {
	subscriptions store.SubscriptionLister
	settler       Settler
	metrics       *telemetry.Instruments
	maxWorkers    int
}

func New(subscriptions store.SubscriptionLister, settler Settler, metrics *telemetry.Instruments, maxWorkers int) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	return &Dispatcher{
		subscriptions: subscriptions,
		settler:       settler,
		metrics:       metrics,
		maxWorkers:    maxWorkers,
	}
}

// ProcessSubscriptions settles signal against every active subscription of its bot.
// Per-subscription failures are counted, never returned. The error is non-nil
// only when the signal is invalid or the subscriptions cannot be listed.
func (d *Dispatcher) ProcessSubscriptions(ctx context.Context, signal *models.Signal) (models.DispatchResult, error) {
	result := models.DispatchResult{SignalId: signal.Id}

	if err := validate(signal); err != nil {
		zap.L().Warn("Rejecting signal", zap.String("signal_id", signal.Id), zap.Error(err))
		return result, err
	}

	subs, err := d.subscriptions.ListActiveSubscriptionsByBot(ctx, signal.BotId)
	if err != nil {
		return result, fmt.Errorf("failed to list subscriptions for bot %s: %w", signal.BotId, err)
	}
	result.Total = len(subs)
	if len(subs) == 0 {
		zap.L().Info("No active subscriptions for signal",
			zap.String("signal_id", signal.Id),
			zap.String("bot_id", signal.BotId))
		return result, nil
	}

	ctx = models.WithSettlementContext(ctx, &models.SettlementContext{
		SignalId:   signal.Id,
		BotId:      signal.BotId,
		Source:     "signal",
		SignalTime: signal.SignalTime,
	})

	workers := d.maxWorkers
	if workers > len(subs) {
		workers = len(subs)
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(workers)
	for _, sub := range subs {
		sub := sub
		p.Go(func() {
			outcome := d.settleOne(ctx, signal, sub)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case telemetry.OutcomeExecuted:
				result.Succeeded++
			case telemetry.OutcomeSkipped:
				result.Skipped++
			default:
				result.Failed++
			}
		})
	}
	p.Wait()

	d.metrics.RecordDispatch(ctx, signal.BotId, result)
	zap.L().Info("Signal dispatched",
		zap.String("signal_id", signal.Id),
		zap.String("bot_id", signal.BotId),
		zap.String("action", string(signal.Action)),
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// settleOne runs one subscription inside its own failure boundary
func (d *Dispatcher) settleOne(ctx context.Context, signal *models.Signal, sub models.Subscription) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Subscription settlement panicked",
				zap.String("signal_id", signal.Id),
				zap.String("subscription_id", sub.Id),
				zap.Any("panic", r))
			outcome = telemetry.OutcomeFailed
		}
	}()

	if err := ctx.Err(); err != nil {
		return telemetry.OutcomeFailed
	}

	res, err := d.settler.Execute(ctx, settlement.TradeIntent{
		Kind:           settlement.KindCopy,
		Direction:      signal.Action,
		Price:          signal.ReferencePrice,
		SubscriptionId: sub.Id,
		SignalId:       signal.Id,
	})
	switch {
	case errors.Is(err, store.ErrDuplicateTransaction):
		zap.L().Debug("Signal already settled for subscription",
			zap.String("signal_id", signal.Id),
			zap.String("subscription_id", sub.Id))
		return telemetry.OutcomeSkipped
	case err != nil:
		zap.L().Warn("Copy trade failed",
			zap.String("signal_id", signal.Id),
			zap.String("subscription_id", sub.Id),
			zap.String("user_id", sub.UserId),
			zap.Error(err))
		return telemetry.OutcomeFailed
	case !res.Executed:
		zap.L().Debug("Copy trade skipped",
			zap.String("signal_id", signal.Id),
			zap.String("subscription_id", sub.Id),
			zap.String("reason", res.SkipReason))
		return telemetry.OutcomeSkipped
	}
	return telemetry.OutcomeExecuted
}

func validate(signal *models.Signal) error {
	if signal.BotId == "" {
		return fmt.Errorf("%w: missing bot", store.ErrInvalidSignal)
	}
	if !signal.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", store.ErrInvalidSignal, signal.Action)
	}
	if !signal.ReferencePrice.IsPositive() {
		return fmt.Errorf("%w: reference price must be positive, got %s", store.ErrInvalidSignal, signal.ReferencePrice.String())
	}
	return nil
}
