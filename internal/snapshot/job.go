// Package snapshot records point-in-time equity, PnL and ROI for every
// subscription and wallet, in bounded batches with one price fetch each.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/pricing"
	"copytrade-ledger-go/internal/store"
	"copytrade-ledger-go/internal/telemetry"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 30 * time.Second

	entitySubscription = "subscription"
	entityWallet       = "wallet"
)

// JobResult summarizes one capture run
type JobResult struct {
	Batches       int
	Processed     int
	Skipped       int
	Failed        int
	FailedBatches int
}

func (r JobResult) String() string {
	return fmt.Sprintf("batches=%d processed=%d skipped=%d failed=%d failed_batches=%d",
		r.Batches, r.Processed, r.Skipped, r.Failed, r.FailedBatches)
}

type Job struct {
	store        store.SnapshotStore
	oracle       pricing.Oracle
	batchSize    int
	batchTimeout time.Duration
	metrics      *telemetry.Instruments
	now          func() time.Time
}

type Option func(*Job)

func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

func WithInstruments(m *telemetry.Instruments) Option {
	return func(j *Job) { j.metrics = m }
}

func NewJob(s store.SnapshotStore, oracle pricing.Oracle, cfg models.SnapshotConfig, opts ...Option) *Job {
	j := &Job{
		store:        s,
		oracle:       oracle,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		now:          time.Now,
	}
	if j.batchSize <= 0 {
		j.batchSize = defaultBatchSize
	}
	if j.batchTimeout <= 0 {
		j.batchTimeout = defaultBatchTimeout
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// CaptureSubscriptions snapshots every active subscription
func (j *Job) CaptureSubscriptions(ctx context.Context) (JobResult, error) {
	return runBatches(ctx, j, entitySubscription, j.store.ListSubscriptionPositions,
		func(p models.SubscriptionPosition) string { return p.Id },
		j.processSubscriptionBatch)
}

// CaptureWallets snapshots every user wallet
func (j *Job) CaptureWallets(ctx context.Context) (JobResult, error) {
	return runBatches(ctx, j, entityWallet, j.store.ListWalletPositions,
		func(p models.WalletPosition) string { return p.Id },
		j.processWalletBatch)
}

// runBatches walks entities in ascending id order. The cursor always moves
// past a batch, whether or not it was saved.
func runBatches[T any](
	ctx context.Context,
	j *Job,
	entity string,
	list func(ctx context.Context, afterId string, limit int) ([]T, error),
	idOf func(T) string,
	process func(ctx context.Context, batch []T, result *JobResult),
) (JobResult, error) {
	var result JobResult
	start := time.Now()
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := list(ctx, cursor, j.batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list %s batch after %q: %w", entity, cursor, err)
		}
		if len(batch) == 0 {
			break
		}
		cursor = idOf(batch[len(batch)-1])
		result.Batches++

		process(ctx, batch, &result)
	}

	zap.L().Info("Snapshot capture completed",
		zap.String("entity", entity),
		zap.Int("batches", result.Batches),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("failed_batches", result.FailedBatches),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// fetchPrices issues one oracle call for the distinct feeds of a batch
func (j *Job) fetchPrices(ctx context.Context, entity string, feedIds []string) (map[string]decimal.Decimal, error) {
	ids := pricing.Distinct(feedIds)
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	prices, err := j.oracle.GetBatchPrices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %s prices: %v", store.ErrBatchProcessing, entity, err)
	}
	return prices, nil
}

// safely runs fn for one entity, turning a panic into a failure for that entity only
func safely(entity, id string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic computing %s %s: %v", entity, id, r)
		}
	}()
	return fn()
}

func (j *Job) processSubscriptionBatch(ctx context.Context, batch []models.SubscriptionPosition, result *JobResult) {
	feeds := make([]string, 0, len(batch))
	for _, p := range batch {
		if p.CoinId != "" {
			feeds = append(feeds, p.PriceFeedId)
		}
	}
	prices, err := j.fetchPrices(ctx, entitySubscription, feeds)
	if err != nil {
		j.failBatch(ctx, entitySubscription, len(batch), result, err)
		return
	}

	recordedAt := j.now().UTC()
	snapshots := make([]models.SubscriptionSnapshot, 0, len(batch))
	skipped := 0

	for _, p := range batch {
		var snap models.SubscriptionSnapshot
		err := safely(entitySubscription, p.Id, func() error {
			if p.CoinId == "" {
				return errMissingCoin
			}
			price, ok := prices[p.PriceFeedId]
			if !ok {
				return errMissingPrice
			}

			equity := p.VirtualBalance.Add(p.VirtualCoinBalance.Mul(price))
			perf := Evaluate(equity, p.NetInvestment)
			snap = models.SubscriptionSnapshot{
				SubscriptionId:      p.Id,
				Equity:              perf.Equity,
				NetInvestment:       perf.NetInvestment,
				Pnl:                 perf.Pnl,
				Roi:                 perf.Roi,
				VirtualBalance:      p.VirtualBalance,
				VirtualCoinBalance:  p.VirtualCoinBalance,
				Price:               price,
				RecordedAt:          recordedAt,
				BaselineInitialized: perf.BaselineInitialized,
			}
			return nil
		})
		if err != nil {
			skipped++
			logSkip(entitySubscription, p.Id, p.PriceFeedId, err)
			continue
		}
		snapshots = append(snapshots, snap)
	}

	saveCtx, cancel := context.WithTimeout(ctx, j.batchTimeout)
	defer cancel()
	j.finishBatch(ctx, entitySubscription, len(snapshots), skipped, result,
		j.store.SaveSubscriptionSnapshots(saveCtx, snapshots))
}

func (j *Job) processWalletBatch(ctx context.Context, batch []models.WalletPosition, result *JobResult) {
	var feeds []string
	for _, w := range batch {
		for _, h := range w.Holdings {
			feeds = append(feeds, h.PriceFeedId)
		}
	}
	prices, err := j.fetchPrices(ctx, entityWallet, feeds)
	if err != nil {
		j.failBatch(ctx, entityWallet, len(batch), result, err)
		return
	}

	recordedAt := j.now().UTC()
	snapshots := make([]models.WalletSnapshot, 0, len(batch))
	skipped := 0

	for _, w := range batch {
		var snap models.WalletSnapshot
		missingFeed := ""
		err := safely(entityWallet, w.Id, func() error {
			holdingsValue := decimal.Zero
			for _, h := range w.Holdings {
				price, ok := prices[h.PriceFeedId]
				if !ok {
					missingFeed = h.PriceFeedId
					return errMissingPrice
				}
				holdingsValue = holdingsValue.Add(h.Amount.Mul(price))
			}

			perf := Evaluate(w.Balance.Add(holdingsValue), w.NetInvestment)
			snap = models.WalletSnapshot{
				WalletId:            w.Id,
				Equity:              perf.Equity,
				NetInvestment:       perf.NetInvestment,
				Pnl:                 perf.Pnl,
				Roi:                 perf.Roi,
				CashBalance:         w.Balance,
				HoldingsValue:       holdingsValue.Round(currencyScale),
				RecordedAt:          recordedAt,
				BaselineInitialized: perf.BaselineInitialized,
			}
			return nil
		})
		if err != nil {
			skipped++
			logSkip(entityWallet, w.Id, missingFeed, err)
			continue
		}
		snapshots = append(snapshots, snap)
	}

	saveCtx, cancel := context.WithTimeout(ctx, j.batchTimeout)
	defer cancel()
	j.finishBatch(ctx, entityWallet, len(snapshots), skipped, result,
		j.store.SaveWalletSnapshots(saveCtx, snapshots))
}

func (j *Job) finishBatch(ctx context.Context, entity string, written, skipped int, result *JobResult, saveErr error) {
	result.Skipped += skipped
	if saveErr != nil {
		j.failBatch(ctx, entity, written, result, fmt.Errorf("%w: %v", store.ErrBatchProcessing, saveErr))
		return
	}
	result.Processed += written
	j.metrics.RecordSnapshotBatch(ctx, entity, written, skipped, false)
}

func (j *Job) failBatch(ctx context.Context, entity string, size int, result *JobResult, err error) {
	result.Failed += size
	result.FailedBatches++
	j.metrics.RecordSnapshotBatch(ctx, entity, 0, 0, true)
	zap.L().Error("Snapshot batch failed, moving on",
		zap.String("entity", entity),
		zap.Int("batch", result.Batches),
		zap.Int("entities", size),
		zap.Error(err))
}
