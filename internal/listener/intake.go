package listener

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"go.uber.org/zap"
)

// IdempotencyKey derives the dedup key for a signal tuple. Redelivery of the
// same bot, action, price and time maps to the same key.
func IdempotencyKey(req models.SignalRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s",
		req.BotId,
		strings.ToUpper(string(req.Action)),
		req.ReferencePrice.String(),
		req.Timestamp.UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(h.Sum(nil))
}

// Submit validates and persists a signal, then queues it for settlement.
// A redelivered signal returns the stored row and an error wrapping
// store.ErrDuplicateTransaction; it is not queued again.
func (l *SignalListener) Submit(ctx context.Context, req models.SignalRequest) (*models.Signal, error) {
	req.Action = models.TradeType(strings.ToUpper(string(req.Action)))
	if !req.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", store.ErrInvalidSignal, req.Action)
	}
	if !req.ReferencePrice.IsPositive() {
		return nil, fmt.Errorf("%w: reference price must be positive, got %s", store.ErrInvalidSignal, req.ReferencePrice.String())
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = l.now()
	}
	if _, err := l.store.GetBot(ctx, req.BotId); err != nil {
		return nil, err
	}

	signal, err := l.store.SaveSignal(ctx, &models.Signal{
		BotId:          req.BotId,
		Action:         req.Action,
		ReferencePrice: req.ReferencePrice,
		SignalTime:     req.Timestamp.UTC(),
		IdempotencyKey: IdempotencyKey(req),
	})
	if errors.Is(err, store.ErrDuplicateTransaction) && signal != nil {
		zap.L().Info("Duplicate signal ignored",
			zap.String("bot_id", req.BotId),
			zap.String("signal_id", signal.Id),
			zap.String("status", signal.Status))
		return signal, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist signal: %w", err)
	}

	if !l.enqueue(signal.Id) {
		zap.L().Warn("Signal queue full, leaving signal for the poller",
			zap.String("signal_id", signal.Id),
			zap.Int("queue_depth", l.QueueDepth()))
	}

	zap.L().Info("Signal accepted",
		zap.String("signal_id", signal.Id),
		zap.String("bot_id", signal.BotId),
		zap.String("action", string(signal.Action)),
		zap.String("price", signal.ReferencePrice.String()))
	return signal, nil
}
