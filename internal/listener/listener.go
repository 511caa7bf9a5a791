/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"go.uber.org/zap"
)

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// Start settles any signals left pending by a previous run, then starts the
// consumer and poller.
func (l *SignalListener) Start(ctx context.Context) error {
	zap.L().Info("Starting signal listener")

	if err := l.performStartupRecovery(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		l.consumeLoop(ctx)
	}()
	go func() {
		l.pollLoop(ctx)
		<-consumerDone
		close(l.doneChan)
	}()

	zap.L().Info("Signal listener started successfully",
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Duration("max_age", l.maxAge),
		zap.Int("queue_size", cap(l.queue)))
	return nil
}

// Stop gracefully stops the listener. Queued signals stay pending in the store.
func (l *SignalListener) Stop() {
	zap.L().Info("Stopping signal listener")
	l.stopOnce.Do(func() { close(l.stopChan) })
	<-l.doneChan
	zap.L().Info("Signal listener stopped")
}

func (l *SignalListener) consumeLoop(ctx context.Context) {
	for {
		select {
		case signalId := <-l.queue:
			l.dequeued(signalId)
			if err := l.handle(ctx, signalId); err != nil {
				zap.L().Error("Failed to process signal",
					zap.String("signal_id", signalId),
					zap.Error(err))
			}
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *SignalListener) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.pollPending(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pollPending re-queues signals still pending in the store
func (l *SignalListener) pollPending(ctx context.Context) {
	pending, err := l.store.ListPendingSignals(ctx, pendingBatchSize)
	if err != nil {
		zap.L().Error("Failed to list pending signals", zap.Error(err))
		return
	}

	queued := 0
	for _, s := range pending {
		if l.enqueue(s.Id) {
			queued++
		}
	}
	if queued > 0 {
		zap.L().Debug("Re-queued pending signals",
			zap.Int("pending", len(pending)),
			zap.Int("queued", queued))
	}
}

// handle settles one signal and records its terminal status. Errors other
// than an invalid signal leave it pending so the poller retries it.
func (l *SignalListener) handle(ctx context.Context, signalId string) error {
	signal, err := l.store.GetSignal(ctx, signalId)
	if err != nil {
		return err
	}
	if signal.Status != models.SignalStatusPending {
		zap.L().Debug("Signal already handled",
			zap.String("signal_id", signal.Id),
			zap.String("status", signal.Status))
		return nil
	}

	shortId := signal.Id
	if len(shortId) > 8 {
		shortId = shortId[:8]
	}

	if age := l.now().Sub(signal.SignalTime); age > l.maxAge {
		fmt.Printf("  %s~ %s %s %s | stale (%s old)%s\n",
			colorGray, shortId, signal.Action, signal.ReferencePrice, age.Truncate(time.Second), colorReset)
		zap.L().Warn("Dropping stale signal",
			zap.String("signal_id", signal.Id),
			zap.Duration("age", age),
			zap.Error(store.ErrStalePrice))
		return l.store.MarkSignal(ctx, signal.Id, models.SignalStatusStale)
	}

	result, err := l.processor.ProcessSubscriptions(ctx, signal)
	if errors.Is(err, store.ErrInvalidSignal) {
		fmt.Printf("  %s✗ %s %s %s | %s%s\n", colorRed, shortId, signal.Action, signal.ReferencePrice, err, colorReset)
		return l.store.MarkSignal(ctx, signal.Id, models.SignalStatusRejected)
	}
	if err != nil {
		return fmt.Errorf("dispatch failed, signal left pending: %w", err)
	}

	color := colorGreen
	if result.Failed > 0 {
		color = colorYellow
	}
	fmt.Printf("  %s✓ %s %s %s | %d subscribers: %d settled, %d skipped, %d failed%s\n",
		color, shortId, signal.Action, signal.ReferencePrice,
		result.Total, result.Succeeded, result.Skipped, result.Failed, colorReset)

	return l.store.MarkSignal(ctx, signal.Id, models.SignalStatusProcessed)
}

// performStartupRecovery settles signals that were persisted but never
// processed, for example because the process stopped with a full queue.
func (l *SignalListener) performStartupRecovery(ctx context.Context) error {
	zap.L().Info("Starting startup recovery process")

	var recovered, failed int
	seen := make(map[string]bool)
	for {
		pending, err := l.store.ListPendingSignals(ctx, pendingBatchSize)
		if err != nil {
			return fmt.Errorf("failed to list pending signals: %w", err)
		}

		progressed := false
		for _, s := range pending {
			if seen[s.Id] {
				continue
			}
			seen[s.Id] = true
			progressed = true

			if err := l.handle(ctx, s.Id); err != nil {
				failed++
				zap.L().Warn("Failed to recover signal",
					zap.String("signal_id", s.Id),
					zap.Error(err))
				continue
			}
			recovered++
		}
		if !progressed || len(pending) < pendingBatchSize {
			break
		}
	}

	if failed > 0 {
		zap.L().Warn("Startup recovery completed with some failures",
			zap.Int("recovered", recovered),
			zap.Int("failed", failed))
	} else {
		zap.L().Info("Startup recovery completed successfully",
			zap.Int("recovered", recovered))
	}
	return nil
}
