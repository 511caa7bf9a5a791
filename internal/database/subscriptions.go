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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func getSubscription(ctx context.Context, q querier, subscriptionId string) (*models.Subscription, error) {
	sub, err := scanSubscription(q.QueryRowContext(ctx, queryGetSubscription, subscriptionId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrSubscriptionNotFound, subscriptionId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query subscription %s: %w", subscriptionId, err)
	}
	return sub, nil
}

func querySubscriptions(ctx context.Context, q querier, query string, args ...any) ([]models.Subscription, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query subscriptions: %w", err)
	}
	defer closeRows(rows)

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}

// checkAllocation verifies that the user's active virtual allocations, with
// the proposed one in place of excludeId, fit inside the real wallet.
// Cash is compared against wallet cash, coin against the holding of that coin.
func checkAllocation(ctx context.Context, q querier, userId, excludeId, coinSymbol string, cash, coin decimal.Decimal) error {
	wallet, err := getWalletByUser(ctx, q, userId)
	if err != nil {
		return err
	}

	rows, err := q.QueryContext(ctx, queryListUserAllocations, userId)
	if err != nil {
		return fmt.Errorf("unable to query allocations: %w", err)
	}
	defer closeRows(rows)

	totalCash, totalCoin := cash, coin
	for rows.Next() {
		var id, symbol string
		var virtualBalance, virtualCoin decimal.Decimal
		if err := rows.Scan(&id, &virtualBalance, &virtualCoin, &symbol); err != nil {
			return fmt.Errorf("unable to scan allocation row: %w", err)
		}
		if id == excludeId {
			continue
		}
		totalCash = totalCash.Add(virtualBalance)
		if symbol == coinSymbol {
			totalCoin = totalCoin.Add(virtualCoin)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating allocation rows: %w", err)
	}

	if totalCash.GreaterThan(wallet.Balance) {
		return fmt.Errorf("%w: virtual cash %s exceeds wallet cash %s",
			store.ErrAllocationExceeded, totalCash.String(), wallet.Balance.String())
	}

	if !totalCoin.IsPositive() {
		return nil
	}
	c, err := getCoinBySymbol(ctx, q, coinSymbol)
	if err != nil {
		return err
	}
	holding, err := getHolding(ctx, q, wallet.Id, c.Id)
	if err != nil {
		return err
	}
	held := decimal.Zero
	if holding != nil {
		held = holding.Amount
	}
	if totalCoin.GreaterThan(held) {
		return fmt.Errorf("%w: virtual %s %s exceeds holding %s",
			store.ErrAllocationExceeded, coinSymbol, totalCoin.String(), held.String())
	}
	return nil
}

// CreateSubscription records a "copy bot" action. The net investment baseline
// starts at zero and is initialised from equity by the first snapshot.
func (s *Service) CreateSubscription(ctx context.Context, params store.CreateSubscriptionParams) (*models.Subscription, error) {
	id := uuid.New().String()

	err := s.withTx(ctx, func(l *ledgerTx) error {
		bot, err := getBot(ctx, l.tx, params.BotId)
		if err != nil {
			return err
		}

		var existing string
		err = l.tx.QueryRowContext(ctx, queryGetSubscriptionByUserBot, params.UserId, params.BotId).Scan(&existing)
		if err == nil {
			return fmt.Errorf("%w: user %s already copies bot %s", store.ErrDuplicateTransaction, params.UserId, bot.Name)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check existing subscription: %w", err)
		}

		if err := checkAllocation(ctx, l.tx, params.UserId, "", bot.CoinSymbol, params.VirtualBalance, params.VirtualCoinBalance); err != nil {
			return err
		}

		_, err = l.tx.ExecContext(ctx, queryInsertSubscription, id, params.UserId, params.BotId,
			params.VirtualBalance, params.VirtualCoinBalance, params.TradePercentage)
		if err != nil {
			return fmt.Errorf("unable to insert subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Subscription created",
		zap.String("subscription_id", id),
		zap.String("user_id", params.UserId),
		zap.String("bot_id", params.BotId),
		zap.String("virtual_balance", params.VirtualBalance.String()),
		zap.String("virtual_coin_balance", params.VirtualCoinBalance.String()),
		zap.String("trade_percentage", params.TradePercentage.String()))
	return getSubscription(ctx, s.db, id)
}

// UpdateSubscription changes allocation or trade percentage, re-checking the allocation invariant
func (s *Service) UpdateSubscription(ctx context.Context, params store.UpdateSubscriptionParams) (*models.Subscription, error) {
	err := s.withTx(ctx, func(l *ledgerTx) error {
		sub, err := getSubscription(ctx, l.tx, params.SubscriptionId)
		if err != nil {
			return err
		}
		bot, err := getBot(ctx, l.tx, sub.BotId)
		if err != nil {
			return err
		}

		cash, coin, pct := sub.VirtualBalance, sub.VirtualCoinBalance, sub.TradePercentage
		if params.VirtualBalance != nil {
			cash = *params.VirtualBalance
		}
		if params.VirtualCoinBalance != nil {
			coin = *params.VirtualCoinBalance
		}
		if params.TradePercentage != nil {
			pct = *params.TradePercentage
		}

		if sub.Active {
			if err := checkAllocation(ctx, l.tx, sub.UserId, sub.Id, bot.CoinSymbol, cash, coin); err != nil {
				return err
			}
		}

		_, err = l.tx.ExecContext(ctx, queryUpdateSubscriptionAllocation, cash, coin, pct, sub.Id)
		if err != nil {
			return fmt.Errorf("unable to update subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Subscription updated", zap.String("subscription_id", params.SubscriptionId))
	return getSubscription(ctx, s.db, params.SubscriptionId)
}

// DeactivateSubscription stops a subscription without removing its history
func (s *Service) DeactivateSubscription(ctx context.Context, subscriptionId string, stoppedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, queryDeactivateSubscription, stoppedAt.UTC(), subscriptionId)
	if err != nil {
		return fmt.Errorf("unable to deactivate subscription: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrSubscriptionNotFound, subscriptionId)
	}

	zap.L().Info("Subscription deactivated",
		zap.String("subscription_id", subscriptionId),
		zap.Time("stopped_at", stoppedAt))
	return nil
}

// DeleteSubscription removes a subscription and its snapshots. Bot trade records are kept.
func (s *Service) DeleteSubscription(ctx context.Context, subscriptionId string) error {
	result, err := s.db.ExecContext(ctx, queryDeleteSubscription, subscriptionId)
	if err != nil {
		return fmt.Errorf("unable to delete subscription: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrSubscriptionNotFound, subscriptionId)
	}

	zap.L().Info("Subscription deleted", zap.String("subscription_id", subscriptionId))
	return nil
}

func (s *Service) GetSubscription(ctx context.Context, subscriptionId string) (*models.Subscription, error) {
	return getSubscription(ctx, s.db, subscriptionId)
}

func (s *Service) ListUserSubscriptions(ctx context.Context, userId string) ([]models.Subscription, error) {
	return querySubscriptions(ctx, s.db, queryListUserSubscriptions, userId)
}

func (s *Service) ListActiveSubscriptionsByBot(ctx context.Context, botId string) ([]models.Subscription, error) {
	subs, err := querySubscriptions(ctx, s.db, queryListActiveSubscriptionsByBot, botId)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("Loaded active subscriptions", zap.String("bot_id", botId), zap.Int("count", len(subs)))
	return subs, nil
}
