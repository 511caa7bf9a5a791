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

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlaceManualTrade prices the coin from the oracle and settles a manual
// trade against the treasury. Ledger failures are returned wrapped so callers
// can match them with errors.Is.
func (s *LedgerService) PlaceManualTrade(ctx context.Context, userId, symbol string, direction models.TradeType, quantity decimal.Decimal) (*models.TradeRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if userId == "" || symbol == "" || !direction.Valid() || !quantity.IsPositive() {
		return nil, fmt.Errorf("user_id, symbol, direction and a positive quantity are required")
	}
	if s.engine == nil {
		return nil, fmt.Errorf("manual trading is not enabled on this service")
	}

	wallet, err := s.store.GetWalletByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	coin, err := s.store.GetCoinBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	price, err := s.oracle.GetPrice(ctx, coin.PriceFeedId)
	if err != nil {
		return nil, fmt.Errorf("failed to price %s: %w", symbol, err)
	}

	ctx = models.WithSettlementContext(ctx, &models.SettlementContext{Source: "manual", SignalTime: s.now().UTC()})
	result, err := s.engine.ManualTrade(ctx, wallet.Id, symbol, direction, quantity, price)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientFunds),
			errors.Is(err, store.ErrInsufficientCoinBalance):
			zap.L().Info("Manual trade refused",
				zap.String("user_id", userId),
				zap.String("symbol", symbol),
				zap.String("direction", string(direction)),
				zap.String("quantity", quantity.String()),
				zap.Error(err))
		default:
			zap.L().Error("Manual trade failed",
				zap.String("user_id", userId),
				zap.String("symbol", symbol),
				zap.String("direction", string(direction)),
				zap.String("quantity", quantity.String()),
				zap.Error(err))
		}
		return nil, err
	}

	t := result.Trade
	return &models.TradeRecord{
		Id:        t.Id,
		Type:      t.Type,
		Symbol:    symbol,
		Quantity:  t.Quantity,
		Price:     t.Price,
		Notional:  t.Notional,
		Fee:       t.Fee,
		CreatedAt: t.CreatedAt,
	}, nil
}

// Deposit credits external cash to a user's wallet and raises its net investment.
// An empty reference gets a generated one.
func (s *LedgerService) Deposit(ctx context.Context, userId string, amount decimal.Decimal, reference string) (*models.Wallet, error) {
	if userId == "" || !amount.IsPositive() {
		return nil, fmt.Errorf("user_id and a positive amount are required")
	}
	if reference == "" {
		reference = "deposit-" + uuid.New().String()
	}

	wallet, err := s.store.GetWalletByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if err := s.store.Deposit(ctx, wallet.Id, amount, reference); err != nil {
		zap.L().Error("Deposit processing failed",
			zap.String("user_id", userId),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, err
	}
	return s.store.GetWalletByUser(ctx, userId)
}

// GetTradeHistory returns paginated trade history for a user
func (s *LedgerService) GetTradeHistory(ctx context.Context, userId string, limit, offset int) ([]models.TradeRecord, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	wallet, err := s.store.GetWalletByUser(ctx, userId)
	if err != nil {
		return nil, err
	}

	trades, err := s.store.GetTradeHistory(ctx, wallet.Id, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get trade history",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve trade history")
	}
	return trades, nil
}
