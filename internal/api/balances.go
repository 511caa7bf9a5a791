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
	"fmt"
	"sort"
	"time"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/pricing"
	"copytrade-ledger-go/internal/snapshot"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetHoldings returns a user's cash and holdings marked to live prices.
// A holding without a live price is valued at its average buy price and flagged.
func (s *LedgerService) GetHoldings(ctx context.Context, userId string) (*models.Wallet, []models.HoldingValue, error) {
	if userId == "" {
		return nil, nil, fmt.Errorf("user_id is required")
	}

	wallet, err := s.store.GetWalletByUser(ctx, userId)
	if err != nil {
		return nil, nil, err
	}

	values, _, err := s.valueHoldings(ctx, wallet.Id)
	if err != nil {
		return nil, nil, err
	}
	return wallet, values, nil
}

func (s *LedgerService) valueHoldings(ctx context.Context, walletId string) ([]models.HoldingValue, decimal.Decimal, error) {
	holdings, err := s.store.GetHoldings(ctx, walletId)
	if err != nil {
		zap.L().Error("Failed to get holdings", zap.String("wallet_id", walletId), zap.Error(err))
		return nil, decimal.Zero, fmt.Errorf("failed to retrieve holdings: %w", err)
	}
	if len(holdings) == 0 {
		return nil, decimal.Zero, nil
	}

	coinIds := make([]string, 0, len(holdings))
	feeds := make([]string, 0, len(holdings))
	for _, h := range holdings {
		coinIds = append(coinIds, h.CoinId)
		feeds = append(feeds, h.PriceFeedId)
	}

	coins, err := s.store.GetCoinsByIds(ctx, coinIds)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to resolve coins: %w", err)
	}

	prices, err := s.oracle.GetBatchPrices(ctx, pricing.Distinct(feeds))
	if err != nil {
		zap.L().Warn("Live prices unavailable, valuing holdings at cost",
			zap.String("wallet_id", walletId),
			zap.Error(err))
		prices = nil
	}

	total := decimal.Zero
	values := make([]models.HoldingValue, 0, len(holdings))
	for _, h := range holdings {
		v := models.HoldingValue{
			Symbol:          coins[h.CoinId].Symbol,
			Amount:          h.Amount,
			AverageBuyPrice: h.AverageBuyPrice,
		}
		price, ok := prices[h.PriceFeedId]
		if !ok {
			price = h.AverageBuyPrice
			v.PriceMissing = true
		}
		v.Price = price
		v.Value = h.Amount.Mul(price).Round(6)
		total = total.Add(v.Value)
		values = append(values, v)
	}

	sort.Slice(values, func(i, j int) bool { return values[i].Symbol < values[j].Symbol })
	return values, total, nil
}

// GetWalletPerformance reports a user's live equity, PnL and ROI, the change
// since the timeframe instant and the drawdown over the full snapshot history.
func (s *LedgerService) GetWalletPerformance(ctx context.Context, userId, timeframe string) (*models.PerformanceReport, error) {
	since, err := ComparisonInstant(timeframe, s.now())
	if err != nil {
		return nil, err
	}

	wallet, holdings, err := s.GetHoldings(ctx, userId)
	if err != nil {
		return nil, err
	}
	holdingsValue := decimal.Zero
	for _, h := range holdings {
		holdingsValue = holdingsValue.Add(h.Value)
	}

	history, err := s.store.ListWalletSnapshots(ctx, wallet.Id, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet history: %w", err)
	}

	perf := snapshot.Evaluate(wallet.Balance.Add(holdingsValue), wallet.NetInvestment)
	report := buildReport(wallet.Id, timeframe, since, perf, walletChart(history))
	report.Holdings = holdings
	return report, nil
}

// GetSubscriptionPerformance is GetWalletPerformance for one virtual sub-ledger
func (s *LedgerService) GetSubscriptionPerformance(ctx context.Context, subscriptionId, timeframe string) (*models.PerformanceReport, error) {
	since, err := ComparisonInstant(timeframe, s.now())
	if err != nil {
		return nil, err
	}

	sub, err := s.store.GetSubscription(ctx, subscriptionId)
	if err != nil {
		return nil, err
	}
	price, err := s.botPrice(ctx, sub.BotId)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListSubscriptionSnapshots(ctx, sub.Id, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription history: %w", err)
	}

	equity := sub.VirtualBalance.Add(sub.VirtualCoinBalance.Mul(price))
	return buildReport(sub.Id, timeframe, since, snapshot.Evaluate(equity, sub.NetInvestment), subscriptionChart(history)), nil
}

func (s *LedgerService) botPrice(ctx context.Context, botId string) (decimal.Decimal, error) {
	bot, err := s.store.GetBot(ctx, botId)
	if err != nil {
		return decimal.Zero, err
	}
	coin, err := s.store.GetCoinBySymbol(ctx, bot.CoinSymbol)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := s.oracle.GetPrice(ctx, coin.PriceFeedId)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to price %s: %w", coin.Symbol, err)
	}
	return price, nil
}

// buildReport compares live performance against the first snapshot at or
// after since. For the current timeframe the reference is the net investment.
func buildReport(entityId, timeframe string, since time.Time, perf snapshot.Performance, history []models.ChartPoint) *models.PerformanceReport {
	tf := normalizeTimeframe(timeframe)
	report := &models.PerformanceReport{
		EntityId:        entityId,
		Timeframe:       tf,
		Equity:          perf.Equity,
		NetInvestment:   perf.NetInvestment,
		Pnl:             perf.Pnl,
		Roi:             perf.Roi,
		Since:           since,
		ReferenceEquity: perf.NetInvestment,
	}

	if tf != TimeframeCurrent {
		report.ReferenceEquity = perf.Equity
		for _, p := range history {
			if !p.RecordedAt.Before(since) {
				report.ReferenceEquity = p.Equity
				break
			}
		}
	}
	report.Change = perf.Equity.Sub(report.ReferenceEquity)
	report.ChangePercent = snapshot.Roi(report.Change, report.ReferenceEquity)

	dd := drawdown(history)
	report.MaxDrawdown = dd.MaxDrawdown
	report.MaxDrawdownPercent = dd.MaxDrawdownPercent
	return report
}
