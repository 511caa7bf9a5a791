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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"copytrade-ledger-go/internal/api"
	"copytrade-ledger-go/internal/common"
	"copytrade-ledger-go/internal/config"
	"copytrade-ledger-go/internal/models"

	"go.uber.org/zap"
)

type portfolioStats struct {
	totalUsers    int
	subscriptions int
	failed        int
}

func printHolding(h models.HoldingValue, isLast bool) {
	price := common.FormatCash(h.Price, false)
	if h.PriceMissing {
		price += " (cost)"
	}
	fmt.Printf("%s%-6s %16s @ %-14s = %12s  avg %s\n",
		common.BoxPrefix(isLast),
		h.Symbol,
		common.FormatQuantity(h.Amount),
		price,
		common.FormatCash(h.Value, false),
		common.FormatCash(h.AverageBuyPrice, false))
}

func printReport(label string, r *models.PerformanceReport) {
	fmt.Printf("│  %s equity %s | invested %s | pnl %s (%s)\n",
		label,
		common.FormatCash(r.Equity, false),
		common.FormatCash(r.NetInvestment, false),
		common.FormatCash(r.Pnl, true),
		common.FormatPercent(r.Roi))
	fmt.Printf("│  %s since %s: %s (%s) | max drawdown %s (%s)\n",
		r.Timeframe,
		r.Since.Format("2006-01-02 15:04"),
		common.FormatCash(r.Change, true),
		common.FormatPercent(r.ChangePercent),
		common.FormatCash(r.MaxDrawdown, true),
		common.FormatPercent(r.MaxDrawdownPercent))
}

func processUser(ctx context.Context, ledger *api.LedgerService, user common.UserInfo, timeframe string, stats *portfolioStats) error {
	report, err := ledger.GetWalletPerformance(ctx, user.Id, timeframe)
	if err != nil {
		return fmt.Errorf("failed to get wallet performance: %w", err)
	}

	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  Wallet: %s\n", user.WalletId)
	printReport("wallet", report)
	for i, h := range report.Holdings {
		printHolding(h, i == len(report.Holdings)-1)
	}

	subs, err := ledger.ListSubscriptions(ctx, user.Id)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		subReport, err := ledger.GetSubscriptionPerformance(ctx, sub.Id, timeframe)
		if err != nil {
			zap.L().Warn("Failed to price subscription",
				zap.String("subscription_id", sub.Id),
				zap.Error(err))
			continue
		}
		stats.subscriptions++
		fmt.Printf("├─ Subscription %s (bot %s, %s per trade)\n",
			sub.Id, sub.BotId, common.FormatPercent(sub.TradePercentage.Shift(2)))
		printReport("copy", subReport)
	}
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	timeframeFlag := flag.String("timeframe", api.TimeframeCurrent, "Comparison window: current, 1d or 7d")
	flag.Parse()

	if _, err := api.ComparisonInstant(*timeframeFlag, time.Now()); err != nil {
		logger.Fatal("Invalid timeframe", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	users, err := common.InitializeUsers(ctx, services.DbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	common.PrintHeader("PORTFOLIO REPORT", common.WideWidth)

	stats := portfolioStats{}
	for _, user := range users {
		stats.totalUsers++
		if err := processUser(ctx, services.Ledger, user, *timeframeFlag, &stats); err != nil {
			stats.failed++
			logger.Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
		}
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d users, %d active subscriptions, %d failures",
		stats.totalUsers, stats.subscriptions, stats.failed), common.WideWidth)
}
