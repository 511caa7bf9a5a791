package api

import (
	"context"
	"fmt"
	"sort"

	"copytrade-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconcileUser compares the sum of a user's active virtual allocations with
// the real wallet. Drift is reported, never corrected.
func (s *LedgerService) ReconcileUser(ctx context.Context, userId string) (*models.DriftReport, error) {
	wallet, err := s.store.GetWalletByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListUserSubscriptions(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	holdings, err := s.store.GetHoldings(ctx, wallet.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}

	held := make(map[string]decimal.Decimal, len(holdings))
	for _, h := range holdings {
		held[h.CoinId] = h.Amount
	}

	report := &models.DriftReport{
		UserId:           userId,
		WalletBalance:    wallet.Balance,
		AllocatedBalance: decimal.Zero,
	}
	allocatedCoin := make(map[string]decimal.Decimal)
	bots := make(map[string]*models.Bot)

	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		report.SubscriptionCount++
		report.AllocatedBalance = report.AllocatedBalance.Add(sub.VirtualBalance)

		bot, ok := bots[sub.BotId]
		if !ok {
			if bot, err = s.store.GetBot(ctx, sub.BotId); err != nil {
				return nil, err
			}
			bots[sub.BotId] = bot
		}
		allocatedCoin[bot.CoinSymbol] = allocatedCoin[bot.CoinSymbol].Add(sub.VirtualCoinBalance)
	}

	report.CashDrift = report.AllocatedBalance.Sub(wallet.Balance)
	report.HasDrift = report.CashDrift.IsPositive()

	for symbol, allocated := range allocatedCoin {
		drift := models.CoinDrift{Symbol: symbol, Held: decimal.Zero, Allocated: allocated}
		if coin, err := s.store.GetCoinBySymbol(ctx, symbol); err == nil {
			drift.Held = held[coin.Id]
		}
		drift.Drift = allocated.Sub(drift.Held)
		if drift.Drift.IsPositive() {
			report.HasDrift = true
		}
		report.CoinDrifts = append(report.CoinDrifts, drift)
	}
	sort.Slice(report.CoinDrifts, func(i, j int) bool { return report.CoinDrifts[i].Symbol < report.CoinDrifts[j].Symbol })

	if report.HasDrift {
		zap.L().Warn("Subscription allocations exceed real balances",
			zap.String("user_id", userId),
			zap.String("wallet_balance", wallet.Balance.String()),
			zap.String("allocated_balance", report.AllocatedBalance.String()),
			zap.String("cash_drift", report.CashDrift.String()))
	}
	return report, nil
}

// VerifyJournal checks that the postings under a reference balance per asset
func (s *LedgerService) VerifyJournal(ctx context.Context, reference string) error {
	entries, err := s.store.GetJournalEntries(ctx, reference)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no journal entries for %s", reference)
	}

	net := make(map[string]decimal.Decimal)
	for _, e := range entries {
		net[e.Asset] = net[e.Asset].Add(e.DebitAmount).Sub(e.CreditAmount)
	}
	for asset, n := range net {
		if !n.IsZero() {
			return fmt.Errorf("journal %s is unbalanced for %s by %s", reference, asset, n.String())
		}
	}
	return nil
}
