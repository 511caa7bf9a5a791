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

	"copytrade-ledger-go/internal/ledger"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ store.LedgerTx = (*ledgerTx)(nil)

// ledgerTx implements store.LedgerTx on top of one immediate SQLite transaction
type ledgerTx struct {
	tx *sql.Tx
}

func (l *ledgerTx) LockCoin(ctx context.Context, coinId string) error {
	result, err := l.tx.ExecContext(ctx, queryLockCoin, coinId)
	if err != nil {
		return fmt.Errorf("failed to lock coin %s: %w", coinId, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrCoinNotFound, coinId)
	}
	return nil
}

func (l *ledgerTx) GetCoin(ctx context.Context, coinId string) (*models.Coin, error) {
	return getCoin(ctx, l.tx, coinId)
}

func (l *ledgerTx) GetCoinBySymbol(ctx context.Context, symbol string) (*models.Coin, error) {
	return getCoinBySymbol(ctx, l.tx, symbol)
}

func (l *ledgerTx) GetBot(ctx context.Context, botId string) (*models.Bot, error) {
	return getBot(ctx, l.tx, botId)
}

func (l *ledgerTx) GetWallet(ctx context.Context, walletId string) (*models.Wallet, error) {
	return getWallet(ctx, l.tx, walletId)
}

func (l *ledgerTx) GetWalletByUser(ctx context.Context, userId string) (*models.Wallet, error) {
	return getWalletByUser(ctx, l.tx, userId)
}

func (l *ledgerTx) GetHolding(ctx context.Context, walletId, coinId string) (*models.CoinHolding, error) {
	return getHolding(ctx, l.tx, walletId, coinId)
}

func (l *ledgerTx) GetSubscription(ctx context.Context, subscriptionId string) (*models.Subscription, error) {
	return getSubscription(ctx, l.tx, subscriptionId)
}

func (l *ledgerTx) HasBotTrade(ctx context.Context, subscriptionId, signalId string) (bool, error) {
	var id string
	err := l.tx.QueryRowContext(ctx, queryHasBotTrade, subscriptionId, signalId).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate bot trade: %w", err)
	}
	return true, nil
}

// ApplyTransfers nets the legs per balance, applies each delta with an
// optimistic version check and writes a debit/credit journal pair per leg.
func (l *ledgerTx) ApplyTransfers(ctx context.Context, reference string, transfers []ledger.Transfer) error {
	if err := ledger.Validate(transfers); err != nil {
		return err
	}
	deltas := ledger.Net(transfers)
	if err := ledger.CheckConservation(deltas); err != nil {
		return err
	}

	wallets := make(map[string]*models.Wallet)
	for _, d := range deltas {
		if _, ok := wallets[d.WalletId]; ok {
			continue
		}
		w, err := getWallet(ctx, l.tx, d.WalletId)
		if err != nil {
			return err
		}
		wallets[d.WalletId] = w
	}

	for _, d := range deltas {
		wallet := wallets[d.WalletId]
		var err error
		if d.Asset == ledger.CashAsset {
			err = l.applyCashDelta(ctx, wallet, d.Amount)
		} else {
			err = l.applyCoinDelta(ctx, wallet, d.Asset, d.Amount)
		}
		if err != nil {
			return err
		}
	}

	for _, t := range transfers {
		if err := insertJournalPair(ctx, l.tx, reference,
			models.JournalEntry{AccountType: accountType(wallets[t.To]), AccountId: t.To},
			models.JournalEntry{AccountType: accountType(wallets[t.From]), AccountId: t.From},
			t.Asset, t.Amount); err != nil {
			return err
		}
	}

	zap.L().Debug("Transfers applied",
		zap.String("reference", reference),
		zap.Int("legs", len(transfers)),
		zap.Int("balances", len(deltas)))
	return nil
}

func (l *ledgerTx) applyCashDelta(ctx context.Context, wallet *models.Wallet, delta decimal.Decimal) error {
	newBalance := wallet.Balance.Add(delta)
	if newBalance.IsNegative() {
		if wallet.IsTreasury {
			return fmt.Errorf("%w: treasury cash %s, required %s",
				store.ErrInsufficientTreasuryLiquidity, wallet.Balance.String(), delta.Neg().String())
		}
		return fmt.Errorf("%w: wallet %s has %s, required %s",
			store.ErrInsufficientFunds, wallet.Id, wallet.Balance.String(), delta.Neg().String())
	}

	result, err := l.tx.ExecContext(ctx, queryUpdateWalletBalance, newBalance, wallet.Id, wallet.Version)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}
	wallet.Balance = newBalance
	wallet.Version++
	return nil
}

func (l *ledgerTx) applyCoinDelta(ctx context.Context, wallet *models.Wallet, coinId string, delta decimal.Decimal) error {
	holding, err := getHolding(ctx, l.tx, wallet.Id, coinId)
	if err != nil {
		return err
	}

	current := decimal.Zero
	if holding != nil {
		current = holding.Amount
	}
	newAmount := current.Add(delta)
	if newAmount.IsNegative() {
		if wallet.IsTreasury {
			return fmt.Errorf("%w: treasury holds %s of coin %s, required %s",
				store.ErrInsufficientTreasuryLiquidity, current.String(), coinId, delta.Neg().String())
		}
		return fmt.Errorf("%w: wallet %s holds %s of coin %s, required %s",
			store.ErrInsufficientCoinBalance, wallet.Id, current.String(), coinId, delta.Neg().String())
	}

	if holding == nil {
		_, err := l.tx.ExecContext(ctx, queryInsertHolding, uuid.New().String(), wallet.Id, coinId, newAmount)
		if err != nil {
			return fmt.Errorf("failed to create holding: %w", err)
		}
		return nil
	}

	// User positions that reach exactly zero are removed; treasury rows persist.
	if newAmount.IsZero() && !wallet.IsTreasury {
		result, err := l.tx.ExecContext(ctx, queryDeleteHolding, holding.Id, holding.Version)
		if err != nil {
			return fmt.Errorf("failed to delete holding: %w", err)
		}
		return expectOneRow(result)
	}

	result, err := l.tx.ExecContext(ctx, queryUpdateHoldingAmount, newAmount, holding.Id, holding.Version)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}
	return expectOneRow(result)
}

func (l *ledgerTx) SetAverageBuyPrice(ctx context.Context, walletId, coinId string, price decimal.Decimal) error {
	result, err := l.tx.ExecContext(ctx, queryUpdateAverageBuyPrice, price, walletId, coinId)
	if err != nil {
		return fmt.Errorf("failed to update average buy price: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no holding of coin %s in wallet %s", coinId, walletId)
	}
	return nil
}

func (l *ledgerTx) UpdateSubscriptionBalances(ctx context.Context, subscriptionId string, virtualBalance, virtualCoinBalance decimal.Decimal) error {
	if virtualBalance.IsNegative() || virtualCoinBalance.IsNegative() {
		return fmt.Errorf("virtual balances cannot be negative: cash %s, coin %s",
			virtualBalance.String(), virtualCoinBalance.String())
	}
	result, err := l.tx.ExecContext(ctx, queryUpdateSubscriptionBalances, virtualBalance, virtualCoinBalance, subscriptionId)
	if err != nil {
		return fmt.Errorf("failed to update subscription balances: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrSubscriptionNotFound, subscriptionId)
	}
	return nil
}

func (l *ledgerTx) InsertTrade(ctx context.Context, trade *models.Trade) error {
	if trade.Id == "" {
		trade.Id = uuid.New().String()
	}
	_, err := l.tx.ExecContext(ctx, queryInsertTrade,
		trade.Id, trade.WalletId, trade.CoinId, string(trade.Type),
		trade.Quantity, trade.Price, trade.Notional, trade.Fee, trade.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (l *ledgerTx) InsertBotTrade(ctx context.Context, trade *models.BotTrade) error {
	if trade.Id == "" {
		trade.Id = uuid.New().String()
	}
	_, err := l.tx.ExecContext(ctx, queryInsertBotTrade,
		trade.Id, trade.TradeId, trade.SubscriptionId, trade.SignalId, trade.WalletId, trade.CoinId,
		string(trade.Type), trade.Quantity, trade.Price, trade.Notional, trade.Fee, trade.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert bot trade: %w", err)
	}
	return nil
}

func accountType(w *models.Wallet) string {
	if w != nil && w.IsTreasury {
		return accountTypeTreasury
	}
	return accountTypeWallet
}

// insertJournalPair books amount as a debit on the receiving account and a credit on the sending one
func insertJournalPair(ctx context.Context, q querier, reference string, debit, credit models.JournalEntry, asset string, amount decimal.Decimal) error {
	entries := []struct {
		entry  models.JournalEntry
		debit  decimal.Decimal
		credit decimal.Decimal
	}{
		{debit, amount, decimal.Zero},
		{credit, decimal.Zero, amount},
	}

	for _, e := range entries {
		_, err := q.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), reference, e.entry.AccountType, e.entry.AccountId, asset, e.debit, e.credit)
		if err != nil {
			return fmt.Errorf("failed to add journal entry: %w", err)
		}
	}
	return nil
}
