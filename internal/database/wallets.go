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

const (
	accountTypeWallet   = "wallet"
	accountTypeTreasury = "treasury"
	accountTypeExternal = "external"

	externalDeposits  = "user_deposits"
	externalLiquidity = "treasury_liquidity"
)

func getWallet(ctx context.Context, q querier, walletId string) (*models.Wallet, error) {
	w, err := scanWallet(q.QueryRowContext(ctx, queryGetWallet, walletId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrWalletNotFound, walletId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet %s: %w", walletId, err)
	}
	return w, nil
}

func getWalletByUser(ctx context.Context, q querier, userId string) (*models.Wallet, error) {
	w, err := scanWallet(q.QueryRowContext(ctx, queryGetWalletByUser, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no wallet for user %s", store.ErrWalletNotFound, userId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet for user %s: %w", userId, err)
	}
	return w, nil
}

func getTreasury(ctx context.Context, q querier) (*models.Wallet, error) {
	w, err := scanWallet(q.QueryRowContext(ctx, queryGetTreasury))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTreasuryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query treasury: %w", err)
	}
	return w, nil
}

// getHolding returns nil, nil when the wallet has no row for the coin
func getHolding(ctx context.Context, q querier, walletId, coinId string) (*models.CoinHolding, error) {
	h, err := scanHolding(q.QueryRowContext(ctx, queryGetHolding, walletId, coinId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query holding %s/%s: %w", walletId, coinId, err)
	}
	return h, nil
}

func (s *Service) GetWalletByUser(ctx context.Context, userId string) (*models.Wallet, error) {
	return getWalletByUser(ctx, s.db, userId)
}

func (s *Service) GetTreasury(ctx context.Context) (*models.Wallet, error) {
	return getTreasury(ctx, s.db)
}

// GetHoldings returns every coin position of a wallet with its price feed id
func (s *Service) GetHoldings(ctx context.Context, walletId string) ([]models.HoldingPosition, error) {
	rows, err := s.db.QueryContext(ctx, queryGetWalletHoldings, walletId)
	if err != nil {
		return nil, fmt.Errorf("unable to query holdings: %w", err)
	}
	defer closeRows(rows)

	var holdings []models.HoldingPosition
	for rows.Next() {
		h, err := scanHoldingPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan holding row: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding rows: %w", err)
	}
	return holdings, nil
}

// Deposit credits external cash to a wallet and raises its net investment by the same amount
func (s *Service) Deposit(ctx context.Context, walletId string, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit amount must be positive, got %s", amount.String())
	}

	return s.withTx(ctx, func(l *ledgerTx) error {
		tx := l.tx

		wallet, err := getWallet(ctx, tx, walletId)
		if err != nil {
			return err
		}
		if wallet.IsTreasury {
			return fmt.Errorf("deposits to the treasury must use treasury funding")
		}

		newBalance := wallet.Balance.Add(amount)
		newNet := wallet.NetInvestment.Add(amount)
		result, err := tx.ExecContext(ctx, queryUpdateWalletDeposit, newBalance, newNet, walletId, wallet.Version)
		if err != nil {
			return fmt.Errorf("failed to credit deposit: %w", err)
		}
		if err := expectOneRow(result); err != nil {
			return err
		}

		if err := insertJournalPair(ctx, tx, reference, models.JournalEntry{
			AccountType: accountTypeWallet, AccountId: walletId,
		}, models.JournalEntry{
			AccountType: accountTypeExternal, AccountId: externalDeposits,
		}, ledger.CashAsset, amount); err != nil {
			return err
		}

		zap.L().Info("Deposit processed successfully",
			zap.String("wallet_id", walletId),
			zap.String("amount", amount.String()),
			zap.String("new_balance", newBalance.String()),
			zap.String("net_investment", newNet.String()))
		return nil
	})
}

// EnsureTreasury creates the treasury singleton on first use and returns it
func (s *Service) EnsureTreasury(ctx context.Context) (*models.Wallet, error) {
	if _, err := s.db.ExecContext(ctx, queryInsertWallet, uuid.New().String(), nil, true); err != nil {
		return nil, fmt.Errorf("unable to create treasury: %w", err)
	}
	return getTreasury(ctx, s.db)
}

// FundTreasuryCash adds external liquidity to the treasury's cash balance
func (s *Service) FundTreasuryCash(ctx context.Context, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("funding amount must be positive, got %s", amount.String())
	}

	return s.withTx(ctx, func(l *ledgerTx) error {
		tx := l.tx

		treasury, err := getTreasury(ctx, tx)
		if err != nil {
			return err
		}
		newBalance := treasury.Balance.Add(amount)
		result, err := tx.ExecContext(ctx, queryUpdateWalletBalance, newBalance, treasury.Id, treasury.Version)
		if err != nil {
			return fmt.Errorf("failed to fund treasury cash: %w", err)
		}
		if err := expectOneRow(result); err != nil {
			return err
		}

		zap.L().Info("Treasury cash funded",
			zap.String("amount", amount.String()),
			zap.String("new_balance", newBalance.String()))

		return insertJournalPair(ctx, tx, reference, models.JournalEntry{
			AccountType: accountTypeTreasury, AccountId: treasury.Id,
		}, models.JournalEntry{
			AccountType: accountTypeExternal, AccountId: externalLiquidity,
		}, ledger.CashAsset, amount)
	})
}

// FundTreasuryCoin adds coin liquidity to the treasury under the coin's write lock
func (s *Service) FundTreasuryCoin(ctx context.Context, coinSymbol string, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("funding amount must be positive, got %s", amount.String())
	}

	return s.withTx(ctx, func(l *ledgerTx) error {
		coin, err := l.GetCoinBySymbol(ctx, coinSymbol)
		if err != nil {
			return err
		}
		if err := l.LockCoin(ctx, coin.Id); err != nil {
			return err
		}

		tx := l.tx
		treasury, err := getTreasury(ctx, tx)
		if err != nil {
			return err
		}

		holding, err := getHolding(ctx, tx, treasury.Id, coin.Id)
		if err != nil {
			return err
		}
		if holding == nil {
			_, err = tx.ExecContext(ctx, queryInsertHolding, uuid.New().String(), treasury.Id, coin.Id, amount)
		} else {
			var result sql.Result
			result, err = tx.ExecContext(ctx, queryUpdateHoldingAmount, holding.Amount.Add(amount), holding.Id, holding.Version)
			if err == nil {
				err = expectOneRow(result)
			}
		}
		if err != nil {
			return fmt.Errorf("failed to fund treasury %s: %w", coinSymbol, err)
		}

		zap.L().Info("Treasury coin liquidity funded",
			zap.String("symbol", coinSymbol),
			zap.String("amount", amount.String()))

		return insertJournalPair(ctx, tx, reference, models.JournalEntry{
			AccountType: accountTypeTreasury, AccountId: treasury.Id,
		}, models.JournalEntry{
			AccountType: accountTypeExternal, AccountId: externalLiquidity,
		}, coin.Id, amount)
	})
}

// expectOneRow turns a lost optimistic update into ErrConcurrentModification
func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}
	return nil
}
