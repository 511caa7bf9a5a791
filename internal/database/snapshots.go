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
	"fmt"
	"time"

	"copytrade-ledger-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListSubscriptionPositions returns the next batch of active subscriptions
// with id > afterId, each joined with the coin its bot trades.
func (s *Service) ListSubscriptionPositions(ctx context.Context, afterId string, limit int) ([]models.SubscriptionPosition, error) {
	rows, err := s.db.QueryContext(ctx, queryListSubscriptionPositions, afterId, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query subscription positions: %w", err)
	}
	defer closeRows(rows)

	var positions []models.SubscriptionPosition
	for rows.Next() {
		var p models.SubscriptionPosition
		dest := append(subscriptionDest(&p.Subscription), &p.CoinId, &p.PriceFeedId)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("unable to scan subscription position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription positions: %w", err)
	}
	return positions, nil
}

// ListWalletPositions returns the next batch of user wallets with id > afterId.
// Holdings for the whole batch are loaded with one extra query.
func (s *Service) ListWalletPositions(ctx context.Context, afterId string, limit int) ([]models.WalletPosition, error) {
	rows, err := s.db.QueryContext(ctx, queryListWalletsAfter, afterId, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}
	defer closeRows(rows)

	var positions []models.WalletPosition
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan wallet row: %w", err)
		}
		index[w.Id] = len(positions)
		ids = append(ids, w.Id)
		positions = append(positions, models.WalletPosition{Wallet: *w})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	holdingRows, err := s.db.QueryContext(ctx, fmt.Sprintf(queryHoldingsForWallets, placeholders(len(ids))), stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("unable to query batch holdings: %w", err)
	}
	defer closeRows(holdingRows)

	for holdingRows.Next() {
		h, err := scanHoldingPosition(holdingRows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan holding row: %w", err)
		}
		i := index[h.WalletId]
		positions[i].Holdings = append(positions[i].Holdings, h)
	}
	if err := holdingRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding rows: %w", err)
	}
	return positions, nil
}

// SaveSubscriptionSnapshots writes one batch in a single transaction together
// with any net-investment baselines initialised while computing it.
func (s *Service) SaveSubscriptionSnapshots(ctx context.Context, snapshots []models.SubscriptionSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(l *ledgerTx) error {
		for i := range snapshots {
			snap := &snapshots[i]
			if snap.Id == "" {
				snap.Id = uuid.New().String()
			}
			_, err := l.tx.ExecContext(ctx, queryInsertSubscriptionSnapshot,
				snap.Id, snap.SubscriptionId, snap.Equity, snap.NetInvestment, snap.Pnl, snap.Roi,
				snap.VirtualBalance, snap.VirtualCoinBalance, snap.Price, snap.RecordedAt.UTC())
			if err != nil {
				return fmt.Errorf("failed to insert snapshot for subscription %s: %w", snap.SubscriptionId, err)
			}
			if snap.BaselineInitialized {
				if _, err := l.tx.ExecContext(ctx, queryUpdateSubscriptionNetInvestment, snap.NetInvestment, snap.SubscriptionId); err != nil {
					return fmt.Errorf("failed to initialise baseline for subscription %s: %w", snap.SubscriptionId, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.L().Debug("Subscription snapshots saved", zap.Int("count", len(snapshots)))
	return nil
}

func (s *Service) SaveWalletSnapshots(ctx context.Context, snapshots []models.WalletSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(l *ledgerTx) error {
		for i := range snapshots {
			snap := &snapshots[i]
			if snap.Id == "" {
				snap.Id = uuid.New().String()
			}
			_, err := l.tx.ExecContext(ctx, queryInsertWalletSnapshot,
				snap.Id, snap.WalletId, snap.Equity, snap.NetInvestment, snap.Pnl, snap.Roi,
				snap.CashBalance, snap.HoldingsValue, snap.RecordedAt.UTC())
			if err != nil {
				return fmt.Errorf("failed to insert snapshot for wallet %s: %w", snap.WalletId, err)
			}
			if snap.BaselineInitialized {
				if _, err := l.tx.ExecContext(ctx, queryUpdateWalletNetInvestment, snap.NetInvestment, snap.WalletId); err != nil {
					return fmt.Errorf("failed to initialise baseline for wallet %s: %w", snap.WalletId, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.L().Debug("Wallet snapshots saved", zap.Int("count", len(snapshots)))
	return nil
}

// ListSubscriptionSnapshots returns snapshots recorded at or after since, oldest first
func (s *Service) ListSubscriptionSnapshots(ctx context.Context, subscriptionId string, since time.Time) ([]models.SubscriptionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, queryListSubscriptionSnapshots, subscriptionId, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("unable to query subscription snapshots: %w", err)
	}
	defer closeRows(rows)

	var snapshots []models.SubscriptionSnapshot
	for rows.Next() {
		var snap models.SubscriptionSnapshot
		err := rows.Scan(&snap.Id, &snap.SubscriptionId, &snap.Equity, &snap.NetInvestment, &snap.Pnl, &snap.Roi,
			&snap.VirtualBalance, &snap.VirtualCoinBalance, &snap.Price, &snap.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan subscription snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription snapshots: %w", err)
	}
	return snapshots, nil
}

func (s *Service) ListWalletSnapshots(ctx context.Context, walletId string, since time.Time) ([]models.WalletSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, queryListWalletSnapshots, walletId, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet snapshots: %w", err)
	}
	defer closeRows(rows)

	var snapshots []models.WalletSnapshot
	for rows.Next() {
		var snap models.WalletSnapshot
		err := rows.Scan(&snap.Id, &snap.WalletId, &snap.Equity, &snap.NetInvestment, &snap.Pnl, &snap.Roi,
			&snap.CashBalance, &snap.HoldingsValue, &snap.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan wallet snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet snapshots: %w", err)
	}
	return snapshots, nil
}
