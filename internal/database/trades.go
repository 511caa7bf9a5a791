package database

import (
	"context"
	"fmt"

	"copytrade-ledger-go/internal/models"

	"go.uber.org/zap"
)

// GetTradeHistory returns paginated trades for a wallet, newest first
func (s *Service) GetTradeHistory(ctx context.Context, walletId string, limit, offset int) ([]models.TradeRecord, error) {
	zap.L().Debug("Getting trade history",
		zap.String("wallet_id", walletId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTradeHistory, walletId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade history: %w", err)
	}
	defer closeRows(rows)

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		err := rows.Scan(&t.Id, &t.Type, &t.Symbol, &t.Quantity, &t.Price, &t.Notional, &t.Fee, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during trade row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// GetJournalEntries returns every posting written under a reference
func (s *Service) GetJournalEntries(ctx context.Context, reference string) ([]models.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetJournalEntries, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		err := rows.Scan(&e.Id, &e.Reference, &e.AccountType, &e.AccountId, &e.Asset,
			&e.DebitAmount, &e.CreditAmount, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}
	return entries, nil
}
