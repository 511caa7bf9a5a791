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
	"go.uber.org/zap"
)

// SaveSignal persists a signal keyed by its idempotency key. A redelivered
// signal returns the stored row together with ErrDuplicateTransaction.
func (s *Service) SaveSignal(ctx context.Context, signal *models.Signal) (*models.Signal, error) {
	if signal.IdempotencyKey == "" {
		return nil, fmt.Errorf("signal idempotency key is required")
	}
	if signal.Id == "" {
		signal.Id = uuid.New().String()
	}
	status := signal.Status
	if status == "" {
		status = models.SignalStatusPending
	}

	result, err := s.db.ExecContext(ctx, queryInsertSignal,
		signal.Id, signal.BotId, string(signal.Action), signal.ReferencePrice, signal.SignalTime.UTC(),
		signal.IdempotencyKey, status)
	if err != nil {
		return nil, fmt.Errorf("unable to insert signal: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}

	stored, err := scanSignal(s.db.QueryRowContext(ctx, queryGetSignalByKey, signal.IdempotencyKey))
	if err != nil {
		return nil, fmt.Errorf("unable to load stored signal: %w", err)
	}

	if rowsAffected == 0 {
		zap.L().Warn("Duplicate signal detected, skipping insert",
			zap.String("idempotency_key", signal.IdempotencyKey),
			zap.String("existing_signal_id", stored.Id),
			zap.String("status", stored.Status))
		return stored, fmt.Errorf("%w: signal %s", store.ErrDuplicateTransaction, stored.Id)
	}
	return stored, nil
}

func (s *Service) GetSignal(ctx context.Context, signalId string) (*models.Signal, error) {
	sig, err := scanSignal(s.db.QueryRowContext(ctx, queryGetSignal, signalId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrSignalNotFound, signalId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query signal %s: %w", signalId, err)
	}
	return sig, nil
}

// ListPendingSignals returns unprocessed signals, oldest first
func (s *Service) ListPendingSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	rows, err := s.db.QueryContext(ctx, queryListPendingSignals, limit)
	if err != nil {
		return nil, fmt.Errorf("unable to query pending signals: %w", err)
	}
	defer closeRows(rows)

	var signals []models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan signal row: %w", err)
		}
		signals = append(signals, *sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}

func (s *Service) MarkSignal(ctx context.Context, signalId, status string) error {
	result, err := s.db.ExecContext(ctx, queryMarkSignal, status, time.Now().UTC(), signalId)
	if err != nil {
		return fmt.Errorf("unable to mark signal %s: %w", signalId, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrSignalNotFound, signalId)
	}
	return nil
}
