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
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(ctx, cfg.CreateDummyUsers); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// dsn builds the connection string. Immediate transactions take the write
// lock at BEGIN, so every ledger mutation is serialized against the others.
func dsn(cfg models.DatabaseConfig) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=on",
		cfg.Path, busy.Milliseconds())
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// RunInTx runs fn in a single transaction. Any error from fn rolls back every write.
func (s *Service) RunInTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	return s.withTx(ctx, func(l *ledgerTx) error { return fn(l) })
}

func (s *Service) withTx(ctx context.Context, fn func(l *ledgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) initSchema(ctx context.Context, createDummyUsers bool) error {
	schema := `
	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	-- Wallets: one per user plus the treasury singleton (no owner)
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		is_treasury BOOLEAN NOT NULL DEFAULT 0,
		balance TEXT NOT NULL DEFAULT '0',
		net_investment TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallets_treasury ON wallets(is_treasury) WHERE is_treasury = 1;

	-- Coins and bots
	CREATE TABLE IF NOT EXISTS coins (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL UNIQUE,
		price_feed_id TEXT NOT NULL,
		fee_rate TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS bots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		coin_symbol TEXT NOT NULL,
		fee_rate TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Coin holdings (hot data, optimistic versioning)
	CREATE TABLE IF NOT EXISTS coin_holdings (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		coin_id TEXT NOT NULL REFERENCES coins(id),
		amount TEXT NOT NULL DEFAULT '0',
		average_buy_price TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(wallet_id, coin_id)
	);

	-- Subscriptions: virtual sub-ledgers nested in a user's wallet
	CREATE TABLE IF NOT EXISTS bot_subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		bot_id TEXT NOT NULL REFERENCES bots(id),
		virtual_balance TEXT NOT NULL DEFAULT '0',
		virtual_coin_balance TEXT NOT NULL DEFAULT '0',
		trade_percentage TEXT NOT NULL,
		net_investment TEXT NOT NULL DEFAULT '0',
		active BOOLEAN NOT NULL DEFAULT 1,
		stopped_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, bot_id)
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_bot_active ON bot_subscriptions(bot_id, active);

	-- Trades (audit trail, append only)
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		coin_id TEXT NOT NULL,
		trade_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		notional TEXT NOT NULL,
		fee TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_wallet_created ON trades(wallet_id, created_at);

	CREATE TABLE IF NOT EXISTS bot_trades (
		id TEXT PRIMARY KEY,
		trade_id TEXT NOT NULL REFERENCES trades(id),
		subscription_id TEXT NOT NULL,
		signal_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		coin_id TEXT NOT NULL,
		trade_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		notional TEXT NOT NULL,
		fee TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(subscription_id, signal_id)
	);

	-- Signals awaiting fan-out
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		action TEXT NOT NULL,
		reference_price TEXT NOT NULL,
		signal_time TIMESTAMP NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status, signal_time);

	-- Snapshots (append only)
	CREATE TABLE IF NOT EXISTS subscription_snapshots (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL REFERENCES bot_subscriptions(id) ON DELETE CASCADE,
		equity TEXT NOT NULL,
		net_investment TEXT NOT NULL,
		pnl TEXT NOT NULL,
		roi TEXT NOT NULL,
		virtual_balance TEXT NOT NULL,
		virtual_coin_balance TEXT NOT NULL,
		price TEXT NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subscription_snapshots ON subscription_snapshots(subscription_id, recorded_at);

	CREATE TABLE IF NOT EXISTS wallet_snapshots (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		equity TEXT NOT NULL,
		net_investment TEXT NOT NULL,
		pnl TEXT NOT NULL,
		roi TEXT NOT NULL,
		cash_balance TEXT NOT NULL,
		holdings_value TEXT NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wallet_snapshots ON wallet_snapshots(wallet_id, recorded_at);

	-- Journal entries for double-entry bookkeeping
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		account_type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_journal_reference ON journal_entries(reference);
	CREATE INDEX IF NOT EXISTS idx_journal_account ON journal_entries(account_type, account_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// Insert 3 dummy users for testing if configured to do so
	if createDummyUsers {
		users := []struct {
			id    string
			name  string
			email string
		}{
			{uuid.New().String(), "Alice Johnson", "alice.johnson@example.com"},
			{uuid.New().String(), "Bob Smith", "bob.smith@example.com"},
			{uuid.New().String(), "Carol Williams", "carol.williams@example.com"},
		}

		for _, user := range users {
			_, err := s.CreateUser(ctx, user.id, user.name, user.email)
			if errors.Is(err, store.ErrDuplicateTransaction) {
				continue
			}
			if err != nil {
				zap.L().Error("Failed to insert dummy user", zap.String("name", user.name), zap.Error(err))
			} else {
				zap.L().Info("Dummy user created", zap.String("id", user.id), zap.String("name", user.name))
			}
		}
	} else {
		zap.L().Info("Skipping dummy user creation (CREATE_DUMMY_USERS=false)")
	}

	return nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
