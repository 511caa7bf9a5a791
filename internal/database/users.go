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

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.Id, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// getUser runs a single-user lookup; key is only used in errors
func (s *Service) getUser(ctx context.Context, query, key string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, key)
	}
	if err != nil {
		zap.L().Error("Failed to query user", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("unable to query user %s: %w", key, err)
	}
	return user, nil
}

// GetUsers lists active users in creation order
func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, queryGetActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	zap.L().Debug("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	return s.getUser(ctx, queryGetUserById, userId)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, queryGetUserByEmail, email)
}

// CreateUser inserts the user and its 1:1 wallet atomically. A taken email
// fails with store.ErrDuplicateTransaction.
func (s *Service) CreateUser(ctx context.Context, userId, name, email string) (*models.User, error) {
	walletId := uuid.New().String()

	err := s.withTx(ctx, func(l *ledgerTx) error {
		result, err := l.tx.ExecContext(ctx, queryInsertUser, userId, name, email)
		if err != nil {
			return fmt.Errorf("unable to insert user: %w", err)
		}
		if err := expectOneRow(result); err != nil {
			return fmt.Errorf("%w: user with email %s already exists", store.ErrDuplicateTransaction, email)
		}
		if _, err := l.tx.ExecContext(ctx, queryInsertWallet, walletId, userId, false); err != nil {
			return fmt.Errorf("unable to create wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		zap.L().Warn("User creation failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	zap.L().Info("User created",
		zap.String("id", userId),
		zap.String("email", email),
		zap.String("wallet_id", walletId))
	return s.GetUserById(ctx, userId)
}
