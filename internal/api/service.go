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

// Package api is the read and command surface consumed by controllers and
// CLIs: portfolio performance, subscription lifecycle, manual trades and
// reconciliation.
package api

import (
	"context"
	"fmt"
	"time"

	"copytrade-ledger-go/internal/pricing"
	"copytrade-ledger-go/internal/settlement"
	"copytrade-ledger-go/internal/store"
)

// LedgerService provides minimal API
type LedgerService struct {
	store  store.LedgerStore
	oracle pricing.Oracle
	engine *settlement.Engine
	now    func() time.Time
}

// NewLedgerService wires the service. engine may be nil for read-only use,
// in which case manual trades are refused.
func NewLedgerService(s store.LedgerStore, oracle pricing.Oracle, engine *settlement.Engine) *LedgerService {
	return &LedgerService{
		store:  s,
		oracle: oracle,
		engine: engine,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for timeframes and subscription stop times
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	_, err := s.store.GetTreasury(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
