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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingValue is a holding marked to market
type HoldingValue struct {
	Symbol          string          `json:"symbol"`
	Amount          decimal.Decimal `json:"amount"`
	AverageBuyPrice decimal.Decimal `json:"average_buy_price"`
	Price           decimal.Decimal `json:"price"`
	Value           decimal.Decimal `json:"value"`
	PriceMissing    bool            `json:"price_missing,omitempty"`
}

// PerformanceReport is the read model for a wallet or subscription
type PerformanceReport struct {
	EntityId           string          `json:"entity_id"`
	Timeframe          string          `json:"timeframe"`
	Equity             decimal.Decimal `json:"equity"`
	NetInvestment      decimal.Decimal `json:"net_investment"`
	Pnl                decimal.Decimal `json:"pnl"`
	Roi                decimal.Decimal `json:"roi"`
	Since              time.Time       `json:"since"`
	ReferenceEquity    decimal.Decimal `json:"reference_equity"`
	Change             decimal.Decimal `json:"change"`
	ChangePercent      decimal.Decimal `json:"change_percent"`
	MaxDrawdown        decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPercent decimal.Decimal `json:"max_drawdown_percent"`
	Holdings           []HoldingValue  `json:"holdings,omitempty"`
}

// ChartPoint is one historical equity sample
type ChartPoint struct {
	RecordedAt    time.Time       `json:"recorded_at"`
	Equity        decimal.Decimal `json:"equity"`
	NetInvestment decimal.Decimal `json:"net_investment"`
	Pnl           decimal.Decimal `json:"pnl"`
	Roi           decimal.Decimal `json:"roi"`
}

// Drawdown is the worst observed equity deficit over an entity's history
type Drawdown struct {
	MaxDrawdown        decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPercent decimal.Decimal `json:"max_drawdown_percent"`
	Samples            int             `json:"samples"`
}

// TradeRecord represents a settled trade in a user's history
type TradeRecord struct {
	Id        string          `json:"id"`
	Type      TradeType       `json:"type"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Notional  decimal.Decimal `json:"notional"`
	Fee       decimal.Decimal `json:"fee"`
	CreatedAt time.Time       `json:"created_at"`
}

// DriftReport compares a user's subscription allocations to real balances
type DriftReport struct {
	UserId            string          `json:"user_id"`
	WalletBalance     decimal.Decimal `json:"wallet_balance"`
	AllocatedBalance  decimal.Decimal `json:"allocated_balance"`
	CashDrift         decimal.Decimal `json:"cash_drift"`
	CoinDrifts        []CoinDrift     `json:"coin_drifts,omitempty"`
	HasDrift          bool            `json:"has_drift"`
	SubscriptionCount int             `json:"subscription_count"`
}

// CoinDrift is the allocation excess for one coin. Positive Drift means the
// subscriptions claim more than the wallet holds.
type CoinDrift struct {
	Symbol    string          `json:"symbol"`
	Held      decimal.Decimal `json:"held"`
	Allocated decimal.Decimal `json:"allocated"`
	Drift     decimal.Decimal `json:"drift"`
}
