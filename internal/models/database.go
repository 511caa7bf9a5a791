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

// TradeType is the direction of a settlement or signal
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Valid reports whether t is BUY or SELL
func (t TradeType) Valid() bool {
	return t == TradeBuy || t == TradeSell
}

const (
	BotStatusActive   = "active"
	BotStatusInactive = "inactive"

	SignalStatusPending   = "pending"
	SignalStatusProcessed = "processed"
	SignalStatusRejected  = "rejected"
	SignalStatusStale     = "stale"
)

// User represents a user in the system
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Wallet is a cash account. Exactly one wallet has IsTreasury set and no owner.
type Wallet struct {
	Id            string          `db:"id"`
	UserId        string          `db:"user_id"`
	IsTreasury    bool            `db:"is_treasury"`
	Balance       decimal.Decimal `db:"balance"`
	NetInvestment decimal.Decimal `db:"net_investment"`
	Version       int64           `db:"version"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// CoinHolding is a wallet's position in one coin
type CoinHolding struct {
	Id              string          `db:"id"`
	WalletId        string          `db:"wallet_id"`
	CoinId          string          `db:"coin_id"`
	Amount          decimal.Decimal `db:"amount"`
	AverageBuyPrice decimal.Decimal `db:"average_buy_price"`
	Version         int64           `db:"version"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// Coin is a traded asset definition. FeeRate is a fraction (0.025 = 2.5%).
type Coin struct {
	Id          string          `db:"id"`
	Symbol      string          `db:"symbol"`
	PriceFeedId string          `db:"price_feed_id"`
	FeeRate     decimal.Decimal `db:"fee_rate"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Bot is a copy-trading strategy restricted to a single coin
type Bot struct {
	Id         string          `db:"id"`
	Name       string          `db:"name"`
	CoinSymbol string          `db:"coin_symbol"`
	FeeRate    decimal.Decimal `db:"fee_rate"`
	Status     string          `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
}

// Subscription is a virtual sub-ledger nested in the owner's real wallet
type Subscription struct {
	Id                 string          `db:"id"`
	UserId             string          `db:"user_id"`
	BotId              string          `db:"bot_id"`
	VirtualBalance     decimal.Decimal `db:"virtual_balance"`
	VirtualCoinBalance decimal.Decimal `db:"virtual_coin_balance"`
	TradePercentage    decimal.Decimal `db:"trade_percentage"`
	NetInvestment      decimal.Decimal `db:"net_investment"`
	Active             bool            `db:"active"`
	StoppedAt          *time.Time      `db:"stopped_at"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// Trade is an immutable settlement record against a real wallet
type Trade struct {
	Id        string          `db:"id"`
	WalletId  string          `db:"wallet_id"`
	CoinId    string          `db:"coin_id"`
	Type      TradeType       `db:"trade_type"`
	Quantity  decimal.Decimal `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
	Notional  decimal.Decimal `db:"notional"`
	Fee       decimal.Decimal `db:"fee"`
	CreatedAt time.Time       `db:"created_at"`
}

// BotTrade is the per-subscription audit record of a copy trade
type BotTrade struct {
	Id             string          `db:"id"`
	TradeId        string          `db:"trade_id"`
	SubscriptionId string          `db:"subscription_id"`
	SignalId       string          `db:"signal_id"`
	WalletId       string          `db:"wallet_id"`
	CoinId         string          `db:"coin_id"`
	Type           TradeType       `db:"trade_type"`
	Quantity       decimal.Decimal `db:"quantity"`
	Price          decimal.Decimal `db:"price"`
	Notional       decimal.Decimal `db:"notional"`
	Fee            decimal.Decimal `db:"fee"`
	CreatedAt      time.Time       `db:"created_at"`
}

// Signal is a validated bot instruction awaiting fan-out
type Signal struct {
	Id             string          `db:"id"`
	BotId          string          `db:"bot_id"`
	Action         TradeType       `db:"action"`
	ReferencePrice decimal.Decimal `db:"reference_price"`
	SignalTime     time.Time       `db:"signal_time"`
	IdempotencyKey string          `db:"idempotency_key"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	ProcessedAt    *time.Time      `db:"processed_at"`
}

// SubscriptionSnapshot is a point-in-time performance record
type SubscriptionSnapshot struct {
	Id                 string          `db:"id"`
	SubscriptionId     string          `db:"subscription_id"`
	Equity             decimal.Decimal `db:"equity"`
	NetInvestment      decimal.Decimal `db:"net_investment"`
	Pnl                decimal.Decimal `db:"pnl"`
	Roi                decimal.Decimal `db:"roi"`
	VirtualBalance     decimal.Decimal `db:"virtual_balance"`
	VirtualCoinBalance decimal.Decimal `db:"virtual_coin_balance"`
	Price              decimal.Decimal `db:"price"`
	RecordedAt         time.Time       `db:"recorded_at"`

	// BaselineInitialized marks a snapshot whose net investment was set from
	// equity during this run and must be written back to the subscription.
	BaselineInitialized bool `db:"-"`
}

// WalletSnapshot is a point-in-time performance record
type WalletSnapshot struct {
	Id            string          `db:"id"`
	WalletId      string          `db:"wallet_id"`
	Equity        decimal.Decimal `db:"equity"`
	NetInvestment decimal.Decimal `db:"net_investment"`
	Pnl           decimal.Decimal `db:"pnl"`
	Roi           decimal.Decimal `db:"roi"`
	CashBalance   decimal.Decimal `db:"cash_balance"`
	HoldingsValue decimal.Decimal `db:"holdings_value"`
	RecordedAt    time.Time       `db:"recorded_at"`

	BaselineInitialized bool `db:"-"`
}

// JournalEntry is one side of a double-entry posting
type JournalEntry struct {
	Id           string          `db:"id"`
	Reference    string          `db:"reference"`
	AccountType  string          `db:"account_type"`
	AccountId    string          `db:"account_id"`
	Asset        string          `db:"asset"`
	DebitAmount  decimal.Decimal `db:"debit_amount"`
	CreditAmount decimal.Decimal `db:"credit_amount"`
	CreatedAt    time.Time       `db:"created_at"`
}

// SubscriptionPosition is a subscription eagerly joined with the coin its bot trades.
// CoinId is empty when the bot's coin symbol has no coin definition.
type SubscriptionPosition struct {
	Subscription
	CoinId      string
	PriceFeedId string
}

// HoldingPosition is a holding joined with its coin's price feed id
type HoldingPosition struct {
	CoinHolding
	PriceFeedId string
}

// WalletPosition is a wallet eagerly joined with all of its holdings
type WalletPosition struct {
	Wallet
	Holdings []HoldingPosition
}
