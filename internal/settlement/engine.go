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

package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"copytrade-ledger-go/internal/ledger"
	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"
	"copytrade-ledger-go/internal/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errStaleTreasury = errors.New("cached treasury id is stale")

// Journal receives the legs of every committed settlement. Failures are
// logged and never undo the local commit.
type Journal interface {
	RecordSettlement(ctx context.Context, reference string, transfers []ledger.Transfer) error
}

// Engine settles trade intents against the treasury, one transaction each
type Engine struct {
	store         store.SettlementStore
	treasury      *TreasuryResolver
	minTradeValue decimal.Decimal
	journal       Journal
	metrics       *telemetry.Instruments
	now           func() time.Time
}

type Option func(*Engine)

func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithInstruments(m *telemetry.Instruments) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(s store.SettlementStore, minTradeValue decimal.Decimal, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		treasury:      NewTreasuryResolver(s),
		minTradeValue: minTradeValue,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ManualTrade settles a user-sized trade at the given price
func (e *Engine) ManualTrade(ctx context.Context, walletId, coinSymbol string, direction models.TradeType, quantity, price decimal.Decimal) (*Result, error) {
	return e.Execute(ctx, TradeIntent{
		Kind:       KindManual,
		Direction:  direction,
		Price:      price,
		WalletId:   walletId,
		CoinSymbol: coinSymbol,
		Quantity:   quantity,
	})
}

// ExecuteBuy copies a BUY signal into one subscription
func (e *Engine) ExecuteBuy(ctx context.Context, subscriptionId, signalId string, price decimal.Decimal) (*Result, error) {
	return e.Execute(ctx, TradeIntent{
		Kind:           KindCopy,
		Direction:      models.TradeBuy,
		Price:          price,
		SubscriptionId: subscriptionId,
		SignalId:       signalId,
	})
}

// ExecuteSell copies a SELL signal into one subscription
func (e *Engine) ExecuteSell(ctx context.Context, subscriptionId, signalId string, price decimal.Decimal) (*Result, error) {
	return e.Execute(ctx, TradeIntent{
		Kind:           KindCopy,
		Direction:      models.TradeSell,
		Price:          price,
		SubscriptionId: subscriptionId,
		SignalId:       signalId,
	})
}

// Execute settles one intent atomically. Copy trades that cannot run return
// a non-executed Result and no error.
func (e *Engine) Execute(ctx context.Context, intent TradeIntent) (*Result, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	intent.Price = intent.Price.Truncate(CurrencyScale)
	intent.Quantity = intent.Quantity.Truncate(QuantityScale)

	start := e.now()
	result, err := e.settleWithTreasury(ctx, intent)
	elapsed := e.now().Sub(start)

	outcome := telemetry.OutcomeExecuted
	switch {
	case err != nil:
		outcome = telemetry.OutcomeFailed
	case !result.Executed:
		outcome = telemetry.OutcomeSkipped
	}
	e.metrics.RecordSettlement(ctx, string(intent.Kind), string(intent.Direction), outcome, elapsed)

	if err != nil {
		e.logFailure(ctx, intent, err)
		return nil, err
	}
	if !result.Executed {
		return result, nil
	}

	zap.L().Info("Trade settled",
		zap.String("kind", string(intent.Kind)),
		zap.String("trade_id", result.Trade.Id),
		zap.String("wallet_id", result.Trade.WalletId),
		zap.String("type", string(result.Trade.Type)),
		zap.String("quantity", result.Trade.Quantity.String()),
		zap.String("price", result.Trade.Price.String()),
		zap.String("fee", result.Trade.Fee.String()),
		zap.String("subscription_id", intent.SubscriptionId))

	if e.journal != nil {
		if err := e.journal.RecordSettlement(ctx, result.Trade.Id, result.Transfers); err != nil {
			zap.L().Warn("Failed to mirror settlement to journal",
				zap.String("trade_id", result.Trade.Id),
				zap.Error(err))
		}
	}
	return result, nil
}

func (e *Engine) settleWithTreasury(ctx context.Context, intent TradeIntent) (*Result, error) {
	for attempt := 0; ; attempt++ {
		treasuryId, err := e.treasury.Id(ctx)
		if err != nil {
			return nil, err
		}

		var result *Result
		err = e.store.RunInTx(ctx, func(tx store.LedgerTx) error {
			var err error
			result, err = e.settle(ctx, tx, treasuryId, intent)
			return err
		})
		if errors.Is(err, errStaleTreasury) && attempt == 0 {
			zap.L().Warn("Treasury id changed, re-resolving", zap.String("cached_id", treasuryId))
			e.treasury.Invalidate()
			continue
		}
		return result, err
	}
}

func (e *Engine) settle(ctx context.Context, tx store.LedgerTx, treasuryId string, intent TradeIntent) (*Result, error) {
	switch {
	case intent.Kind == KindManual && intent.Direction == models.TradeBuy:
		return e.manualBuy(ctx, tx, treasuryId, intent)
	case intent.Kind == KindManual:
		return e.manualSell(ctx, tx, treasuryId, intent)
	case intent.Direction == models.TradeBuy:
		return e.copyBuy(ctx, tx, treasuryId, intent)
	default:
		return e.copySell(ctx, tx, treasuryId, intent)
	}
}

func (e *Engine) loadTreasury(ctx context.Context, tx store.LedgerTx, treasuryId string) (*models.Wallet, error) {
	treasury, err := tx.GetWallet(ctx, treasuryId)
	if errors.Is(err, store.ErrWalletNotFound) {
		return nil, fmt.Errorf("%w: %s", errStaleTreasury, treasuryId)
	}
	if err != nil {
		return nil, err
	}
	if !treasury.IsTreasury {
		return nil, fmt.Errorf("%w: %s is not the treasury", errStaleTreasury, treasuryId)
	}
	return treasury, nil
}

func heldAmount(ctx context.Context, tx store.LedgerTx, walletId, coinId string) (*models.CoinHolding, decimal.Decimal, error) {
	holding, err := tx.GetHolding(ctx, walletId, coinId)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if holding == nil {
		return nil, decimal.Zero, nil
	}
	return holding, holding.Amount, nil
}

func (e *Engine) manualBuy(ctx context.Context, tx store.LedgerTx, treasuryId string, intent TradeIntent) (*Result, error) {
	coin, err := tx.GetCoinBySymbol(ctx, intent.CoinSymbol)
	if err != nil {
		return nil, err
	}
	if err := tx.LockCoin(ctx, coin.Id); err != nil {
		return nil, err
	}
	wallet, err := tx.GetWallet(ctx, intent.WalletId)
	if err != nil {
		return nil, err
	}
	if wallet.IsTreasury {
		return nil, fmt.Errorf("treasury cannot trade with itself")
	}
	treasury, err := e.loadTreasury(ctx, tx, treasuryId)
	if err != nil {
		return nil, err
	}

	qty := intent.Quantity
	notional := qty.Mul(intent.Price).Round(CurrencyScale)
	fee := notional.Mul(coin.FeeRate).Round(CurrencyScale)
	total := notional.Add(fee)

	if wallet.Balance.LessThan(total) {
		return nil, fmt.Errorf("%w: wallet %s has %s, trade costs %s",
			store.ErrInsufficientFunds, wallet.Id, wallet.Balance.String(), total.String())
	}
	_, treasuryHeld, err := heldAmount(ctx, tx, treasury.Id, coin.Id)
	if err != nil {
		return nil, err
	}
	if treasuryHeld.LessThan(qty) {
		return nil, fmt.Errorf("%w: treasury holds %s %s, requested %s",
			store.ErrInsufficientTreasuryLiquidity, treasuryHeld.String(), coin.Symbol, qty.String())
	}

	holding, held, err := heldAmount(ctx, tx, wallet.Id, coin.Id)
	if err != nil {
		return nil, err
	}
	oldAverage := decimal.Zero
	if holding != nil {
		oldAverage = holding.AverageBuyPrice
	}

	tradeId := uuid.New().String()
	transfers := []ledger.Transfer{
		ledger.Cash(wallet.Id, treasury.Id, total),
		ledger.Coin(coin.Id, treasury.Id, wallet.Id, qty),
	}
	if err := tx.ApplyTransfers(ctx, tradeId, transfers); err != nil {
		return nil, err
	}

	newAmount := held.Add(qty)
	if err := tx.SetAverageBuyPrice(ctx, wallet.Id, coin.Id, AverageCost(held, oldAverage, notional, newAmount)); err != nil {
		return nil, err
	}

	trade := &models.Trade{
		Id: tradeId, WalletId: wallet.Id, CoinId: coin.Id, Type: models.TradeBuy,
		Quantity: qty, Price: intent.Price, Notional: notional, Fee: fee, CreatedAt: e.now(),
	}
	if err := tx.InsertTrade(ctx, trade); err != nil {
		return nil, err
	}
	return &Result{Executed: true, Trade: trade, Transfers: transfers}, nil
}

func (e *Engine) manualSell(ctx context.Context, tx store.LedgerTx, treasuryId string, intent TradeIntent) (*Result, error) {
	coin, err := tx.GetCoinBySymbol(ctx, intent.CoinSymbol)
	if err != nil {
		return nil, err
	}
	if err := tx.LockCoin(ctx, coin.Id); err != nil {
		return nil, err
	}
	wallet, err := tx.GetWallet(ctx, intent.WalletId)
	if err != nil {
		return nil, err
	}
	if wallet.IsTreasury {
		return nil, fmt.Errorf("treasury cannot trade with itself")
	}
	treasury, err := e.loadTreasury(ctx, tx, treasuryId)
	if err != nil {
		return nil, err
	}

	qty := intent.Quantity
	_, held, err := heldAmount(ctx, tx, wallet.Id, coin.Id)
	if err != nil {
		return nil, err
	}
	if held.LessThan(qty) {
		return nil, fmt.Errorf("%w: wallet %s holds %s %s, selling %s",
			store.ErrInsufficientCoinBalance, wallet.Id, held.String(), coin.Symbol, qty.String())
	}

	notional := qty.Mul(intent.Price).Round(CurrencyScale)
	fee := notional.Mul(coin.FeeRate).Round(CurrencyScale)
	net := notional.Sub(fee)
	if !net.IsPositive() {
		return nil, fmt.Errorf("sale of %s %s yields no proceeds after fees", qty.String(), coin.Symbol)
	}
	if treasury.Balance.LessThan(net) {
		return nil, fmt.Errorf("%w: treasury cash %s, proceeds %s",
			store.ErrInsufficientTreasuryLiquidity, treasury.Balance.String(), net.String())
	}

	tradeId := uuid.New().String()
	transfers := []ledger.Transfer{
		ledger.Coin(coin.Id, wallet.Id, treasury.Id, qty),
		ledger.Cash(treasury.Id, wallet.Id, net),
	}
	if err := tx.ApplyTransfers(ctx, tradeId, transfers); err != nil {
		return nil, err
	}

	trade := &models.Trade{
		Id: tradeId, WalletId: wallet.Id, CoinId: coin.Id, Type: models.TradeSell,
		Quantity: qty, Price: intent.Price, Notional: notional, Fee: fee, CreatedAt: e.now(),
	}
	if err := tx.InsertTrade(ctx, trade); err != nil {
		return nil, err
	}
	return &Result{Executed: true, Trade: trade, Transfers: transfers}, nil
}

// copyContext is everything a copy trade reads before deciding quantities
type copyContext struct {
	sub      *models.Subscription
	bot      *models.Bot
	coin     *models.Coin
	wallet   *models.Wallet
	treasury *models.Wallet
}

func (e *Engine) loadCopyContext(ctx context.Context, tx store.LedgerTx, treasuryId string, intent TradeIntent) (*copyContext, error) {
	duplicate, err := tx.HasBotTrade(ctx, intent.SubscriptionId, intent.SignalId)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, fmt.Errorf("%w: signal %s already settled for subscription %s",
			store.ErrDuplicateTransaction, intent.SignalId, intent.SubscriptionId)
	}

	sub, err := tx.GetSubscription(ctx, intent.SubscriptionId)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		return &copyContext{sub: sub}, nil
	}
	bot, err := tx.GetBot(ctx, sub.BotId)
	if err != nil {
		return nil, err
	}
	coin, err := tx.GetCoinBySymbol(ctx, bot.CoinSymbol)
	if err != nil {
		return nil, err
	}
	if err := tx.LockCoin(ctx, coin.Id); err != nil {
		return nil, err
	}
	wallet, err := tx.GetWalletByUser(ctx, sub.UserId)
	if err != nil {
		return nil, err
	}
	treasury, err := e.loadTreasury(ctx, tx, treasuryId)
	if err != nil {
		return nil, err
	}
	return &copyContext{sub: sub, bot: bot, coin: coin, wallet: wallet, treasury: treasury}, nil
}

func (e *Engine) copyBuy(ctx context.Context, tx store.LedgerTx, treasuryId string, intent TradeIntent) (*Result, error) {
	cc, err := e.loadCopyContext(ctx, tx, treasuryId, intent)
	if err != nil {
		return nil, err
	}
	if !cc.sub.Active {
		return skipped(SkipInactive), nil
	}

	grossSpend := cc.sub.VirtualBalance.Mul(cc.sub.TradePercentage).Truncate(CurrencyScale)
	if grossSpend.LessThanOrEqual(e.minTradeValue) {
		zap.L().Debug("Copy buy below minimum trade value",
			zap.String("subscription_id", cc.sub.Id),
			zap.String("spend", grossSpend.String()),
			zap.String("minimum", e.minTradeValue.String()))
		return skipped(SkipBelowMinimum), nil
	}
	if cc.wallet.Balance.LessThan(grossSpend) {
		zap.L().Warn("Wallet cash below virtual spend, skipping copy buy",
			zap.String("subscription_id", cc.sub.Id),
			zap.String("wallet_id", cc.wallet.Id),
			zap.String("balance", cc.wallet.Balance.String()),
			zap.String("spend", grossSpend.String()))
		return skipped(SkipWalletDesync), nil
	}

	_, final := CopyBuyQuantity(grossSpend, intent.Price, cc.coin.FeeRate, cc.bot.FeeRate)
	if !final.IsPositive() {
		return skipped(SkipNothingToTrade), nil
	}

	_, treasuryHeld, err := heldAmount(ctx, tx, cc.treasury.Id, cc.coin.Id)
	if err != nil {
		return nil, err
	}
	if treasuryHeld.LessThan(final) {
		return nil, fmt.Errorf("%w: treasury holds %s %s, copy buy needs %s",
			store.ErrInsufficientTreasuryLiquidity, treasuryHeld.String(), cc.coin.Symbol, final.String())
	}

	holding, held, err := heldAmount(ctx, tx, cc.wallet.Id, cc.coin.Id)
	if err != nil {
		return nil, err
	}
	oldAverage := decimal.Zero
	if holding != nil {
		oldAverage = holding.AverageBuyPrice
	}

	notional := final.Mul(intent.Price).Round(CurrencyScale)
	fee := grossSpend.Sub(notional)

	tradeId := uuid.New().String()
	transfers := []ledger.Transfer{
		ledger.Cash(cc.wallet.Id, cc.treasury.Id, grossSpend),
		ledger.Coin(cc.coin.Id, cc.treasury.Id, cc.wallet.Id, final),
	}
	if err := tx.ApplyTransfers(ctx, tradeId, transfers); err != nil {
		return nil, err
	}
	if err := tx.SetAverageBuyPrice(ctx, cc.wallet.Id, cc.coin.Id, AverageCost(held, oldAverage, notional, held.Add(final))); err != nil {
		return nil, err
	}
	if err := tx.UpdateSubscriptionBalances(ctx, cc.sub.Id,
		cc.sub.VirtualBalance.Sub(grossSpend), cc.sub.VirtualCoinBalance.Add(final)); err != nil {
		return nil, err
	}

	return e.recordCopyTrade(ctx, tx, cc, intent, tradeId, models.TradeBuy, final, notional, fee, transfers)
}

func (e *Engine) copySell(ctx context.Context, tx store.LedgerTx, treasuryId string, intent TradeIntent) (*Result, error) {
	cc, err := e.loadCopyContext(ctx, tx, treasuryId, intent)
	if err != nil {
		return nil, err
	}
	if !cc.sub.Active {
		return skipped(SkipInactive), nil
	}

	qty := cc.sub.VirtualCoinBalance.Mul(cc.sub.TradePercentage).Truncate(QuantityScale)
	if !qty.IsPositive() {
		return skipped(SkipNothingToTrade), nil
	}

	_, held, err := heldAmount(ctx, tx, cc.wallet.Id, cc.coin.Id)
	if err != nil {
		return nil, err
	}
	if held.IsZero() {
		zap.L().Warn("Subscription holds virtual coin but wallet holds none, skipping copy sell",
			zap.String("subscription_id", cc.sub.Id),
			zap.String("wallet_id", cc.wallet.Id),
			zap.String("virtual_coin", cc.sub.VirtualCoinBalance.String()))
		return skipped(SkipNoHolding), nil
	}
	if held.LessThan(qty) {
		zap.L().Warn("Clamping copy sell to real holding",
			zap.String("subscription_id", cc.sub.Id),
			zap.String("requested", qty.String()),
			zap.String("held", held.String()))
		qty = held
	}

	notional := qty.Mul(intent.Price).Truncate(CurrencyScale)
	if notional.LessThanOrEqual(e.minTradeValue) {
		zap.L().Debug("Copy sell below minimum trade value",
			zap.String("subscription_id", cc.sub.Id),
			zap.String("notional", notional.String()),
			zap.String("minimum", e.minTradeValue.String()))
		return skipped(SkipBelowMinimum), nil
	}

	_, net := ApplySequentialFees(notional, cc.coin.FeeRate, cc.bot.FeeRate, CurrencyScale)
	if !net.IsPositive() {
		return skipped(SkipNothingToTrade), nil
	}
	if cc.treasury.Balance.LessThan(net) {
		return nil, fmt.Errorf("%w: treasury cash %s, copy sell proceeds %s",
			store.ErrInsufficientTreasuryLiquidity, cc.treasury.Balance.String(), net.String())
	}
	fee := notional.Sub(net)

	tradeId := uuid.New().String()
	transfers := []ledger.Transfer{
		ledger.Coin(cc.coin.Id, cc.wallet.Id, cc.treasury.Id, qty),
		ledger.Cash(cc.treasury.Id, cc.wallet.Id, net),
	}
	if err := tx.ApplyTransfers(ctx, tradeId, transfers); err != nil {
		return nil, err
	}
	if err := tx.UpdateSubscriptionBalances(ctx, cc.sub.Id,
		cc.sub.VirtualBalance.Add(net), cc.sub.VirtualCoinBalance.Sub(qty)); err != nil {
		return nil, err
	}

	return e.recordCopyTrade(ctx, tx, cc, intent, tradeId, models.TradeSell, qty, notional, fee, transfers)
}

func (e *Engine) recordCopyTrade(ctx context.Context, tx store.LedgerTx, cc *copyContext, intent TradeIntent,
	tradeId string, direction models.TradeType, qty, notional, fee decimal.Decimal, transfers []ledger.Transfer) (*Result, error) {

	now := e.now()
	trade := &models.Trade{
		Id: tradeId, WalletId: cc.wallet.Id, CoinId: cc.coin.Id, Type: direction,
		Quantity: qty, Price: intent.Price, Notional: notional, Fee: fee, CreatedAt: now,
	}
	if err := tx.InsertTrade(ctx, trade); err != nil {
		return nil, err
	}

	botTrade := &models.BotTrade{
		TradeId: tradeId, SubscriptionId: cc.sub.Id, SignalId: intent.SignalId,
		WalletId: cc.wallet.Id, CoinId: cc.coin.Id, Type: direction,
		Quantity: qty, Price: intent.Price, Notional: notional, Fee: fee, CreatedAt: now,
	}
	if err := tx.InsertBotTrade(ctx, botTrade); err != nil {
		return nil, err
	}
	return &Result{Executed: true, Trade: trade, BotTrade: botTrade, Transfers: transfers}, nil
}

func (e *Engine) logFailure(ctx context.Context, intent TradeIntent, err error) {
	fields := []zap.Field{
		zap.String("kind", string(intent.Kind)),
		zap.String("direction", string(intent.Direction)),
		zap.String("wallet_id", intent.WalletId),
		zap.String("subscription_id", intent.SubscriptionId),
		zap.String("signal_id", intent.SignalId),
		zap.Error(err),
	}
	if errors.Is(err, store.ErrInsufficientTreasuryLiquidity) {
		asset := ledger.CashAsset
		if intent.Direction == models.TradeBuy {
			asset = "COIN"
			if intent.CoinSymbol != "" {
				asset = intent.CoinSymbol
			}
		}
		e.metrics.RecordLiquidityAlert(ctx, asset)
		zap.L().Error("Treasury liquidity exhausted", append(fields, zap.Bool("alert", true))...)
		return
	}
	zap.L().Debug("Settlement rejected", fields...)
}
