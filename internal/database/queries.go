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

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email) VALUES (?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	// Wallet queries
	walletColumns = `id, COALESCE(user_id, ''), is_treasury, balance, net_investment, version, created_at, updated_at`

	queryInsertWallet = `
		INSERT OR IGNORE INTO wallets (id, user_id, is_treasury, balance, net_investment, version)
		VALUES (?, ?, ?, '0', '0', 1)`

	queryGetWallet = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE id = ?`

	queryGetWalletByUser = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = ?`

	queryGetTreasury = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE is_treasury = 1`

	queryUpdateWalletBalance = `
		UPDATE wallets
		SET balance = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`

	queryUpdateWalletDeposit = `
		UPDATE wallets
		SET balance = ?, net_investment = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`

	queryUpdateWalletNetInvestment = `
		UPDATE wallets
		SET net_investment = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryListWalletsAfter = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE is_treasury = 0 AND id > ?
		ORDER BY id
		LIMIT ?`

	// Holding queries
	holdingColumns = `h.id, h.wallet_id, h.coin_id, h.amount, h.average_buy_price, h.version, h.updated_at`

	queryGetHolding = `
		SELECT ` + holdingColumns + `
		FROM coin_holdings h
		WHERE h.wallet_id = ? AND h.coin_id = ?`

	queryGetWalletHoldings = `
		SELECT ` + holdingColumns + `, c.price_feed_id
		FROM coin_holdings h
		JOIN coins c ON c.id = h.coin_id
		WHERE h.wallet_id = ?
		ORDER BY c.symbol`

	// queryHoldingsForWallets is completed with a placeholder list at call time
	queryHoldingsForWallets = `
		SELECT ` + holdingColumns + `, c.price_feed_id
		FROM coin_holdings h
		JOIN coins c ON c.id = h.coin_id
		WHERE h.wallet_id IN (%s)
		ORDER BY h.wallet_id, c.symbol`

	queryInsertHolding = `
		INSERT INTO coin_holdings (id, wallet_id, coin_id, amount, average_buy_price, version)
		VALUES (?, ?, ?, ?, '0', 1)`

	queryUpdateHoldingAmount = `
		UPDATE coin_holdings
		SET amount = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`

	queryDeleteHolding = `
		DELETE FROM coin_holdings WHERE id = ? AND version = ?`

	queryUpdateAverageBuyPrice = `
		UPDATE coin_holdings
		SET average_buy_price = ?, updated_at = CURRENT_TIMESTAMP
		WHERE wallet_id = ? AND coin_id = ?`

	// Coin and bot queries
	coinColumns = `id, symbol, price_feed_id, fee_rate, created_at, updated_at`

	queryInsertCoin = `
		INSERT INTO coins (id, symbol, price_feed_id, fee_rate) VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET price_feed_id = excluded.price_feed_id,
			fee_rate = excluded.fee_rate, updated_at = CURRENT_TIMESTAMP`

	queryGetCoin = `
		SELECT ` + coinColumns + ` FROM coins WHERE id = ?`

	queryGetCoinBySymbol = `
		SELECT ` + coinColumns + ` FROM coins WHERE symbol = ?`

	queryLockCoin = `
		UPDATE coins SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	botColumns = `id, name, coin_symbol, fee_rate, status, created_at`

	queryInsertBot = `
		INSERT INTO bots (id, name, coin_symbol, fee_rate, status) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET coin_symbol = excluded.coin_symbol,
			fee_rate = excluded.fee_rate, status = excluded.status`

	queryGetBot = `
		SELECT ` + botColumns + ` FROM bots WHERE id = ?`

	queryGetBotByName = `
		SELECT ` + botColumns + ` FROM bots WHERE name = ?`

	// Subscription queries
	subscriptionColumns = `s.id, s.user_id, s.bot_id, s.virtual_balance, s.virtual_coin_balance, s.trade_percentage,
		s.net_investment, s.active, s.stopped_at, s.created_at, s.updated_at`

	queryInsertSubscription = `
		INSERT INTO bot_subscriptions (id, user_id, bot_id, virtual_balance, virtual_coin_balance, trade_percentage, net_investment, active)
		VALUES (?, ?, ?, ?, ?, ?, '0', 1)`

	queryGetSubscription = `
		SELECT ` + subscriptionColumns + `
		FROM bot_subscriptions s
		WHERE s.id = ?`

	queryGetSubscriptionByUserBot = `
		SELECT s.id FROM bot_subscriptions s WHERE s.user_id = ? AND s.bot_id = ?`

	queryListUserSubscriptions = `
		SELECT ` + subscriptionColumns + `
		FROM bot_subscriptions s
		WHERE s.user_id = ?
		ORDER BY s.created_at`

	queryListUserAllocations = `
		SELECT s.id, s.virtual_balance, s.virtual_coin_balance, b.coin_symbol
		FROM bot_subscriptions s
		JOIN bots b ON b.id = s.bot_id
		WHERE s.user_id = ? AND s.active = 1`

	queryListActiveSubscriptionsByBot = `
		SELECT ` + subscriptionColumns + `
		FROM bot_subscriptions s
		WHERE s.bot_id = ? AND s.active = 1
		ORDER BY s.id`

	queryListSubscriptionPositions = `
		SELECT ` + subscriptionColumns + `, COALESCE(c.id, ''), COALESCE(c.price_feed_id, '')
		FROM bot_subscriptions s
		JOIN bots b ON b.id = s.bot_id
		LEFT JOIN coins c ON c.symbol = b.coin_symbol
		WHERE s.active = 1 AND s.id > ?
		ORDER BY s.id
		LIMIT ?`

	queryUpdateSubscriptionBalances = `
		UPDATE bot_subscriptions
		SET virtual_balance = ?, virtual_coin_balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryUpdateSubscriptionAllocation = `
		UPDATE bot_subscriptions
		SET virtual_balance = ?, virtual_coin_balance = ?, trade_percentage = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryUpdateSubscriptionNetInvestment = `
		UPDATE bot_subscriptions
		SET net_investment = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryDeactivateSubscription = `
		UPDATE bot_subscriptions
		SET active = 0, stopped_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryDeleteSubscription = `
		DELETE FROM bot_subscriptions WHERE id = ?`

	// Trade queries
	queryInsertTrade = `
		INSERT INTO trades (id, wallet_id, coin_id, trade_type, quantity, price, notional, fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertBotTrade = `
		INSERT INTO bot_trades (id, trade_id, subscription_id, signal_id, wallet_id, coin_id, trade_type,
			quantity, price, notional, fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryHasBotTrade = `
		SELECT id FROM bot_trades WHERE subscription_id = ? AND signal_id = ? LIMIT 1`

	queryGetTradeHistory = `
		SELECT t.id, t.trade_type, c.symbol, t.quantity, t.price, t.notional, t.fee, t.created_at
		FROM trades t
		JOIN coins c ON c.id = t.coin_id
		WHERE t.wallet_id = ?
		ORDER BY t.created_at DESC, t.id
		LIMIT ? OFFSET ?`

	// Journal queries
	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, reference, account_type, account_id, asset, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetJournalEntries = `
		SELECT id, reference, account_type, account_id, asset, debit_amount, credit_amount, created_at
		FROM journal_entries
		WHERE reference = ?
		ORDER BY account_type, account_id, asset`

	// Snapshot queries
	queryInsertSubscriptionSnapshot = `
		INSERT INTO subscription_snapshots (id, subscription_id, equity, net_investment, pnl, roi,
			virtual_balance, virtual_coin_balance, price, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertWalletSnapshot = `
		INSERT INTO wallet_snapshots (id, wallet_id, equity, net_investment, pnl, roi,
			cash_balance, holdings_value, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryListSubscriptionSnapshots = `
		SELECT id, subscription_id, equity, net_investment, pnl, roi, virtual_balance, virtual_coin_balance, price, recorded_at
		FROM subscription_snapshots
		WHERE subscription_id = ? AND recorded_at >= ?
		ORDER BY recorded_at, id`

	queryListWalletSnapshots = `
		SELECT id, wallet_id, equity, net_investment, pnl, roi, cash_balance, holdings_value, recorded_at
		FROM wallet_snapshots
		WHERE wallet_id = ? AND recorded_at >= ?
		ORDER BY recorded_at, id`

	// Signal queries
	signalColumns = `id, bot_id, action, reference_price, signal_time, idempotency_key, status, created_at, processed_at`

	queryInsertSignal = `
		INSERT INTO signals (id, bot_id, action, reference_price, signal_time, idempotency_key, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING`

	queryGetSignal = `
		SELECT ` + signalColumns + ` FROM signals WHERE id = ?`

	queryGetSignalByKey = `
		SELECT ` + signalColumns + ` FROM signals WHERE idempotency_key = ?`

	queryListPendingSignals = `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE status = 'pending'
		ORDER BY signal_time, id
		LIMIT ?`

	queryMarkSignal = `
		UPDATE signals SET status = ?, processed_at = ? WHERE id = ?`
)
