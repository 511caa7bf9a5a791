package database

import (
	"copytrade-ledger-go/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.Id, &w.UserId, &w.IsTreasury, &w.Balance, &w.NetInvestment, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanHolding(row rowScanner) (*models.CoinHolding, error) {
	var h models.CoinHolding
	err := row.Scan(&h.Id, &h.WalletId, &h.CoinId, &h.Amount, &h.AverageBuyPrice, &h.Version, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHoldingPosition(row rowScanner) (models.HoldingPosition, error) {
	var h models.HoldingPosition
	err := row.Scan(&h.Id, &h.WalletId, &h.CoinId, &h.Amount, &h.AverageBuyPrice, &h.Version, &h.UpdatedAt, &h.PriceFeedId)
	return h, err
}

func scanCoin(row rowScanner) (*models.Coin, error) {
	var c models.Coin
	err := row.Scan(&c.Id, &c.Symbol, &c.PriceFeedId, &c.FeeRate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanBot(row rowScanner) (*models.Bot, error) {
	var b models.Bot
	err := row.Scan(&b.Id, &b.Name, &b.CoinSymbol, &b.FeeRate, &b.Status, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func subscriptionDest(s *models.Subscription) []any {
	return []any{&s.Id, &s.UserId, &s.BotId, &s.VirtualBalance, &s.VirtualCoinBalance, &s.TradePercentage,
		&s.NetInvestment, &s.Active, &s.StoppedAt, &s.CreatedAt, &s.UpdatedAt}
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var s models.Subscription
	if err := row.Scan(subscriptionDest(&s)...); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	var s models.Signal
	err := row.Scan(&s.Id, &s.BotId, &s.Action, &s.ReferencePrice, &s.SignalTime, &s.IdempotencyKey,
		&s.Status, &s.CreatedAt, &s.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
