package store

import (
	"context"
	"errors"
	"time"

	"copytrade-ledger-go/internal/ledger"
	"copytrade-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrInsufficientFunds             = errors.New("insufficient funds")
	ErrInsufficientCoinBalance       = errors.New("insufficient coin balance")
	ErrInsufficientTreasuryLiquidity = errors.New("insufficient treasury liquidity")

	ErrUserNotFound         = errors.New("user not found")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrTreasuryNotFound     = errors.New("treasury account not found")
	ErrCoinNotFound         = errors.New("coin not found")
	ErrBotNotFound          = errors.New("bot not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSignalNotFound       = errors.New("signal not found")

	ErrInvalidSignal      = errors.New("invalid signal")
	ErrStalePrice         = errors.New("stale price")
	ErrBatchProcessing    = errors.New("batch processing failure")
	ErrAllocationExceeded = errors.New("subscription allocation exceeds wallet balances")
	ErrInvalidTimeframe   = errors.New("invalid timeframe")
)

// CreateSubscriptionParams contains the parameters for a "copy bot" action
type CreateSubscriptionParams struct {
	UserId             string
	BotId              string
	VirtualBalance     decimal.Decimal
	VirtualCoinBalance decimal.Decimal
	TradePercentage    decimal.Decimal
}

// UpdateSubscriptionParams changes a subscription's allocation. Nil fields are left untouched.
type UpdateSubscriptionParams struct {
	SubscriptionId     string
	VirtualBalance     *decimal.Decimal
	VirtualCoinBalance *decimal.Decimal
	TradePercentage    *decimal.Decimal
}

// CreateCoinParams defines a tradable coin
type CreateCoinParams struct {
	Symbol      string
	PriceFeedId string
	FeeRate     decimal.Decimal
}

// CreateBotParams defines a copy-trading bot
type CreateBotParams struct {
	Name       string
	CoinSymbol string
	FeeRate    decimal.Decimal
	Status     string
}

// LedgerTx is the set of reads and writes available inside one atomic settlement
type LedgerTx interface {
	// LockCoin takes the write lock that serializes financial mutations on a coin
	LockCoin(ctx context.Context, coinId string) error
	GetCoin(ctx context.Context, coinId string) (*models.Coin, error)
	GetCoinBySymbol(ctx context.Context, symbol string) (*models.Coin, error)
	GetBot(ctx context.Context, botId string) (*models.Bot, error)
	GetWallet(ctx context.Context, walletId string) (*models.Wallet, error)
	GetWalletByUser(ctx context.Context, userId string) (*models.Wallet, error)
	// GetHolding returns nil without error when the wallet holds none of the coin
	GetHolding(ctx context.Context, walletId, coinId string) (*models.CoinHolding, error)
	GetSubscription(ctx context.Context, subscriptionId string) (*models.Subscription, error)
	HasBotTrade(ctx context.Context, subscriptionId, signalId string) (bool, error)

	// ApplyTransfers posts every leg, journals it under reference and rejects
	// any balance that would end up negative.
	ApplyTransfers(ctx context.Context, reference string, transfers []ledger.Transfer) error
	SetAverageBuyPrice(ctx context.Context, walletId, coinId string, price decimal.Decimal) error
	UpdateSubscriptionBalances(ctx context.Context, subscriptionId string, virtualBalance, virtualCoinBalance decimal.Decimal) error
	InsertTrade(ctx context.Context, trade *models.Trade) error
	InsertBotTrade(ctx context.Context, trade *models.BotTrade) error
}

// TxRunner runs fn inside one database transaction, committing only if fn returns nil
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// TreasuryLookup resolves the singleton treasury wallet
type TreasuryLookup interface {
	GetTreasury(ctx context.Context) (*models.Wallet, error)
}

// SettlementStore is what the settlement engine needs
type SettlementStore interface {
	TxRunner
	TreasuryLookup
}

// SubscriptionLister is what the fan-out dispatcher needs
type SubscriptionLister interface {
	ListActiveSubscriptionsByBot(ctx context.Context, botId string) ([]models.Subscription, error)
}

// SnapshotStore is what the snapshot job needs
type SnapshotStore interface {
	ListSubscriptionPositions(ctx context.Context, afterId string, limit int) ([]models.SubscriptionPosition, error)
	ListWalletPositions(ctx context.Context, afterId string, limit int) ([]models.WalletPosition, error)
	// SaveSubscriptionSnapshots writes one batch atomically, including baseline initialisation
	SaveSubscriptionSnapshots(ctx context.Context, snapshots []models.SubscriptionSnapshot) error
	SaveWalletSnapshots(ctx context.Context, snapshots []models.WalletSnapshot) error
}

// SignalStore persists signals for at-least-once settlement
type SignalStore interface {
	SaveSignal(ctx context.Context, signal *models.Signal) (*models.Signal, error)
	GetSignal(ctx context.Context, signalId string) (*models.Signal, error)
	ListPendingSignals(ctx context.Context, limit int) ([]models.Signal, error)
	MarkSignal(ctx context.Context, signalId, status string) error
}

// LedgerStore defines the contract that every backend must satisfy.
type LedgerStore interface {
	SettlementStore
	SubscriptionLister
	SnapshotStore
	SignalStore

	// --- Users and wallets ---
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)
	GetWalletByUser(ctx context.Context, userId string) (*models.Wallet, error)
	GetHoldings(ctx context.Context, walletId string) ([]models.HoldingPosition, error)
	Deposit(ctx context.Context, walletId string, amount decimal.Decimal, reference string) error

	// --- Treasury and market definitions ---
	EnsureTreasury(ctx context.Context) (*models.Wallet, error)
	FundTreasuryCash(ctx context.Context, amount decimal.Decimal, reference string) error
	FundTreasuryCoin(ctx context.Context, coinSymbol string, amount decimal.Decimal, reference string) error
	CreateCoin(ctx context.Context, params CreateCoinParams) (*models.Coin, error)
	CreateBot(ctx context.Context, params CreateBotParams) (*models.Bot, error)
	GetCoinBySymbol(ctx context.Context, symbol string) (*models.Coin, error)
	GetCoinsByIds(ctx context.Context, ids []string) (map[string]models.Coin, error)
	GetBot(ctx context.Context, botId string) (*models.Bot, error)
	GetBotByName(ctx context.Context, name string) (*models.Bot, error)

	// --- Subscriptions ---
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) (*models.Subscription, error)
	DeactivateSubscription(ctx context.Context, subscriptionId string, stoppedAt time.Time) error
	DeleteSubscription(ctx context.Context, subscriptionId string) error
	GetSubscription(ctx context.Context, subscriptionId string) (*models.Subscription, error)
	ListUserSubscriptions(ctx context.Context, userId string) ([]models.Subscription, error)

	// --- History ---
	GetTradeHistory(ctx context.Context, walletId string, limit, offset int) ([]models.TradeRecord, error)
	ListSubscriptionSnapshots(ctx context.Context, subscriptionId string, since time.Time) ([]models.SubscriptionSnapshot, error)
	ListWalletSnapshots(ctx context.Context, walletId string, since time.Time) ([]models.WalletSnapshot, error)
	GetJournalEntries(ctx context.Context, reference string) ([]models.JournalEntry, error)

	// --- Lifecycle ---
	Close()
}
