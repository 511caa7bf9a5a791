package settlement

import (
	"fmt"

	"copytrade-ledger-go/internal/ledger"
	"copytrade-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Kind distinguishes a user-sized trade from one derived from a subscription
type Kind string

const (
	KindManual Kind = "manual"
	KindCopy   Kind = "copy"
)

// TradeIntent is one BUY or SELL to settle against the treasury. Manual
// intents name a wallet, coin and quantity. Copy intents name a subscription
// and the signal that triggered them; quantity is derived at settlement time.
type TradeIntent struct {
	Kind      Kind
	Direction models.TradeType
	Price     decimal.Decimal

	WalletId   string
	CoinSymbol string
	Quantity   decimal.Decimal

	SubscriptionId string
	SignalId       string
}

func (i TradeIntent) Validate() error {
	if !i.Direction.Valid() {
		return fmt.Errorf("invalid trade direction %q", i.Direction)
	}
	if !i.Price.IsPositive() {
		return fmt.Errorf("price must be positive, got %s", i.Price.String())
	}

	switch i.Kind {
	case KindManual:
		if i.WalletId == "" || i.CoinSymbol == "" {
			return fmt.Errorf("manual trade requires wallet and coin")
		}
		if !i.Quantity.Truncate(QuantityScale).IsPositive() {
			return fmt.Errorf("quantity must be positive at %d decimal places, got %s", QuantityScale, i.Quantity.String())
		}
	case KindCopy:
		if i.SubscriptionId == "" || i.SignalId == "" {
			return fmt.Errorf("copy trade requires subscription and signal")
		}
	default:
		return fmt.Errorf("unknown trade kind %q", i.Kind)
	}
	return nil
}

// Skip reasons reported when a copy trade settles nothing
const (
	SkipInactive       = "subscription_inactive"
	SkipBelowMinimum   = "below_minimum_trade_value"
	SkipWalletDesync   = "wallet_cash_below_spend"
	SkipNoHolding      = "no_real_holding"
	SkipNothingToTrade = "quantity_rounds_to_zero"
)

// Result describes what a settlement did. Executed is false for silent
// no-ops, in which case SkipReason says why and nothing was written.
type Result struct {
	Executed   bool
	SkipReason string
	Trade      *models.Trade
	BotTrade   *models.BotTrade
	Transfers  []ledger.Transfer
}

func skipped(reason string) *Result {
	return &Result{SkipReason: reason}
}
