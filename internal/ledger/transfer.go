// Package ledger describes value movements as explicit transfer legs so that
// conservation can be checked before anything is written.
package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// CashAsset is the asset key for quote-currency balances. Coin legs use the coin id.
const CashAsset = "CASH"

// Transfer moves Amount of Asset from one wallet to another
type Transfer struct {
	From   string
	To     string
	Asset  string
	Amount decimal.Decimal
}

// Cash builds a quote-currency leg
func Cash(from, to string, amount decimal.Decimal) Transfer {
	return Transfer{From: from, To: to, Asset: CashAsset, Amount: amount}
}

// Coin builds a coin leg
func Coin(coinId, from, to string, amount decimal.Decimal) Transfer {
	return Transfer{From: from, To: to, Asset: coinId, Amount: amount}
}

// Key identifies one balance touched by a transfer set
type Key struct {
	WalletId string
	Asset    string
}

// Delta is the net change applied to one balance
type Delta struct {
	Key
	Amount decimal.Decimal
}

// Validate rejects legs that are empty, self-referencing or non-positive
func Validate(transfers []Transfer) error {
	if len(transfers) == 0 {
		return fmt.Errorf("transfer set is empty")
	}
	for i, t := range transfers {
		if t.From == "" || t.To == "" {
			return fmt.Errorf("transfer %d: source and destination are required", i)
		}
		if t.From == t.To {
			return fmt.Errorf("transfer %d: source and destination are the same wallet %s", i, t.From)
		}
		if t.Asset == "" {
			return fmt.Errorf("transfer %d: asset is required", i)
		}
		if !t.Amount.IsPositive() {
			return fmt.Errorf("transfer %d: amount must be positive, got %s", i, t.Amount.String())
		}
	}
	return nil
}

// Net collapses a transfer set into per-balance deltas, sorted by wallet then asset
func Net(transfers []Transfer) []Delta {
	sums := make(map[Key]decimal.Decimal)
	for _, t := range transfers {
		from := Key{WalletId: t.From, Asset: t.Asset}
		to := Key{WalletId: t.To, Asset: t.Asset}
		sums[from] = sums[from].Sub(t.Amount)
		sums[to] = sums[to].Add(t.Amount)
	}

	deltas := make([]Delta, 0, len(sums))
	for k, v := range sums {
		if v.IsZero() {
			continue
		}
		deltas = append(deltas, Delta{Key: k, Amount: v})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].WalletId != deltas[j].WalletId {
			return deltas[i].WalletId < deltas[j].WalletId
		}
		return deltas[i].Asset < deltas[j].Asset
	})
	return deltas
}

// CheckConservation verifies that every asset nets to zero across all balances
func CheckConservation(deltas []Delta) error {
	perAsset := make(map[string]decimal.Decimal)
	for _, d := range deltas {
		perAsset[d.Asset] = perAsset[d.Asset].Add(d.Amount)
	}
	for asset, total := range perAsset {
		if !total.IsZero() {
			return fmt.Errorf("asset %s does not net to zero: %s", asset, total.String())
		}
	}
	return nil
}

// DeltaFor returns the net change for one balance, zero if untouched
func DeltaFor(deltas []Delta, walletId, asset string) decimal.Decimal {
	for _, d := range deltas {
		if d.WalletId == walletId && d.Asset == asset {
			return d.Amount
		}
	}
	return decimal.Zero
}
