// Package pricing adapts external market data into decimal spot prices keyed
// by a coin's price feed id.
package pricing

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned by GetPrice when the feed has no usable price
var ErrPriceUnavailable = errors.New("price unavailable")

// Oracle returns spot prices for price feed ids. GetBatchPrices omits ids it
// cannot price instead of failing the whole request.
type Oracle interface {
	GetPrice(ctx context.Context, feedId string) (decimal.Decimal, error)
	GetBatchPrices(ctx context.Context, feedIds []string) (map[string]decimal.Decimal, error)
}

// Distinct returns the sorted set of non-empty ids
func Distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
