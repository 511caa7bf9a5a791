package pricing

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// StaticOracle serves prices from memory. It is used by the offline CLIs and tests.
type StaticOracle struct {
	mu         sync.RWMutex
	prices     map[string]decimal.Decimal
	batchCalls int
}

func NewStaticOracle(prices map[string]decimal.Decimal) *StaticOracle {
	o := &StaticOracle{prices: make(map[string]decimal.Decimal, len(prices))}
	for k, v := range prices {
		o.prices[k] = v
	}
	return o
}

func (o *StaticOracle) Set(feedId string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[feedId] = price
}

func (o *StaticOracle) GetPrice(_ context.Context, feedId string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[feedId]
	if !ok || !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, feedId)
	}
	return p, nil
}

func (o *StaticOracle) GetBatchPrices(_ context.Context, feedIds []string) (map[string]decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batchCalls++

	out := make(map[string]decimal.Decimal, len(feedIds))
	for _, id := range feedIds {
		if p, ok := o.prices[id]; ok && p.IsPositive() {
			out[id] = p
		}
	}
	return out, nil
}

// BatchCalls reports how many batch requests have been served
func (o *StaticOracle) BatchCalls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.batchCalls
}
