package settlement

import (
	"context"
	"fmt"
	"sync"

	"copytrade-ledger-go/internal/store"

	"go.uber.org/zap"
)

// TreasuryResolver caches the treasury wallet id. The engine invalidates it
// when the cached id no longer resolves to the treasury.
type TreasuryResolver struct {
	lookup store.TreasuryLookup

	mu sync.RWMutex
	id string
}

func NewTreasuryResolver(lookup store.TreasuryLookup) *TreasuryResolver {
	return &TreasuryResolver{lookup: lookup}
}

func (r *TreasuryResolver) Id(ctx context.Context) (string, error) {
	r.mu.RLock()
	id := r.id
	r.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id != "" {
		return r.id, nil
	}

	treasury, err := r.lookup.GetTreasury(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve treasury: %w", err)
	}
	r.id = treasury.Id
	zap.L().Debug("Treasury resolved", zap.String("wallet_id", r.id))
	return r.id, nil
}

func (r *TreasuryResolver) Invalidate() {
	r.mu.Lock()
	r.id = ""
	r.mu.Unlock()
}
