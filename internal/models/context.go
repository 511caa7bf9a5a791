package models

import (
	"context"
	"time"
)

type settlementContextKey struct{}

// SettlementContext carries the origin of a settlement through context so
// journal mirrors can attach it as metadata without widening the engine API.
type SettlementContext struct {
	SignalId   string    // originating signal, empty for manual trades
	BotId      string    // originating bot, empty for manual trades
	Source     string    // "manual" or "signal"
	SignalTime time.Time // effective time of the signal
}

// WithSettlementContext attaches settlement origin data to a context.
func WithSettlementContext(ctx context.Context, sc *SettlementContext) context.Context {
	return context.WithValue(ctx, settlementContextKey{}, sc)
}

// GetSettlementContext retrieves settlement origin data from context, or nil if absent.
func GetSettlementContext(ctx context.Context) *SettlementContext {
	sc, _ := ctx.Value(settlementContextKey{}).(*SettlementContext)
	return sc
}
