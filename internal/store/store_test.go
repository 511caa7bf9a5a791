package store

import (
	"errors"
	"fmt"
	"testing"
)

// Compile-time checks that the interfaces are importable and usable.
func TestLedgerStoreInterfaceExists(t *testing.T) {
	var _ LedgerStore
	var _ SettlementStore
	var _ SnapshotStore
	_ = CreateSubscriptionParams{}
}

func TestSentinelErrorsWrap(t *testing.T) {
	sentinels := []error{
		ErrInsufficientFunds,
		ErrInsufficientCoinBalance,
		ErrInsufficientTreasuryLiquidity,
		ErrCoinNotFound,
		ErrBotNotFound,
		ErrSubscriptionNotFound,
		ErrInvalidSignal,
		ErrStalePrice,
		ErrBatchProcessing,
	}
	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("settle: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("expected %v to match after wrapping", sentinel)
		}
	}
	if errors.Is(ErrInsufficientFunds, ErrInsufficientCoinBalance) {
		t.Error("distinct sentinels must not match each other")
	}
}
