package api

import (
	"context"
	"fmt"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

func validatePercentage(pct decimal.Decimal) error {
	if !pct.IsPositive() || pct.GreaterThan(one) {
		return fmt.Errorf("trade percentage must be in (0, 1], got %s", pct.String())
	}
	return nil
}

func validateAllocation(name string, amount *decimal.Decimal) error {
	if amount != nil && amount.IsNegative() {
		return fmt.Errorf("%s cannot be negative, got %s", name, amount.String())
	}
	return nil
}

// CopyBot subscribes a user to an active bot with a virtual allocation
func (s *LedgerService) CopyBot(ctx context.Context, params store.CreateSubscriptionParams) (*models.Subscription, error) {
	if params.UserId == "" || params.BotId == "" {
		return nil, fmt.Errorf("user_id and bot_id are required")
	}
	if err := validatePercentage(params.TradePercentage); err != nil {
		return nil, err
	}
	if err := validateAllocation("virtual balance", &params.VirtualBalance); err != nil {
		return nil, err
	}
	if err := validateAllocation("virtual coin balance", &params.VirtualCoinBalance); err != nil {
		return nil, err
	}

	bot, err := s.store.GetBot(ctx, params.BotId)
	if err != nil {
		return nil, err
	}
	if bot.Status != models.BotStatusActive {
		return nil, fmt.Errorf("bot %s is %s and cannot be copied", bot.Name, bot.Status)
	}

	return s.store.CreateSubscription(ctx, params)
}

// UpdateSubscription changes the trade percentage or allocation. The store
// re-checks that allocations still fit the wallet.
func (s *LedgerService) UpdateSubscription(ctx context.Context, params store.UpdateSubscriptionParams) (*models.Subscription, error) {
	if params.TradePercentage != nil {
		if err := validatePercentage(*params.TradePercentage); err != nil {
			return nil, err
		}
	}
	if err := validateAllocation("virtual balance", params.VirtualBalance); err != nil {
		return nil, err
	}
	if err := validateAllocation("virtual coin balance", params.VirtualCoinBalance); err != nil {
		return nil, err
	}
	return s.store.UpdateSubscription(ctx, params)
}

// StopSubscription deactivates a subscription. Its history is kept.
func (s *LedgerService) StopSubscription(ctx context.Context, subscriptionId string) error {
	return s.store.DeactivateSubscription(ctx, subscriptionId, s.now().UTC())
}

func (s *LedgerService) DeleteSubscription(ctx context.Context, subscriptionId string) error {
	return s.store.DeleteSubscription(ctx, subscriptionId)
}

func (s *LedgerService) ListSubscriptions(ctx context.Context, userId string) ([]models.Subscription, error) {
	return s.store.ListUserSubscriptions(ctx, userId)
}
