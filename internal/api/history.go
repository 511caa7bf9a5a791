package api

import (
	"context"
	"fmt"

	"copytrade-ledger-go/internal/models"
	"copytrade-ledger-go/internal/snapshot"
)

// GetWalletChart returns the wallet's snapshots since the timeframe instant,
// oldest first. The current timeframe returns the whole history.
func (s *LedgerService) GetWalletChart(ctx context.Context, userId, timeframe string) ([]models.ChartPoint, error) {
	since, err := ComparisonInstant(timeframe, s.now())
	if err != nil {
		return nil, err
	}
	wallet, err := s.store.GetWalletByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListWalletSnapshots(ctx, wallet.Id, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet history: %w", err)
	}
	return walletChart(history), nil
}

func (s *LedgerService) GetSubscriptionChart(ctx context.Context, subscriptionId, timeframe string) ([]models.ChartPoint, error) {
	since, err := ComparisonInstant(timeframe, s.now())
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListSubscriptionSnapshots(ctx, subscriptionId, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription history: %w", err)
	}
	return subscriptionChart(history), nil
}

// GetWalletDrawdown computes drawdown over every snapshot the wallet has
func (s *LedgerService) GetWalletDrawdown(ctx context.Context, userId string) (*models.Drawdown, error) {
	points, err := s.GetWalletChart(ctx, userId, TimeframeCurrent)
	if err != nil {
		return nil, err
	}
	dd := drawdown(points)
	return &dd, nil
}

func (s *LedgerService) GetSubscriptionDrawdown(ctx context.Context, subscriptionId string) (*models.Drawdown, error) {
	points, err := s.GetSubscriptionChart(ctx, subscriptionId, TimeframeCurrent)
	if err != nil {
		return nil, err
	}
	dd := drawdown(points)
	return &dd, nil
}

func drawdown(points []models.ChartPoint) models.Drawdown {
	series := make([]snapshot.Point, len(points))
	for i, p := range points {
		series[i] = snapshot.Point{Equity: p.Equity, NetInvestment: p.NetInvestment}
	}
	amount, percent := snapshot.MaxDrawdown(series)
	return models.Drawdown{MaxDrawdown: amount, MaxDrawdownPercent: percent, Samples: len(points)}
}

func walletChart(history []models.WalletSnapshot) []models.ChartPoint {
	points := make([]models.ChartPoint, len(history))
	for i, h := range history {
		points[i] = models.ChartPoint{RecordedAt: h.RecordedAt, Equity: h.Equity, NetInvestment: h.NetInvestment, Pnl: h.Pnl, Roi: h.Roi}
	}
	return points
}

func subscriptionChart(history []models.SubscriptionSnapshot) []models.ChartPoint {
	points := make([]models.ChartPoint, len(history))
	for i, h := range history {
		points[i] = models.ChartPoint{RecordedAt: h.RecordedAt, Equity: h.Equity, NetInvestment: h.NetInvestment, Pnl: h.Pnl, Roi: h.Roi}
	}
	return points
}
