package snapshot

import (
	"github.com/shopspring/decimal"
)

const (
	currencyScale int32 = 6
	percentScale  int32 = 4
)

var hundred = decimal.NewFromInt(100)

// Performance is the derived state of one entity at one instant
type Performance struct {
	Equity        decimal.Decimal
	NetInvestment decimal.Decimal
	Pnl           decimal.Decimal
	Roi           decimal.Decimal

	// BaselineInitialized is set when the net investment was unset and has
	// just been taken from equity.
	BaselineInitialized bool
}

// Evaluate derives PnL and ROI. A zero or negative baseline is replaced by
// equity, so a first snapshot reports no gain.
func Evaluate(equity, netInvestment decimal.Decimal) Performance {
	equity = equity.Round(currencyScale)
	p := Performance{Equity: equity, NetInvestment: netInvestment}
	if !netInvestment.IsPositive() {
		p.NetInvestment = equity
		p.BaselineInitialized = true
	}
	p.Pnl = p.Equity.Sub(p.NetInvestment)
	p.Roi = Roi(p.Pnl, p.NetInvestment)
	return p
}

// Roi is pnl as a percentage of net, zero when net is not positive
func Roi(pnl, net decimal.Decimal) decimal.Decimal {
	if !net.IsPositive() {
		return decimal.Zero
	}
	return pnl.Div(net).Mul(hundred).Round(percentScale)
}

// Point is one equity observation for drawdown
type Point struct {
	Equity        decimal.Decimal
	NetInvestment decimal.Decimal
}

// MaxDrawdown returns the lowest equity - net over the series and the lowest
// (equity - net) / net x 100 over points with a positive net. Both are zero
// for an empty series.
func MaxDrawdown(points []Point) (amount, percent decimal.Decimal) {
	havePercent := false
	for i, p := range points {
		diff := p.Equity.Sub(p.NetInvestment)
		if i == 0 || diff.LessThan(amount) {
			amount = diff
		}
		if !p.NetInvestment.IsPositive() {
			continue
		}
		pct := diff.Div(p.NetInvestment).Mul(hundred).Round(percentScale)
		if !havePercent || pct.LessThan(percent) {
			percent = pct
			havePercent = true
		}
	}
	return amount, percent
}
