package settlement

import "github.com/shopspring/decimal"

// Fixed scales for stored values
const (
	CurrencyScale int32 = 6
	QuantityScale int32 = 8
)

var one = decimal.NewFromInt(1)

// ApplySequentialFees deducts the system fee and then the bot fee, truncating
// to scale after each step. Combining the rates first gives a different result.
func ApplySequentialFees(amount, systemFeeRate, botFeeRate decimal.Decimal, scale int32) (afterSystemFee, final decimal.Decimal) {
	afterSystemFee = amount.Mul(one.Sub(systemFeeRate)).Truncate(scale)
	final = afterSystemFee.Mul(one.Sub(botFeeRate)).Truncate(scale)
	return afterSystemFee, final
}

// CopyBuyQuantity converts a spend into the coin quantity delivered after fees
func CopyBuyQuantity(grossSpend, price, systemFeeRate, botFeeRate decimal.Decimal) (raw, final decimal.Decimal) {
	raw, _ = grossSpend.QuoRem(price, QuantityScale)
	_, final = ApplySequentialFees(raw, systemFeeRate, botFeeRate, QuantityScale)
	return raw, final
}

// AverageCost is the volume-weighted cost basis after acquiring newAmount-oldAmount for notional
func AverageCost(oldAmount, oldAverage, notional, newAmount decimal.Decimal) decimal.Decimal {
	if !newAmount.IsPositive() {
		return decimal.Zero
	}
	return oldAmount.Mul(oldAverage).Add(notional).DivRound(newAmount, CurrencyScale)
}
