package formance

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetWalletBalances returns the mirrored balance of a wallet per asset symbol.
// Only settlements are mirrored, so CASH is the net trade flow rather than the
// wallet balance. A wallet that never traded has no account and yields an empty map.
func (s *Service) GetWalletBalances(ctx context.Context, walletId string) (map[string]decimal.Decimal, error) {
	addr := walletAccount(walletId)

	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: addr,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return map[string]decimal.Decimal{}, nil
		}
		return nil, fmt.Errorf("failed to get account %s: %w", addr, err)
	}
	zap.L().Debug("Mirrored account loaded",
		zap.String("address", addr),
		zap.Int("assets", len(resp.V2AccountResponse.Data.Volumes)))

	balances := make(map[string]decimal.Decimal)
	for fAsset, vol := range resp.V2AccountResponse.Data.Volumes {
		bal := volumeBalance(vol)
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		symbol := assetSymbol(fAsset)
		balances[symbol] = bigIntToDecimal(bal, symbol)
	}
	return balances, nil
}

// volumeBalance is input - output when the server omits the balance
func volumeBalance(vol shared.V2Volume) *big.Int {
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts smallest units back to a decimal amount
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}

// assetSymbol strips the precision suffix from an asset such as "BTC/8"
func assetSymbol(fAsset string) string {
	symbol, _, _ := strings.Cut(fAsset, "/")
	return symbol
}
