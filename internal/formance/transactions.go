package formance

import (
	"context"
	"fmt"
	"strings"

	"copytrade-ledger-go/internal/ledger"
	"copytrade-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// settlementScript renders one send per leg. Every source may overdraw: the
// mirror only sees settlements, not the funding that preceded them.
func settlementScript(legs int) string {
	var b strings.Builder
	b.WriteString("vars {\n")
	for i := 0; i < legs; i++ {
		fmt.Fprintf(&b, "  asset $asset_%d\n  number $amount_%d\n  account $source_%d\n  account $destination_%d\n", i, i, i, i)
	}
	b.WriteString("  string $settlement_source\n  string $signal_id\n  string $bot_id\n}\n")

	for i := 0; i < legs; i++ {
		fmt.Fprintf(&b, "\nsend [$asset_%d $amount_%d] (\n  source = $source_%d allowing unbounded overdraft\n  destination = $destination_%d\n)\n", i, i, i, i)
	}

	b.WriteString(`
set_tx_meta("event_type", "settlement")
set_tx_meta("settlement_source", $settlement_source)
set_tx_meta("signal_id", $signal_id)
set_tx_meta("bot_id", $bot_id)
`)
	return b.String()
}

// settlementPosting builds the Formance transaction for one settlement.
// symbols maps coin ids to their symbols.
func settlementPosting(reference string, transfers []ledger.Transfer, symbols map[string]string, sc *models.SettlementContext) (shared.V2PostTransaction, error) {
	vars := map[string]string{
		"settlement_source": "manual",
		"signal_id":         "none",
		"bot_id":            "none",
	}

	for i, t := range transfers {
		symbol := t.Asset
		if symbol != ledger.CashAsset {
			s, ok := symbols[t.Asset]
			if !ok {
				return shared.V2PostTransaction{}, fmt.Errorf("no symbol for coin %s", t.Asset)
			}
			symbol = s
		}
		vars[fmt.Sprintf("asset_%d", i)] = formanceAsset(symbol)
		vars[fmt.Sprintf("amount_%d", i)] = t.Amount.Shift(int32(precisionFor(symbol))).BigInt().String()
		vars[fmt.Sprintf("source_%d", i)] = walletAccount(t.From)
		vars[fmt.Sprintf("destination_%d", i)] = walletAccount(t.To)
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(reference),
		Script: &shared.V2PostTransactionScript{
			Plain: settlementScript(len(transfers)),
			Vars:  vars,
		},
	}

	if sc != nil {
		if sc.Source != "" {
			vars["settlement_source"] = sc.Source
		}
		if sc.SignalId != "" {
			vars["signal_id"] = sc.SignalId
		}
		if sc.BotId != "" {
			vars["bot_id"] = sc.BotId
		}
		if !sc.SignalTime.IsZero() {
			ts := sc.SignalTime
			postTx.Timestamp = &ts
		}
	}
	return postTx, nil
}

// RecordSettlement posts the legs of a committed settlement. A reference the
// ledger has already seen is treated as success.
func (s *Service) RecordSettlement(ctx context.Context, reference string, transfers []ledger.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	var coinIds []string
	for _, t := range transfers {
		if t.Asset != ledger.CashAsset {
			coinIds = append(coinIds, t.Asset)
		}
	}
	symbols := make(map[string]string, len(coinIds))
	if len(coinIds) > 0 {
		coins, err := s.coins.GetCoinsByIds(ctx, coinIds)
		if err != nil {
			return fmt.Errorf("failed to resolve coins for %s: %w", reference, err)
		}
		for id, c := range coins {
			symbols[id] = c.Symbol
		}
	}

	postTx, err := settlementPosting(reference, transfers, symbols, models.GetSettlementContext(ctx))
	if err != nil {
		return err
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error recording settlement %s: %w", reference, err)
	}

	zap.L().Info("Settlement recorded in Formance",
		zap.String("reference", reference),
		zap.Int("legs", len(transfers)))
	return nil
}
