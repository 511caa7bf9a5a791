package telemetry

import (
	"context"
	"time"

	"copytrade-ledger-go/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "copytrade-ledger"

// Settlement outcomes
const (
	OutcomeExecuted = "executed"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Instruments holds the ledger's counters. A nil *Instruments records nothing.
type Instruments struct {
	settlements        metric.Int64Counter
	settlementDuration metric.Float64Histogram
	liquidityAlerts    metric.Int64Counter
	dispatched         metric.Int64Counter
	snapshotBatches    metric.Int64Counter
	snapshotEntities   metric.Int64Counter
}

// Default builds instruments on the global meter provider
func Default() *Instruments {
	return NewInstruments(otel.Meter(meterName))
}

func NewInstruments(meter metric.Meter) *Instruments {
	i := &Instruments{}
	i.settlements, _ = meter.Int64Counter("ledger.settlements",
		metric.WithDescription("Settlement attempts by kind, direction and outcome"),
		metric.WithUnit("{settlement}"))
	i.settlementDuration, _ = meter.Float64Histogram("ledger.settlement.duration",
		metric.WithDescription("Settlement latency"),
		metric.WithUnit("ms"))
	i.liquidityAlerts, _ = meter.Int64Counter("ledger.treasury.liquidity_alerts",
		metric.WithDescription("Settlements rejected because the treasury could not cover them"),
		metric.WithUnit("{alert}"))
	i.dispatched, _ = meter.Int64Counter("dispatcher.subscriptions",
		metric.WithDescription("Fan-out results per subscription"),
		metric.WithUnit("{subscription}"))
	i.snapshotBatches, _ = meter.Int64Counter("snapshot.batches",
		metric.WithDescription("Snapshot batches by entity and status"),
		metric.WithUnit("{batch}"))
	i.snapshotEntities, _ = meter.Int64Counter("snapshot.entities",
		metric.WithDescription("Snapshot entities by entity and status"),
		metric.WithUnit("{entity}"))
	return i
}

func (i *Instruments) RecordSettlement(ctx context.Context, kind, direction, outcome string, elapsed time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("direction", direction),
		attribute.String("outcome", outcome),
	)
	i.settlements.Add(ctx, 1, attrs)
	i.settlementDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

func (i *Instruments) RecordLiquidityAlert(ctx context.Context, asset string) {
	if i == nil {
		return
	}
	i.liquidityAlerts.Add(ctx, 1, metric.WithAttributes(attribute.String("asset", asset)))
}

func (i *Instruments) RecordDispatch(ctx context.Context, botId string, result models.DispatchResult) {
	if i == nil {
		return
	}
	for outcome, n := range map[string]int{
		OutcomeExecuted: result.Succeeded,
		OutcomeSkipped:  result.Skipped,
		OutcomeFailed:   result.Failed,
	} {
		if n == 0 {
			continue
		}
		i.dispatched.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("bot_id", botId),
			attribute.String("outcome", outcome),
		))
	}
}

// RecordSnapshotBatch counts one batch of the given entity kind ("subscription" or "wallet")
func (i *Instruments) RecordSnapshotBatch(ctx context.Context, entity string, written, skipped int, failed bool) {
	if i == nil {
		return
	}
	status := "ok"
	if failed {
		status = "failed"
	}
	i.snapshotBatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("status", status),
	))
	if written > 0 {
		i.snapshotEntities.Add(ctx, int64(written), metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("status", status),
		))
	}
	if skipped > 0 {
		i.snapshotEntities.Add(ctx, int64(skipped), metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("status", "skipped"),
		))
	}
}
