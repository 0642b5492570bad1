package costbasis

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// detectWashSales post-processes the loss disposals of an allocation against
// nearby repurchases of the same asset.
//
// For every qualifying repurchase lot, one WashSaleViolation is recorded
// with the full magnitude of the loss, and the lot's effective unit price is
// raised by that same absolute amount, deferring recognition of the loss
// into the lot's future disposals. The raw loss is added onto the unit price
// without prorating by quantity, matching the historical behavior of this
// ledger.
func (a *Allocator) detectWashSales(ctx context.Context, req DisposalRequest, settings Settings, result *DisposalResult, batch *AllocationBatch) error {
	window := settings.WashSaleWindow
	if window <= 0 {
		window = DefaultSettings().WashSaleWindow
	}

	// A lot can absorb several losses within one allocation; adjustments
	// compound on the already-adjusted price.
	adjusted := make(map[uuid.UUID]Money)

	for _, d := range result.Disposals {
		if !d.GainLoss.IsNegative() {
			continue
		}
		lots, err := a.store.AcquiredWithin(ctx, req.Owner, req.Asset, d.DisposedOn.Add(-window), d.DisposedOn.Add(window))
		if err != nil {
			return err
		}
		disallowed := d.GainLoss.Abs()
		for _, l := range lots {
			// The loss date itself is excluded from the window.
			if l.AcquiredOn == d.DisposedOn {
				continue
			}
			price, ok := adjusted[l.ID]
			if !ok {
				price = l.UnitPriceUSD
			}
			newPrice := price.Add(disallowed)
			adjusted[l.ID] = newPrice

			days := d.DisposedOn.DaysUntil(l.AcquiredOn)
			if days < 0 {
				days = -days
			}
			v := &WashSaleViolation{
				ID:                uuid.New(),
				OwnerID:           req.Owner,
				DisposalID:        d.ID,
				RepurchaseLotID:   l.ID,
				RepurchasedOn:     l.AcquiredOn,
				DaysBetween:       days,
				DisallowedLoss:    disallowed,
				AdjustedCostBasis: newPrice,
			}
			result.Violations = append(result.Violations, v)
			batch.Violations = append(batch.Violations, v)
		}
	}

	if len(result.Violations) > 0 {
		ids := make([]uuid.UUID, 0, len(adjusted))
		for id := range adjusted {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		for _, id := range ids {
			batch.Adjustments = append(batch.Adjustments, BasisAdjustment{LotID: id, NewUnitPriceUSD: adjusted[id]})
		}
		result.Warnings = append(result.Warnings, warningf(WashSaleAdjusted,
			"loss on %s %s deferred into %d repurchase lot(s)", req.Asset, req.On, len(adjusted)))
	}
	return nil
}
