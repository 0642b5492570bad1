package costbasis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// lossSetup sells 1 BTC at $60 against a $100 basis on March 1, a $40 loss.
func lossSetup(t *testing.T) LotStore {
	t.Helper()
	store := NewMemoryStore()
	addLot(t, store, "alice", btc, 1, 100, on(time.January, 1), "tx-orig")
	return store
}

func sellAtLoss(t *testing.T, store LotStore, settings Settings) *DisposalResult {
	t.Helper()
	return dispose(t, store, DisposalRequest{
		Owner: "alice", Asset: btc, Amount: Q(1), UnitPriceUSD: usd(60), On: on(time.March, 1),
	}, settings)
}

func TestWashSale_RepurchaseWithinWindow(t *testing.T) {
	store := lossSetup(t)
	repurchase := addLot(t, store, "alice", btc, 1, 80, on(time.March, 11), "tx-rebuy")

	result := sellAtLoss(t, store, DefaultSettings())

	if len(result.Violations) != 1 {
		t.Fatalf("Dispose() recorded %d violations, want 1", len(result.Violations))
	}
	v := result.Violations[0]
	if v.RepurchaseLotID != repurchase.ID {
		t.Errorf("RepurchaseLotID = %s, want %s", v.RepurchaseLotID, repurchase.ID)
	}
	if v.DaysBetween != 10 {
		t.Errorf("DaysBetween = %d, want 10", v.DaysBetween)
	}
	if want := usd(40); !v.DisallowedLoss.Equal(want) {
		t.Errorf("DisallowedLoss = %s, want %s", v.DisallowedLoss.Decimal(), want.Decimal())
	}
	if want := usd(120); !v.AdjustedCostBasis.Equal(want) {
		t.Errorf("AdjustedCostBasis = %s, want %s", v.AdjustedCostBasis.Decimal(), want.Decimal())
	}
	if !HasWarning(result.Warnings, WashSaleAdjusted) {
		t.Errorf("Warnings = %v, want WashSaleAdjusted", result.Warnings)
	}

	// The adjustment is persisted onto the repurchase lot.
	l, err := store.Lot(context.Background(), repurchase.ID)
	if err != nil {
		t.Fatalf("Lot() error = %v", err)
	}
	if want := usd(120); !l.UnitPriceUSD.Equal(want) {
		t.Errorf("repurchase lot unit price = %s, want %s", l.UnitPriceUSD.Decimal(), want.Decimal())
	}
}

func TestWashSale_RepurchaseOutsideWindow(t *testing.T) {
	store := lossSetup(t)
	addLot(t, store, "alice", btc, 1, 80, on(time.April, 10), "tx-rebuy") // T+40

	result := sellAtLoss(t, store, DefaultSettings())

	if len(result.Violations) != 0 {
		t.Errorf("a repurchase 40 days out recorded %d violations, want 0", len(result.Violations))
	}
	if HasWarning(result.Warnings, WashSaleAdjusted) {
		t.Errorf("Warnings = %v, no wash-sale warning expected", result.Warnings)
	}
}

func TestWashSale_LossDateExcluded(t *testing.T) {
	store := lossSetup(t)
	sameDay := addLot(t, store, "alice", btc, 1, 80, on(time.March, 1), "tx-sameday")

	// FIFO draws the older $100 lot; the same-day purchase stays open but
	// must not trigger the rule.
	result := sellAtLoss(t, store, DefaultSettings())

	if len(result.Violations) != 0 {
		t.Fatalf("same-day repurchase recorded %d violations, want 0", len(result.Violations))
	}
	l, _ := store.Lot(context.Background(), sameDay.ID)
	if want := usd(80); !l.UnitPriceUSD.Equal(want) {
		t.Errorf("same-day lot unit price = %s, want untouched %s", l.UnitPriceUSD.Decimal(), want.Decimal())
	}
}

func TestWashSale_Disabled(t *testing.T) {
	store := lossSetup(t)
	addLot(t, store, "alice", btc, 1, 80, on(time.March, 11), "tx-rebuy")

	settings := DefaultSettings()
	settings.WashSaleEnabled = false
	result := sellAtLoss(t, store, settings)

	if len(result.Violations) != 0 {
		t.Errorf("disabled detector recorded %d violations, want 0", len(result.Violations))
	}
}

func TestWashSale_GainNeverQualifies(t *testing.T) {
	store := lossSetup(t)
	addLot(t, store, "alice", btc, 1, 80, on(time.March, 11), "tx-rebuy")

	result := dispose(t, store, DisposalRequest{
		Owner: "alice", Asset: btc, Amount: Q(1), UnitPriceUSD: usd(500), On: on(time.March, 1),
	}, DefaultSettings())

	if len(result.Violations) != 0 {
		t.Errorf("a gain recorded %d violations, want 0", len(result.Violations))
	}
}

func TestWashSale_EveryRepurchaseGetsTheFullLoss(t *testing.T) {
	store := lossSetup(t)
	before := addLot(t, store, "alice", btc, 1, 80, on(time.February, 20), "tx-before") // T-9
	after := addLot(t, store, "alice", btc, 1, 90, on(time.March, 11), "tx-after")      // T+10

	result := sellAtLoss(t, store, DefaultSettings())

	if len(result.Violations) != 2 {
		t.Fatalf("Dispose() recorded %d violations, want 2", len(result.Violations))
	}
	for _, v := range result.Violations {
		if want := usd(40); !v.DisallowedLoss.Equal(want) {
			t.Errorf("lot %s: DisallowedLoss = %s, want the full %s", v.RepurchaseLotID, v.DisallowedLoss.Decimal(), want.Decimal())
		}
	}

	ctx := context.Background()
	for _, tc := range []struct {
		id   uuid.UUID
		want Money
	}{
		{before.ID, usd(120)},
		{after.ID, usd(130)},
	} {
		l, err := store.Lot(ctx, tc.id)
		if err != nil {
			t.Fatalf("Lot() error = %v", err)
		}
		if !l.UnitPriceUSD.Equal(tc.want) {
			t.Errorf("lot %s: unit price = %s, want %s", tc.id, l.UnitPriceUSD.Decimal(), tc.want.Decimal())
		}
	}
}
