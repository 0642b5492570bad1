package costbasis

import (
	"context"
	"testing"
	"time"
)

// usd is a helper for tests to create USD money from a const.
func usd(v float64) Money { return M(v, USD) }

// on is a helper for tests to build a date in 2025.
func on(month time.Month, day int) Date { return NewDate(2025, month, day) }

var btc = Asset{Token: "BTC", Chain: "bitcoin"}

// addLot registers a test lot and fails the test on error.
func addLot(t *testing.T, store LotStore, owner string, asset Asset, amount, price float64, acquired Date, txHash string) *Lot {
	t.Helper()
	lot, err := NewLot(owner, asset, Q(amount), usd(price), acquired, Purchase, txHash, "")
	if err != nil {
		t.Fatalf("NewLot() error = %v", err)
	}
	stored, created, err := store.AddLot(context.Background(), lot)
	if err != nil {
		t.Fatalf("AddLot() error = %v", err)
	}
	if !created {
		t.Fatalf("AddLot() replayed lot %s, want a new one", txHash)
	}
	return stored
}

// dispose runs an allocation and fails the test on error.
func dispose(t *testing.T, store LotStore, req DisposalRequest, settings Settings) *DisposalResult {
	t.Helper()
	result, err := NewAllocator(store).Dispose(context.Background(), req, settings)
	if err != nil {
		t.Fatalf("Dispose() error = %v", err)
	}
	return result
}

// noWashSettings returns default settings with the wash-sale rule off, so
// allocation tests stay focused on lot selection.
func noWashSettings() Settings {
	s := DefaultSettings()
	s.WashSaleEnabled = false
	return s
}
