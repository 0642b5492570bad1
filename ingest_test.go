package costbasis

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newIngester(store LotStore) *Ingester {
	return NewIngester(store, NewAllocator(store), StaticSettings(noWashSettings()), nil)
}

func acquisition(owner, token string, amount, price float64, ts time.Time, txHash string) IngestionEvent {
	return IngestionEvent{
		OwnerID:      owner,
		Token:        token,
		Chain:        "bitcoin",
		Amount:       Q(amount),
		UnitPriceUSD: decimal.NewFromFloat(price),
		Timestamp:    ts,
		Role:         RoleAcquisition,
		Method:       "purchase",
		SourceTxHash: txHash,
	}
}

func TestIngest_Batch(t *testing.T) {
	store := NewMemoryStore()
	in := newIngester(store)
	jan := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

	events := []IngestionEvent{
		acquisition("alice", "BTC", 5, 10, jan, "tx-1"),
		acquisition("alice", "BTC", 5, 50, jan.AddDate(0, 0, 1), "tx-2"),
		{
			OwnerID: "alice", Token: "BTC", Chain: "bitcoin",
			Amount: Q(3), UnitPriceUSD: decimal.NewFromInt(100),
			Timestamp: jan.AddDate(0, 2, 0), Role: RoleDisposal,
			SourceTxHash: "tx-sell",
		},
	}

	report, err := in.Process(context.Background(), events)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Processed != 3 || report.Skipped != 0 {
		t.Errorf("report = %d processed %d skipped, want 3 and 0", report.Processed, report.Skipped)
	}
	if report.LotsCreated != 2 {
		t.Errorf("LotsCreated = %d, want 2", report.LotsCreated)
	}
	if report.Disposals != 1 {
		t.Errorf("Disposals = %d, want 1", report.Disposals)
	}

	disposals, _ := store.Disposals(context.Background(), "alice")
	if len(disposals) != 1 {
		t.Fatalf("store holds %d disposals, want 1", len(disposals))
	}
	if disposals[0].TxHash != "tx-sell" {
		t.Errorf("disposal TxHash = %q, want tx-sell", disposals[0].TxHash)
	}
}

func TestIngest_ReplayCountsAsReplayed(t *testing.T) {
	store := NewMemoryStore()
	in := newIngester(store)
	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	events := []IngestionEvent{acquisition("alice", "BTC", 5, 10, jan, "tx-1")}
	if _, err := in.Process(context.Background(), events); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	report, err := in.Process(context.Background(), events)
	if err != nil {
		t.Fatalf("Process() replay error = %v", err)
	}
	if report.LotsCreated != 0 || report.LotsReplayed != 1 {
		t.Errorf("replay report: created %d replayed %d, want 0 and 1", report.LotsCreated, report.LotsReplayed)
	}

	lots, _ := store.OpenLots(context.Background(), "alice", "BTC", "")
	if len(lots) != 1 {
		t.Errorf("replay left %d lots, want 1", len(lots))
	}
}

func TestIngest_MalformedEventsAreSkippedNotFatal(t *testing.T) {
	store := NewMemoryStore()
	in := newIngester(store)
	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	badAmount := acquisition("alice", "BTC", -1, 10, jan, "tx-bad-amount")
	badMethod := acquisition("alice", "BTC", 1, 10, jan, "tx-bad-method")
	badMethod.Method = "teleport"
	badRole := acquisition("alice", "BTC", 1, 10, jan, "tx-bad-role")
	badRole.Role = "transfer"
	good := acquisition("alice", "BTC", 2, 10, jan, "tx-good")

	report, err := in.Process(context.Background(), []IngestionEvent{badAmount, badMethod, badRole, good})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Skipped != 3 || report.Processed != 1 {
		t.Fatalf("report = %d skipped %d processed, want 3 and 1", report.Skipped, report.Processed)
	}
	if len(report.Skips) != 3 {
		t.Fatalf("Skips = %v, want 3 entries", report.Skips)
	}
	for i, wantIndex := range []int{0, 1, 2} {
		if report.Skips[i].Index != wantIndex {
			t.Errorf("Skips[%d].Index = %d, want %d", i, report.Skips[i].Index, wantIndex)
		}
	}

	lots, _ := store.OpenLots(context.Background(), "alice", "", "")
	if len(lots) != 1 {
		t.Errorf("store holds %d lots, want only the good one", len(lots))
	}
}

func TestIngest_DisposalWarningsSurface(t *testing.T) {
	store := NewMemoryStore()
	in := newIngester(store)
	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	// Uncovered disposal: zero basis assumed, not an error.
	report, err := in.Process(context.Background(), []IngestionEvent{{
		OwnerID: "alice", Token: "ETH", Chain: "ethereum",
		Amount: Q(2), UnitPriceUSD: decimal.NewFromInt(3000),
		Timestamp: jan, Role: RoleDisposal, SourceTxHash: "tx-sell",
	}})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.Skipped != 0 {
		t.Fatalf("uncovered disposal was skipped: %v", report.Skips)
	}
	if !HasWarning(report.Warnings, ZeroBasisAssumed) {
		t.Errorf("Warnings = %v, want ZeroBasisAssumed", report.Warnings)
	}
}

func TestIngest_CancelledContextAborts(t *testing.T) {
	store := NewMemoryStore()
	in := newIngester(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err := in.Process(ctx, []IngestionEvent{acquisition("alice", "BTC", 1, 10, jan, "tx-1")})
	if err == nil {
		t.Fatalf("Process() with cancelled context returned nil error")
	}
}
