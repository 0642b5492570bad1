package sqlitestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	costbasis "github.com/darken51/costbasis"
)

var btc = costbasis.Asset{Token: "BTC", Chain: "bitcoin"}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addLot(t *testing.T, s *Store, owner string, asset costbasis.Asset, amount, price int, day costbasis.Date, txHash string) *costbasis.Lot {
	t.Helper()
	l, err := costbasis.NewLot(owner, asset, costbasis.Q(amount), costbasis.M(price, costbasis.USD), day, costbasis.Purchase, txHash, "")
	require.NoError(t, err)
	stored, created, err := s.AddLot(context.Background(), l)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func TestRoundTrip(t *testing.T) {
	s := openStore(t)
	day := costbasis.NewDate(2025, time.January, 15)
	l := addLot(t, s, "alice", btc, 5, 10000, day, "tx-1")

	got, err := s.Lot(context.Background(), l.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, l.ID, got.ID)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, btc, got.Asset)
	assert.Equal(t, day, got.AcquiredOn)
	assert.Equal(t, costbasis.Purchase, got.Method)
	assert.True(t, got.UnitPriceUSD.Equal(costbasis.M(10000, costbasis.USD)))
	assert.True(t, got.Remaining.Equal(costbasis.Q(5)))
	assert.True(t, got.Untouched())

	missing, err := s.Lot(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAddLot_ReplayReturnsStoredLot(t *testing.T) {
	s := openStore(t)
	day := costbasis.NewDate(2025, time.January, 1)
	first := addLot(t, s, "alice", btc, 5, 10, day, "tx-1")

	replay, err := costbasis.NewLot("alice", btc, costbasis.Q(999), costbasis.M(999, costbasis.USD), day, costbasis.Purchase, "tx-1", "")
	require.NoError(t, err)
	stored, created, err := s.AddLot(context.Background(), replay)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, stored.ID)
	assert.True(t, stored.Original.Equal(costbasis.Q(5)))
}

func TestAvailable(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	newer := addLot(t, s, "alice", btc, 1, 10, costbasis.NewDate(2025, time.February, 1), "tx-2")
	older := addLot(t, s, "alice", btc, 1, 10, costbasis.NewDate(2025, time.January, 1), "tx-1")
	addLot(t, s, "alice", btc, 1, 10, costbasis.NewDate(2025, time.June, 1), "tx-3")
	addLot(t, s, "bob", btc, 1, 10, costbasis.NewDate(2025, time.January, 1), "tx-4")

	lots, err := s.Available(ctx, "alice", btc, costbasis.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, older.ID, lots[0].ID, "oldest lot first")
	assert.Equal(t, newer.ID, lots[1].ID)
}

func TestAcquiredWithin(t *testing.T) {
	s := openStore(t)
	inside := addLot(t, s, "alice", btc, 1, 10, costbasis.NewDate(2025, time.March, 10), "tx-in")
	addLot(t, s, "alice", btc, 1, 10, costbasis.NewDate(2025, time.May, 1), "tx-out")

	lots, err := s.AcquiredWithin(context.Background(), "alice", btc,
		costbasis.NewDate(2025, time.February, 1), costbasis.NewDate(2025, time.April, 1))
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, inside.ID, lots[0].ID)
}

func TestDeleteLot(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	l := addLot(t, s, "alice", btc, 5, 10, costbasis.NewDate(2025, time.January, 1), "tx-1")

	require.NoError(t, s.DeleteLot(ctx, l.ID))
	got, err := s.Lot(ctx, l.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var verr *costbasis.ValidationError
	err = s.DeleteLot(ctx, uuid.New())
	assert.True(t, errors.As(err, &verr))
}

func TestDeleteLot_TouchedLotRefused(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	l := addLot(t, s, "alice", btc, 5, 10, costbasis.NewDate(2025, time.January, 1), "tx-1")

	require.NoError(t, s.Commit(ctx, &costbasis.AllocationBatch{
		Owner: "alice",
		Draws: []costbasis.Draw{{LotID: l.ID, Amount: costbasis.Q(1)}},
	}))

	var verr *costbasis.ValidationError
	err := s.DeleteLot(ctx, l.ID)
	require.True(t, errors.As(err, &verr))

	got, err := s.Lot(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "refused delete must keep the lot")
}

func TestCommit_AllOrNothing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	a := addLot(t, s, "alice", btc, 5, 10, costbasis.NewDate(2025, time.January, 1), "tx-a")
	b := addLot(t, s, "alice", btc, 2, 50, costbasis.NewDate(2025, time.January, 2), "tx-b")

	err := s.Commit(ctx, &costbasis.AllocationBatch{
		Owner: "alice",
		Draws: []costbasis.Draw{
			{LotID: a.ID, Amount: costbasis.Q(3)},
			{LotID: b.ID, Amount: costbasis.Q(7)},
		},
		Disposals: []*costbasis.Disposal{{ID: uuid.New(), OwnerID: "alice", LotID: a.ID, Asset: btc,
			DisposedOn: costbasis.NewDate(2025, time.March, 1), Amount: costbasis.Q(3)}},
	})

	var ierr *costbasis.InsufficientLotError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, b.ID, ierr.LotID)

	// The first draw must have been rolled back with the rest.
	got, err := s.Lot(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Remaining.Equal(costbasis.Q(5)), "remaining = %s", got.Remaining)

	disposals, err := s.Disposals(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, disposals)
}

func TestCommit_PersistsEveryPart(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	a := addLot(t, s, "alice", btc, 5, 100, costbasis.NewDate(2025, time.January, 1), "tx-a")
	rebuy := addLot(t, s, "alice", btc, 1, 80, costbasis.NewDate(2025, time.March, 5), "tx-rebuy")

	d := &costbasis.Disposal{
		ID: uuid.New(), OwnerID: "alice", LotID: a.ID, Asset: btc,
		DisposedOn:   costbasis.NewDate(2025, time.March, 1),
		UnitPriceUSD: costbasis.M(60, costbasis.USD),
		Amount:       costbasis.Q(2),
		GainLoss:     costbasis.M(-80, costbasis.USD),
		HoldingDays:  59,
	}
	v := &costbasis.WashSaleViolation{
		ID: uuid.New(), OwnerID: "alice", DisposalID: d.ID, RepurchaseLotID: rebuy.ID,
		RepurchasedOn: rebuy.AcquiredOn, DaysBetween: 4,
		DisallowedLoss:    costbasis.M(80, costbasis.USD),
		AdjustedCostBasis: costbasis.M(160, costbasis.USD),
	}
	require.NoError(t, s.Commit(ctx, &costbasis.AllocationBatch{
		Owner:       "alice",
		Draws:       []costbasis.Draw{{LotID: a.ID, Amount: costbasis.Q(2)}},
		Disposals:   []*costbasis.Disposal{d},
		Violations:  []*costbasis.WashSaleViolation{v},
		Adjustments: []costbasis.BasisAdjustment{{LotID: rebuy.ID, NewUnitPriceUSD: costbasis.M(160, costbasis.USD)}},
	}))

	got, err := s.Lot(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Remaining.Equal(costbasis.Q(3)))
	assert.True(t, got.Disposed.Equal(costbasis.Q(2)))

	adj, err := s.Lot(ctx, rebuy.ID)
	require.NoError(t, err)
	assert.True(t, adj.UnitPriceUSD.Equal(costbasis.M(160, costbasis.USD)))

	disposals, err := s.Disposals(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, disposals, 1)
	assert.Equal(t, d.ID, disposals[0].ID)
	assert.True(t, disposals[0].GainLoss.Equal(costbasis.M(-80, costbasis.USD)))
	assert.Equal(t, 59, disposals[0].HoldingDays)

	violations, err := s.Violations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, v.ID, violations[0].ID)
	assert.Equal(t, 4, violations[0].DaysBetween)
	assert.True(t, violations[0].DisallowedLoss.Equal(costbasis.M(80, costbasis.USD)))
}

// TestAllocatorEndToEnd runs a full FIFO disposal with wash-sale detection
// against the SQLite store, the same path the CLI takes.
func TestAllocatorEndToEnd(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	addLot(t, s, "alice", btc, 1, 100, costbasis.NewDate(2025, time.January, 1), "tx-1")
	rebuy := addLot(t, s, "alice", btc, 1, 80, costbasis.NewDate(2025, time.March, 11), "tx-rebuy")

	alloc := costbasis.NewAllocator(s)
	result, err := alloc.Dispose(ctx, costbasis.DisposalRequest{
		Owner:        "alice",
		Asset:        btc,
		Amount:       costbasis.Q(1),
		UnitPriceUSD: costbasis.M(60, costbasis.USD),
		On:           costbasis.NewDate(2025, time.March, 1),
		TxHash:       "tx-sell",
	}, costbasis.DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, costbasis.FIFO, result.MethodUsed)
	assert.True(t, result.TotalGainLoss.Equal(costbasis.M(-40, costbasis.USD)))
	require.Len(t, result.Violations, 1)

	adj, err := s.Lot(ctx, rebuy.ID)
	require.NoError(t, err)
	assert.True(t, adj.UnitPriceUSD.Equal(costbasis.M(120, costbasis.USD)),
		"repurchase lot price = %s", adj.UnitPriceUSD.Decimal())

	disposals, err := s.Disposals(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, disposals, 1)
	assert.Equal(t, "tx-sell", disposals[0].TxHash)
}
