package costbasis

import (
	"errors"
	"testing"
	"time"
)

func TestNewLot_Validation(t *testing.T) {
	valid := func() (string, Asset, Quantity, Money, Date) {
		return "alice", btc, Q(1), usd(10), on(time.January, 1)
	}

	for _, tc := range []struct {
		name  string
		corrupt func(owner *string, asset *Asset, amount *Quantity, price *Money, day *Date)
		field string
	}{
		{"empty owner", func(owner *string, _ *Asset, _ *Quantity, _ *Money, _ *Date) { *owner = "" }, "owner"},
		{"empty token", func(_ *string, asset *Asset, _ *Quantity, _ *Money, _ *Date) { asset.Token = "" }, "asset"},
		{"zero amount", func(_ *string, _ *Asset, amount *Quantity, _ *Money, _ *Date) { *amount = Q(0) }, "amount"},
		{"negative amount", func(_ *string, _ *Asset, amount *Quantity, _ *Money, _ *Date) { *amount = Q(-1) }, "amount"},
		{"negative price", func(_ *string, _ *Asset, _ *Quantity, price *Money, _ *Date) { *price = usd(-1) }, "unit_price"},
		{"zero date", func(_ *string, _ *Asset, _ *Quantity, _ *Money, day *Date) { *day = Date{} }, "date"},
	} {
		owner, asset, amount, price, day := valid()
		tc.corrupt(&owner, &asset, &amount, &price, &day)

		_, err := NewLot(owner, asset, amount, price, day, Purchase, "", "")
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: NewLot() error = %v, want ValidationError", tc.name, err)
			continue
		}
		if verr.Field != tc.field {
			t.Errorf("%s: Field = %q, want %q", tc.name, verr.Field, tc.field)
		}
	}
}

func TestNewLot_ZeroPriceAllowed(t *testing.T) {
	// Airdrops and gifts legitimately enter at zero basis.
	l, err := NewLot("alice", btc, Q(1), usd(0), on(time.January, 1), Airdrop, "", "")
	if err != nil {
		t.Fatalf("NewLot(zero price) error = %v", err)
	}
	if !l.CostBasis().IsZero() {
		t.Errorf("CostBasis() = %s, want 0", l.CostBasis().Decimal())
	}
}

func TestLot_Invariants(t *testing.T) {
	l, err := NewLot("alice", btc, Q(5), usd(10), on(time.January, 1), Purchase, "tx-1", "")
	if err != nil {
		t.Fatalf("NewLot() error = %v", err)
	}
	if err := l.CheckInvariants(); err != nil {
		t.Errorf("fresh lot: CheckInvariants() = %v", err)
	}
	if !l.Open() || !l.Untouched() {
		t.Errorf("fresh lot: Open() = %v Untouched() = %v, want both true", l.Open(), l.Untouched())
	}

	l.Remaining = Q(2)
	l.Disposed = Q(3)
	if err := l.CheckInvariants(); err != nil {
		t.Errorf("partially disposed lot: CheckInvariants() = %v", err)
	}
	if l.Untouched() {
		t.Errorf("partially disposed lot still reports Untouched()")
	}
	if want := usd(20); !l.CostBasis().Equal(want) {
		t.Errorf("CostBasis() = %s, want %s", l.CostBasis().Decimal(), want.Decimal())
	}

	l.Disposed = Q(10) // breaks conservation
	if err := l.CheckInvariants(); err == nil {
		t.Errorf("broken conservation passed CheckInvariants()")
	}
}

func TestLot_CloneIsDeep(t *testing.T) {
	l, _ := NewLot("alice", btc, Q(5), usd(10), on(time.January, 1), Purchase, "tx-1", "")
	c := l.Clone()
	c.Remaining = Q(0)
	if !l.Remaining.Equal(Q(5)) {
		t.Errorf("mutating a clone leaked into the original")
	}
}
