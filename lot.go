package costbasis

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// epsilon is the tolerance used when checking conservation of amounts that
// were loaded from an external source. Figures computed in-process are exact.
var epsilon = decimal.New(1, -10)

// Asset identifies a fungible holding: a token on a chain, optionally pinned
// to a wallet.
type Asset struct {
	Token  string `json:"token"`
	Chain  string `json:"chain"`
	Wallet string `json:"wallet,omitempty"`
}

func (a Asset) String() string {
	if a.Chain == "" {
		return a.Token
	}
	return a.Token + "@" + a.Chain
}

// AssetKey is the serialization scope of disposal allocation: all mutating
// allocations for the same (owner, token, chain) are serialized on it.
// Wallet is deliberately not part of the key: lots of the same token on the
// same chain form one pool regardless of wallet.
type AssetKey string

// Key returns the allocation lock key for an owner's asset.
func (a Asset) Key(owner string) AssetKey {
	return AssetKey(owner + "/" + a.Token + "/" + a.Chain)
}

// LocalValue mirrors a USD figure in the owner's reporting currency, together
// with the rate that produced it.
type LocalValue struct {
	Amount     Money           `json:"amount"`
	Rate       decimal.Decimal `json:"rate"`
	RateSource string          `json:"rate_source"`
	RateDate   Date            `json:"rate_date"`
}

// Lot is a discrete acquisition of an asset at a known price and date, with a
// remaining balance that shrinks as it is disposed of.
//
// Invariants, held at all times:
//
//	Remaining >= 0
//	Disposed  >= 0
//	Remaining + Disposed == Original
//	Original  > 0
//	UnitPriceUSD >= 0
type Lot struct {
	ID      uuid.UUID `json:"id"`
	OwnerID string    `json:"owner_id"`
	Asset   Asset     `json:"asset"`

	AcquiredOn Date              `json:"acquired_on"`
	Method     AcquisitionMethod `json:"method"`

	// UnitPriceUSD is the effective per-unit cost basis. The wash-sale
	// detector may raise it on a qualifying repurchase lot.
	UnitPriceUSD Money       `json:"unit_price_usd"`
	LocalPrice   *LocalValue `json:"local_price,omitempty"`

	Original  Quantity `json:"original_amount"`
	Remaining Quantity `json:"remaining_amount"`
	Disposed  Quantity `json:"disposed_amount"`

	// Provenance: the upstream transaction this lot was created from.
	// (OwnerID, SourceTxHash, Asset token+chain) is the idempotency key.
	SourceTxHash  string `json:"source_tx_hash"`
	SourceBatchID string `json:"source_batch_id,omitempty"`

	Manual   bool `json:"manual,omitempty"`
	Verified bool `json:"verified,omitempty"`
}

// NewLot validates inputs and builds a lot with its full amount remaining.
// It does not register the lot anywhere: stores own idempotency.
func NewLot(owner string, asset Asset, amount Quantity, unitPriceUSD Money, on Date, method AcquisitionMethod, txHash, batchID string) (*Lot, error) {
	if owner == "" {
		return nil, &ValidationError{Field: "owner", Reason: "must not be empty"}
	}
	if asset.Token == "" {
		return nil, &ValidationError{Field: "asset", Reason: "token symbol must not be empty"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive, got %s", amount)}
	}
	if unitPriceUSD.IsNegative() {
		return nil, &ValidationError{Field: "unit_price", Reason: fmt.Sprintf("must not be negative, got %s", unitPriceUSD.Decimal())}
	}
	if on.IsZero() {
		return nil, &ValidationError{Field: "date", Reason: "must not be zero"}
	}
	if method == 0 {
		method = UnknownAcquisition
	}
	return &Lot{
		ID:            uuid.New(),
		OwnerID:       owner,
		Asset:         asset,
		AcquiredOn:    on,
		Method:        method,
		UnitPriceUSD:  M(unitPriceUSD.Decimal(), USD),
		Original:      amount,
		Remaining:     amount,
		SourceTxHash:  txHash,
		SourceBatchID: batchID,
	}, nil
}

// Open reports whether the lot still has a remaining balance.
func (l *Lot) Open() bool { return l.Remaining.IsPositive() }

// Untouched reports whether the lot was never disposed against. Only
// untouched lots may be deleted.
func (l *Lot) Untouched() bool { return l.Remaining.Equal(l.Original) }

// CostBasis returns the total effective cost of the remaining balance.
func (l *Lot) CostBasis() Money { return l.UnitPriceUSD.Mul(l.Remaining) }

// CheckInvariants verifies the lot's numerical invariants. A failure means
// the lot was corrupted outside the allocator's discipline.
func (l *Lot) CheckInvariants() error {
	if !l.Original.IsPositive() {
		return fmt.Errorf("lot %s: original amount %s is not positive", l.ID, l.Original)
	}
	if l.Remaining.IsNegative() {
		return fmt.Errorf("lot %s: remaining amount %s is negative", l.ID, l.Remaining)
	}
	if l.Disposed.IsNegative() {
		return fmt.Errorf("lot %s: disposed amount %s is negative", l.ID, l.Disposed)
	}
	if l.UnitPriceUSD.IsNegative() {
		return fmt.Errorf("lot %s: unit price %s is negative", l.ID, l.UnitPriceUSD.Decimal())
	}
	drift := l.Remaining.Add(l.Disposed).Sub(l.Original).Decimal().Abs()
	if drift.GreaterThan(epsilon) {
		return fmt.Errorf("lot %s: remaining %s + disposed %s != original %s",
			l.ID, l.Remaining, l.Disposed, l.Original)
	}
	return nil
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate lots outside an allocation.
func (l *Lot) Clone() *Lot {
	c := *l
	if l.LocalPrice != nil {
		lp := *l.LocalPrice
		c.LocalPrice = &lp
	}
	return &c
}

// Disposal records the consumption of part or all of one lot. It is
// immutable once created.
type Disposal struct {
	ID      uuid.UUID `json:"id"`
	OwnerID string    `json:"owner_id"`
	// LotID is the lot this disposal drew from. It is uuid.Nil on the
	// zero-basis path, where no covering lot existed.
	LotID uuid.UUID `json:"lot_id"`
	Asset Asset     `json:"asset"`

	DisposedOn   Date     `json:"disposed_on"`
	UnitPriceUSD Money    `json:"unit_price_usd"` // sale price per unit
	Amount       Quantity `json:"amount_disposed"`

	CostBasisPerUnit Money `json:"cost_basis_per_unit"`
	TotalCostBasis   Money `json:"total_cost_basis"`
	TotalProceeds    Money `json:"total_proceeds"`
	GainLoss         Money `json:"gain_loss"`

	HoldingDays int  `json:"holding_period_days"`
	LongTerm    bool `json:"long_term"`

	LocalProceeds *LocalValue `json:"local_proceeds,omitempty"`
	LocalBasis    *LocalValue `json:"local_basis,omitempty"`

	TxHash string `json:"tx_hash,omitempty"`
}

// WashSaleViolation records a loss disposal with a qualifying repurchase of
// the same asset inside the wash-sale window. It is immutable once created.
type WashSaleViolation struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         string    `json:"owner_id"`
	DisposalID      uuid.UUID `json:"disposal_id"`
	RepurchaseLotID uuid.UUID `json:"repurchase_lot_id"`
	RepurchasedOn   Date      `json:"repurchased_on"`
	DaysBetween     int       `json:"days_between"`
	DisallowedLoss  Money     `json:"disallowed_loss"`
	// AdjustedCostBasis is the repurchase lot's unit price after the
	// disallowed loss was folded into it.
	AdjustedCostBasis Money `json:"adjusted_cost_basis"`
}
