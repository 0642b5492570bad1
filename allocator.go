package costbasis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DisposalRequest describes a sale, swap-out or withdrawal to allocate
// against the owner's lots.
type DisposalRequest struct {
	Owner        string
	Asset        Asset
	Amount       Quantity
	UnitPriceUSD Money
	On           Date
	// Method overrides the owner's default allocation method when set.
	Method AllocationMethod
	// LotIDs names the exact lots to consume, in order. Setting it selects
	// specific identification regardless of Method.
	LotIDs []uuid.UUID
	TxHash string
}

// DisposalResult is the committed outcome of one disposal.
type DisposalResult struct {
	TotalCostBasis Money       `json:"total_cost_basis"`
	TotalProceeds  Money       `json:"total_proceeds"`
	TotalGainLoss  Money       `json:"total_gain_loss"`
	Disposals      []*Disposal `json:"disposals"`
	// Violations created by the wash-sale detector as part of this call.
	Violations []*WashSaleViolation `json:"violations,omitempty"`
	MethodUsed AllocationMethod     `json:"method_used"`
	Warnings   []Warning            `json:"warnings,omitempty"`
}

// Allocator turns disposal requests into committed disposal records. The
// lot-selection computation is pure and deterministic over a snapshot of the
// store; the per-asset lock serializes the whole select-then-mutate cycle.
type Allocator struct {
	store LotStore
	rates RateProvider

	lockAttempts int
	lockTimeout  time.Duration
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithRates lets the allocator mirror USD figures into the owner's reporting
// currency. Without it, disposals carry USD figures only.
func WithRates(rp RateProvider) AllocatorOption {
	return func(a *Allocator) { a.rates = rp }
}

// WithLockBudget bounds the retries on the per-asset allocation lock.
func WithLockBudget(attempts int, timeout time.Duration) AllocatorOption {
	return func(a *Allocator) { a.lockAttempts, a.lockTimeout = attempts, timeout }
}

func NewAllocator(store LotStore, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		store:        store,
		lockAttempts: 3,
		lockTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dispose allocates a disposal across the owner's lots using the method from
// the request or, failing that, the settings. It commits all slices plus any
// wash-sale effects atomically: a returned error means nothing was
// persisted.
//
// A shortfall of lots is not an error: the uncovered amount is allocated at
// zero cost basis and the result carries a ZeroBasisAssumed warning.
func (a *Allocator) Dispose(ctx context.Context, req DisposalRequest, settings Settings) (*DisposalResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	method := req.method(settings)

	release, err := a.acquire(ctx, req.Asset.Key(req.Owner))
	if err != nil {
		return nil, err
	}
	defer release()

	candidates, err := a.candidates(ctx, req, method)
	if err != nil {
		return nil, err
	}
	orderLots(candidates, method)

	result := &DisposalResult{MethodUsed: method}
	batch := &AllocationBatch{Owner: req.Owner}

	if method == AverageCost {
		a.allocateAverage(req, settings, candidates, result, batch)
	} else {
		a.allocateGreedy(req, settings, candidates, result, batch)
	}

	a.totals(req, result)

	if settings.WashSaleEnabled {
		if err := a.detectWashSales(ctx, req, settings, result, batch); err != nil {
			return nil, err
		}
	}
	if a.rates != nil {
		a.mirrorLocal(req, settings, result)
	}

	if err := a.store.Commit(ctx, batch); err != nil {
		var insufficient *InsufficientLotError
		if errors.As(err, &insufficient) {
			// Unreachable while the asset lock is held for the whole cycle.
			return nil, fmt.Errorf("allocation aborted, lot store inconsistency: %w", err)
		}
		return nil, err
	}
	return result, nil
}

func (req *DisposalRequest) validate() error {
	if req.Owner == "" {
		return &ValidationError{Field: "owner", Reason: "must not be empty"}
	}
	if req.Asset.Token == "" {
		return &ValidationError{Field: "asset", Reason: "token symbol must not be empty"}
	}
	if !req.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive, got %s", req.Amount)}
	}
	if req.UnitPriceUSD.IsNegative() {
		return &ValidationError{Field: "unit_price", Reason: "must not be negative"}
	}
	if req.On.IsZero() {
		return &ValidationError{Field: "date", Reason: "must not be zero"}
	}
	if req.Method == SpecificID && len(req.LotIDs) == 0 {
		return &ValidationError{Field: "lot_ids", Reason: "specific identification requires explicit lot ids"}
	}
	return nil
}

// method resolves the allocation method: explicit lot IDs force specific
// identification, then the request, then the settings, then FIFO.
func (req *DisposalRequest) method(settings Settings) AllocationMethod {
	if len(req.LotIDs) > 0 {
		return SpecificID
	}
	if req.Method != 0 {
		return req.Method
	}
	if settings.Method != 0 {
		return settings.Method
	}
	return FIFO
}

// acquire takes the per-asset allocation lock with a bounded retry budget.
func (a *Allocator) acquire(ctx context.Context, key AssetKey) (func(), error) {
	locks := a.store.Locks()
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, a.lockTimeout)
		release, err := locks.Acquire(attemptCtx, key)
		cancel()
		if err == nil {
			return release, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= a.lockAttempts {
			return nil, &ConcurrencyConflictError{Key: key, Attempts: attempt}
		}
	}
}

func (a *Allocator) candidates(ctx context.Context, req DisposalRequest, method AllocationMethod) ([]*Lot, error) {
	if method != SpecificID {
		return a.store.Available(ctx, req.Owner, req.Asset, req.On)
	}
	lots := make([]*Lot, 0, len(req.LotIDs))
	for _, id := range req.LotIDs {
		l, err := a.store.Lot(ctx, id)
		if err != nil {
			return nil, err
		}
		if l == nil {
			return nil, &ValidationError{Field: "lot_ids", Reason: "unknown lot id " + id.String()}
		}
		if l.OwnerID != req.Owner || l.Asset.Token != req.Asset.Token || l.Asset.Chain != req.Asset.Chain {
			return nil, &ValidationError{Field: "lot_ids", Reason: "lot " + id.String() + " does not belong to this owner and asset"}
		}
		if l.AcquiredOn.After(req.On) {
			return nil, &ValidationError{Field: "lot_ids", Reason: "lot " + id.String() + " was acquired after the disposal date"}
		}
		if l.Open() {
			lots = append(lots, l)
		}
	}
	return lots, nil
}

// orderLots sorts candidates for the greedy walk. Available() already
// returns date-ascending order with lot-ID tie-breaks, which is FIFO.
func orderLots(lots []*Lot, method AllocationMethod) {
	switch method {
	case LIFO:
		sort.SliceStable(lots, func(i, j int) bool {
			if lots[i].AcquiredOn != lots[j].AcquiredOn {
				return lots[i].AcquiredOn.After(lots[j].AcquiredOn)
			}
			return lots[i].ID.String() < lots[j].ID.String()
		})
	case HIFO:
		sort.SliceStable(lots, func(i, j int) bool {
			if !lots[i].UnitPriceUSD.Equal(lots[j].UnitPriceUSD) {
				return lots[i].UnitPriceUSD.GreaterThan(lots[j].UnitPriceUSD)
			}
			return lots[i].ID.String() < lots[j].ID.String()
		})
	}
}

// allocateGreedy walks the ordered lots taking min(remaining, left) from
// each until the request is satisfied, one disposal per slice. Any amount
// left uncovered goes through the zero-basis path.
func (a *Allocator) allocateGreedy(req DisposalRequest, settings Settings, lots []*Lot, result *DisposalResult, batch *AllocationBatch) {
	left := req.Amount
	for _, l := range lots {
		if !left.IsPositive() {
			break
		}
		slice := l.Remaining.Min(left)
		left = left.Sub(slice)

		batch.Draws = append(batch.Draws, Draw{LotID: l.ID, Amount: slice})
		d := a.newDisposal(req, settings, l, slice, l.UnitPriceUSD)
		result.Disposals = append(result.Disposals, d)
		batch.Disposals = append(batch.Disposals, d)
	}
	if left.IsPositive() {
		a.zeroBasis(req, left, result, batch)
	}
}

// allocateAverage records a single synthetic disposal at the amount-weighted
// average unit price across all available lots. Balances are still drawn
// down oldest-first so that lot conservation holds.
func (a *Allocator) allocateAverage(req DisposalRequest, settings Settings, lots []*Lot, result *DisposalResult, batch *AllocationBatch) {
	var totalQty Quantity
	totalCost := M(0, USD)
	for _, l := range lots {
		totalQty = totalQty.Add(l.Remaining)
		totalCost = totalCost.Add(l.UnitPriceUSD.Mul(l.Remaining))
	}
	if totalQty.IsZero() {
		a.zeroBasis(req, req.Amount, result, batch)
		return
	}
	avg := totalCost.Div(totalQty)

	covered := req.Amount.Min(totalQty)
	left := covered
	var oldest *Lot
	for _, l := range lots {
		if !left.IsPositive() {
			break
		}
		slice := l.Remaining.Min(left)
		left = left.Sub(slice)
		batch.Draws = append(batch.Draws, Draw{LotID: l.ID, Amount: slice})
		if oldest == nil {
			oldest = l
		}
	}
	d := a.newDisposal(req, settings, oldest, covered, avg)
	result.Disposals = append(result.Disposals, d)
	batch.Disposals = append(batch.Disposals, d)

	if shortfall := req.Amount.Sub(covered); shortfall.IsPositive() {
		a.zeroBasis(req, shortfall, result, batch)
	}
}

// zeroBasis allocates an uncovered amount with an assumed zero cost basis.
// The whole proceeds count as gain; the warning makes the overstatement
// observable to the caller.
func (a *Allocator) zeroBasis(req DisposalRequest, amount Quantity, result *DisposalResult, batch *AllocationBatch) {
	d := &Disposal{
		ID:               uuid.New(),
		OwnerID:          req.Owner,
		LotID:            uuid.Nil,
		Asset:            req.Asset,
		DisposedOn:       req.On,
		UnitPriceUSD:     req.UnitPriceUSD,
		Amount:           amount,
		CostBasisPerUnit: M(0, USD),
		TotalCostBasis:   M(0, USD),
		TotalProceeds:    req.UnitPriceUSD.Mul(amount),
		TxHash:           req.TxHash,
	}
	d.GainLoss = d.TotalProceeds
	result.Disposals = append(result.Disposals, d)
	batch.Disposals = append(batch.Disposals, d)
	result.Warnings = append(result.Warnings, warningf(ZeroBasisAssumed,
		"no acquisition lot covers %s %s disposed on %s, cost basis assumed zero",
		amount, req.Asset, req.On))
}

func (a *Allocator) newDisposal(req DisposalRequest, settings Settings, lot *Lot, amount Quantity, basisPerUnit Money) *Disposal {
	threshold := settings.HoldingPeriodDays
	if threshold <= 0 {
		threshold = DefaultSettings().HoldingPeriodDays
	}
	d := &Disposal{
		ID:               uuid.New(),
		OwnerID:          req.Owner,
		LotID:            lot.ID,
		Asset:            req.Asset,
		DisposedOn:       req.On,
		UnitPriceUSD:     req.UnitPriceUSD,
		Amount:           amount,
		CostBasisPerUnit: basisPerUnit,
		TotalCostBasis:   basisPerUnit.Mul(amount),
		TotalProceeds:    req.UnitPriceUSD.Mul(amount),
		HoldingDays:      lot.AcquiredOn.DaysUntil(req.On),
		TxHash:           req.TxHash,
	}
	d.GainLoss = d.TotalProceeds.Sub(d.TotalCostBasis)
	d.LongTerm = d.HoldingDays >= threshold
	return d
}

func (a *Allocator) totals(req DisposalRequest, result *DisposalResult) {
	basis, proceeds := M(0, USD), M(0, USD)
	for _, d := range result.Disposals {
		basis = basis.Add(d.TotalCostBasis)
		proceeds = proceeds.Add(d.TotalProceeds)
	}
	result.TotalCostBasis = basis
	result.TotalProceeds = proceeds
	result.TotalGainLoss = proceeds.Sub(basis)
}

// mirrorLocal attaches reporting-currency mirrors to each disposal. A
// missing rate leaves the mirrors empty and adds a RateUnavailable warning;
// USD figures are unaffected.
func (a *Allocator) mirrorLocal(req DisposalRequest, settings Settings, result *DisposalResult) {
	target := settings.ReportingCurrency
	if target == "" || target == USD {
		return
	}
	rate, source, ok := a.rates.Rate(USD, target, req.On)
	if !ok {
		result.Warnings = append(result.Warnings, warningf(RateUnavailable,
			"no %s/%s rate for %s, local figures omitted", USD, target, req.On))
		return
	}
	for _, d := range result.Disposals {
		d.LocalProceeds = &LocalValue{Amount: d.TotalProceeds.Convert(rate, target), Rate: rate, RateSource: source, RateDate: req.On}
		d.LocalBasis = &LocalValue{Amount: d.TotalCostBasis.Convert(rate, target), Rate: rate, RateSource: source, RateDate: req.On}
	}
}
