package costbasis

import (
	"context"

	"github.com/google/uuid"
)

// Draw is one slice of an allocation: an amount taken from a single lot.
type Draw struct {
	LotID  uuid.UUID
	Amount Quantity
}

// BasisAdjustment raises a repurchase lot's effective unit price as the
// wash-sale rule defers a disallowed loss into it.
type BasisAdjustment struct {
	LotID           uuid.UUID
	NewUnitPriceUSD Money
}

// AllocationBatch is the complete outcome of one disposal allocation. A
// store applies it atomically: every draw, disposal record, violation and
// basis adjustment commits together, or nothing does.
type AllocationBatch struct {
	Owner       string
	Draws       []Draw
	Disposals   []*Disposal
	Violations  []*WashSaleViolation
	Adjustments []BasisAdjustment
}

// LotStore owns the set of acquisition lots and their mutable balances, plus
// the immutable disposal and wash-sale records derived from them.
//
// Reads hand out copies; the only way to mutate a lot is AddLot (creation),
// Commit (allocation) and DeleteLot (untouched lots only). Implementations
// must make Commit all-or-nothing.
type LotStore interface {
	// AddLot registers a lot. It is idempotent on the lot's
	// (owner, source tx hash, token, chain): replaying the same acquisition
	// returns the existing lot unchanged and created == false.
	AddLot(ctx context.Context, lot *Lot) (stored *Lot, created bool, err error)

	// Lot returns the lot with the given id, or a nil lot when unknown.
	Lot(ctx context.Context, id uuid.UUID) (*Lot, error)

	// Available returns the owner's lots of the asset with a remaining
	// balance, acquired on or before asOf, ordered by acquisition date then
	// lot ID for determinism.
	Available(ctx context.Context, owner string, asset Asset, asOf Date) ([]*Lot, error)

	// AcquiredWithin returns the owner's lots of the asset acquired inside
	// [from, to], exhausted lots included. The wash-sale detector scans with
	// it.
	AcquiredWithin(ctx context.Context, owner string, asset Asset, from, to Date) ([]*Lot, error)

	// OpenLots returns the owner's open lots, optionally filtered by token
	// and/or chain.
	OpenLots(ctx context.Context, owner, token, chain string) ([]*Lot, error)

	// DeleteLot removes a lot that was never disposed against. Deleting a
	// touched lot is a ValidationError.
	DeleteLot(ctx context.Context, id uuid.UUID) error

	// Commit applies an allocation batch atomically. A draw exceeding a
	// lot's remaining balance aborts the whole batch with
	// InsufficientLotError.
	Commit(ctx context.Context, batch *AllocationBatch) error

	// Disposals lists an owner's disposal records in creation order.
	Disposals(ctx context.Context, owner string) ([]*Disposal, error)

	// Violations lists an owner's wash-sale violations in creation order.
	Violations(ctx context.Context, owner string) ([]*WashSaleViolation, error)

	// Locks returns the per-asset allocation lock. Callers of Commit must
	// hold the lock of the batch's asset key for the whole
	// select-then-mutate cycle.
	Locks() *KeyedLock
}

// sourceKey is the idempotency key of lot creation.
func sourceKey(owner, txHash, token, chain string) string {
	return owner + "|" + txHash + "|" + token + "|" + chain
}
