package costbasis

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory LotStore. It is safe for concurrent use and
// is the reference implementation the sqlite store mirrors.
type MemoryStore struct {
	mu       sync.RWMutex
	lots     map[uuid.UUID]*Lot
	bySource map[string]uuid.UUID
	// disposals and violations are append-only, keyed by owner.
	disposals  map[string][]*Disposal
	violations map[string][]*WashSaleViolation

	locks *KeyedLock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lots:       make(map[uuid.UUID]*Lot),
		bySource:   make(map[string]uuid.UUID),
		disposals:  make(map[string][]*Disposal),
		violations: make(map[string][]*WashSaleViolation),
		locks:      NewKeyedLock(),
	}
}

func (s *MemoryStore) Locks() *KeyedLock { return s.locks }

func (s *MemoryStore) AddLot(_ context.Context, lot *Lot) (*Lot, bool, error) {
	if err := lot.CheckInvariants(); err != nil {
		return nil, false, &ValidationError{Field: "lot", Reason: err.Error()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if lot.SourceTxHash != "" {
		key := sourceKey(lot.OwnerID, lot.SourceTxHash, lot.Asset.Token, lot.Asset.Chain)
		if id, ok := s.bySource[key]; ok {
			// Replayed ingestion: same provenance, same asset. Return the
			// existing lot unchanged.
			return s.lots[id].Clone(), false, nil
		}
		s.bySource[key] = lot.ID
	}
	s.lots[lot.ID] = lot.Clone()
	return lot.Clone(), true, nil
}

func (s *MemoryStore) Lot(_ context.Context, id uuid.UUID) (*Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lots[id]
	if !ok {
		return nil, nil
	}
	return l.Clone(), nil
}

func (s *MemoryStore) Available(_ context.Context, owner string, asset Asset, asOf Date) ([]*Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Lot
	for _, l := range s.lots {
		if l.OwnerID != owner || l.Asset.Token != asset.Token || l.Asset.Chain != asset.Chain {
			continue
		}
		if !l.Open() || l.AcquiredOn.After(asOf) {
			continue
		}
		out = append(out, l.Clone())
	}
	sortLotsByDate(out)
	return out, nil
}

func (s *MemoryStore) AcquiredWithin(_ context.Context, owner string, asset Asset, from, to Date) ([]*Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Lot
	for _, l := range s.lots {
		if l.OwnerID != owner || l.Asset.Token != asset.Token || l.Asset.Chain != asset.Chain {
			continue
		}
		if l.AcquiredOn.Before(from) || l.AcquiredOn.After(to) {
			continue
		}
		out = append(out, l.Clone())
	}
	sortLotsByDate(out)
	return out, nil
}

func (s *MemoryStore) OpenLots(_ context.Context, owner, token, chain string) ([]*Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Lot
	for _, l := range s.lots {
		if l.OwnerID != owner || !l.Open() {
			continue
		}
		if token != "" && l.Asset.Token != token {
			continue
		}
		if chain != "" && l.Asset.Chain != chain {
			continue
		}
		out = append(out, l.Clone())
	}
	sortLotsByDate(out)
	return out, nil
}

func (s *MemoryStore) DeleteLot(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return &ValidationError{Field: "lot", Reason: "unknown lot id " + id.String()}
	}
	if !l.Untouched() {
		return &ValidationError{Field: "lot", Reason: "lot has disposals and cannot be deleted"}
	}
	delete(s.lots, id)
	if l.SourceTxHash != "" {
		delete(s.bySource, sourceKey(l.OwnerID, l.SourceTxHash, l.Asset.Token, l.Asset.Chain))
	}
	return nil
}

func (s *MemoryStore) Commit(_ context.Context, batch *AllocationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before mutating anything: a batch either commits
	// in full or leaves the store untouched.
	for _, d := range batch.Draws {
		l, ok := s.lots[d.LotID]
		if !ok {
			return &ValidationError{Field: "draw", Reason: "unknown lot id " + d.LotID.String()}
		}
		if d.Amount.GreaterThan(l.Remaining) {
			return &InsufficientLotError{LotID: d.LotID, Requested: d.Amount, Remaining: l.Remaining}
		}
	}
	for _, a := range batch.Adjustments {
		if _, ok := s.lots[a.LotID]; !ok {
			return &ValidationError{Field: "adjustment", Reason: "unknown lot id " + a.LotID.String()}
		}
	}

	for _, d := range batch.Draws {
		l := s.lots[d.LotID]
		l.Remaining = l.Remaining.Sub(d.Amount)
		l.Disposed = l.Disposed.Add(d.Amount)
	}
	for _, a := range batch.Adjustments {
		s.lots[a.LotID].UnitPriceUSD = a.NewUnitPriceUSD
	}
	s.disposals[batch.Owner] = append(s.disposals[batch.Owner], batch.Disposals...)
	s.violations[batch.Owner] = append(s.violations[batch.Owner], batch.Violations...)
	return nil
}

func (s *MemoryStore) Disposals(_ context.Context, owner string) ([]*Disposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Disposal, len(s.disposals[owner]))
	copy(out, s.disposals[owner])
	return out, nil
}

func (s *MemoryStore) Violations(_ context.Context, owner string) ([]*WashSaleViolation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*WashSaleViolation, len(s.violations[owner]))
	copy(out, s.violations[owner])
	return out, nil
}

// sortLotsByDate orders lots by acquisition date, ties broken by lot ID so
// that every ordering derived from it is deterministic.
func sortLotsByDate(lots []*Lot) {
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].AcquiredOn != lots[j].AcquiredOn {
			return lots[i].AcquiredOn.Before(lots[j].AcquiredOn)
		}
		return lots[i].ID.String() < lots[j].ID.String()
	})
}

var _ LotStore = (*MemoryStore)(nil)
