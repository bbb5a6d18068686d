package ledger

import (
	"math"
	"sync"

	"github.com/DataStream-Network/dat_ledger/internal/domain/asset"
)

// registry is the in-memory asset book. Validation happens in the Ledger
// before a fact is journalled; the apply methods here run after the journal
// write and are the only mutation paths, so they must not fail on any state
// a validated fact can describe.
type registry struct {
	mu        sync.RWMutex
	assets    map[uint64]*asset.Record
	byContent map[string]uint64
	nextID    uint64

	totalQueries uint64
	totalVolume  uint64
}

func newRegistry() *registry {
	return &registry{
		assets:    make(map[uint64]*asset.Record),
		byContent: make(map[string]uint64),
		nextID:    1,
	}
}

// get returns a copy of the record.
func (r *registry) get(id uint64) (*asset.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.assets[id]
	if !ok {
		return nil, Errorf(CodeNotFound, "asset %d not found", id)
	}
	return rec.Clone(), nil
}

func (r *registry) hasContent(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byContent[ref]
	return ok
}

// peekNextID returns the id the next insert will take, without consuming
// it. Creates are serialized by the Ledger, so the peeked id is stable
// until the corresponding insert.
func (r *registry) peekNextID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

// insert adds a record and advances the id sequence past it.
func (r *registry) insert(rec *asset.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[rec.ID]; exists {
		return Errorf(CodeInvalidArgument, "asset id %d already exists", rec.ID)
	}
	if _, exists := r.byContent[rec.ContentRef]; exists {
		return Errorf(CodeDuplicateContent, "content reference %q already registered", rec.ContentRef)
	}
	r.assets[rec.ID] = rec.Clone()
	r.byContent[rec.ContentRef] = rec.ID
	if rec.ID >= r.nextID {
		r.nextID = rec.ID + 1
	}
	return nil
}

func (r *registry) applyPriceUpdate(id, newPrice uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.assets[id]
	if !ok {
		return Errorf(CodeNotFound, "asset %d not found", id)
	}
	rec.QueryPrice = newPrice
	return nil
}

func (r *registry) applyActive(id uint64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.assets[id]
	if !ok {
		return Errorf(CodeNotFound, "asset %d not found", id)
	}
	rec.Active = active
	return nil
}

func (r *registry) applyTransfer(id uint64, newCreator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.assets[id]
	if !ok {
		return Errorf(CodeNotFound, "asset %d not found", id)
	}
	rec.Creator = newCreator
	return nil
}

// applySettlement advances the per-asset counters and the aggregate
// volume. Overflow was rejected during validation.
func (r *registry) applySettlement(id, creatorShare, amountPaid uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.assets[id]
	if !ok {
		return Errorf(CodeNotFound, "asset %d not found", id)
	}
	rec.TotalQueries++
	rec.TotalEarned += creatorShare
	r.totalQueries++
	r.totalVolume += amountPaid
	return nil
}

// checkSettlementCounters rejects settlements whose counter updates would
// wrap. Called during validation, before anything is journalled.
func (r *registry) checkSettlementCounters(id, creatorShare, amountPaid uint64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.assets[id]
	if !ok {
		return Errorf(CodeNotFound, "asset %d not found", id)
	}
	if rec.TotalQueries == math.MaxUint64 {
		return Errorf(CodeOverflow, "query counter for asset %d would overflow", id)
	}
	if rec.TotalEarned > math.MaxUint64-creatorShare {
		return Errorf(CodeOverflow, "earnings counter for asset %d would overflow", id)
	}
	if r.totalVolume > math.MaxUint64-amountPaid {
		return Errorf(CodeOverflow, "aggregate volume would overflow")
	}
	return nil
}

func (r *registry) stats() asset.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return asset.Stats{
		TotalAssets:  uint64(len(r.assets)),
		TotalQueries: r.totalQueries,
		TotalVolume:  r.totalVolume,
	}
}
