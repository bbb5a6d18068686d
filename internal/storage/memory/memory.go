// Package memory implements the storage interfaces in process memory. It is
// safe for concurrent use and is the store behind tests and local
// development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces.
type Store struct {
	mu               sync.RWMutex
	facts            []fact.Fact
	submissions      map[string]*submission.Record
	submissionsByKey map[string]string
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		submissions:      make(map[string]*submission.Record),
		submissionsByKey: make(map[string]string),
	}
}

// FactStore implementation ----------------------------------------------------

func (s *Store) AppendFacts(_ context.Context, facts []fact.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := uint64(0)
	if len(s.facts) > 0 {
		last = s.facts[len(s.facts)-1].Seq
	}
	for _, f := range facts {
		if f.Seq != last+1 {
			return fmt.Errorf("fact seq %d does not extend journal at %d", f.Seq, last)
		}
		last = f.Seq
	}
	s.facts = append(s.facts, facts...)
	return nil
}

func (s *Store) FactsFrom(_ context.Context, from uint64, limit int) ([]fact.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Seqs are dense and start at 1, so the slice offset is direct.
	if from < 1 {
		from = 1
	}
	if from > uint64(len(s.facts)) {
		return nil, nil
	}
	out := s.facts[from-1:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	result := make([]fact.Fact, len(out))
	copy(result, out)
	return result, nil
}

func (s *Store) LastFactSeq(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.facts) == 0 {
		return 0, nil
	}
	return s.facts[len(s.facts)-1].Seq, nil
}

// SubmissionStore implementation ----------------------------------------------

func (s *Store) CreateSubmission(_ context.Context, rec *submission.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.submissions[rec.ID]; exists {
		return fmt.Errorf("submission %s already exists", rec.ID)
	}
	if existing, exists := s.submissionsByKey[rec.IdempotencyKey]; exists {
		return fmt.Errorf("idempotency key %s already used by submission %s", rec.IdempotencyKey, existing)
	}
	s.submissions[rec.ID] = rec.Clone()
	s.submissionsByKey[rec.IdempotencyKey] = rec.ID
	return nil
}

func (s *Store) UpdateSubmission(_ context.Context, rec *submission.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.submissions[rec.ID]; !ok {
		return fmt.Errorf("submission %s: %w", rec.ID, storage.ErrNotFound)
	}
	s.submissions[rec.ID] = rec.Clone()
	return nil
}

func (s *Store) GetSubmission(_ context.Context, id string) (*submission.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", id, storage.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *Store) GetSubmissionByKey(_ context.Context, idempotencyKey string) (*submission.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.submissionsByKey[idempotencyKey]
	if !ok {
		return nil, fmt.Errorf("idempotency key %s: %w", idempotencyKey, storage.ErrNotFound)
	}
	return s.submissions[id].Clone(), nil
}

func (s *Store) ListUnsealedSubmissions(context.Context) ([]*submission.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*submission.Record
	for _, rec := range s.submissions {
		if rec.Status != submission.StatusSealed {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *Store) LastSealedHeight(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max uint64
	for _, rec := range s.submissions {
		if rec.Status == submission.StatusSealed && rec.Height > max {
			max = rec.Height
		}
	}
	return max, nil
}

func (s *Store) DeleteSealedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.submissions {
		if rec.Status == submission.StatusSealed && rec.SealedAt.Before(cutoff) {
			delete(s.submissions, id)
			delete(s.submissionsByKey, rec.IdempotencyKey)
			removed++
		}
	}
	return removed, nil
}

// Close releases nothing; it exists to satisfy storage.Store.
func (s *Store) Close() error { return nil }
