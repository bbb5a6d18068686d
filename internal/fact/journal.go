package fact

import (
	"context"
	"fmt"
	"sync"

	"github.com/DataStream-Network/dat_ledger/pkg/logger"
)

// Store persists the journal. Implementations live in internal/storage.
type Store interface {
	// AppendFacts durably appends already-sequenced facts.
	AppendFacts(ctx context.Context, facts []Fact) error
	// FactsFrom returns up to limit facts with seq >= from, in seq order.
	FactsFrom(ctx context.Context, from uint64, limit int) ([]Fact, error)
	// LastFactSeq returns the highest stored seq, zero when empty.
	LastFactSeq(ctx context.Context) (uint64, error)
}

// Handler receives facts as they are appended.
type Handler func(Fact)

// Filter decides whether a subscriber sees a fact.
type Filter func(Fact) bool

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

// Journal is the append-only, strictly ordered fact log. Appends are
// durable before they are observable: the store write happens first, then
// state and subscribers see the fact. Subscribers are notified outside the
// append lock but always in seq order.
type Journal struct {
	store Store
	log   *logger.Logger

	mu        sync.Mutex
	deliverMu sync.Mutex
	nextSeq   uint64
	handlers  []handlerEntry
	nextID    int64
}

// NewJournal opens the journal over an existing store, resuming the
// sequence after the last persisted fact.
func NewJournal(ctx context.Context, store Store, log *logger.Logger) (*Journal, error) {
	if log == nil {
		log = logger.NewDefault("fact-journal")
	}
	last, err := store.LastFactSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume journal: %w", err)
	}
	return &Journal{store: store, log: log, nextSeq: last + 1}, nil
}

// Append sequences, persists, and publishes the facts as one ordered batch.
// On store failure nothing is sequenced and nothing is delivered.
func (j *Journal) Append(ctx context.Context, facts ...Fact) ([]Fact, error) {
	if len(facts) == 0 {
		return nil, nil
	}

	j.mu.Lock()
	for i := range facts {
		facts[i].Seq = j.nextSeq + uint64(i)
	}
	if err := j.store.AppendFacts(ctx, facts); err != nil {
		j.mu.Unlock()
		return nil, fmt.Errorf("append facts: %w", err)
	}
	j.nextSeq += uint64(len(facts))

	handlers := make([]handlerEntry, len(j.handlers))
	copy(handlers, j.handlers)

	// Take the delivery lock before releasing the append lock so
	// concurrent appends deliver in seq order.
	j.deliverMu.Lock()
	j.mu.Unlock()
	defer j.deliverMu.Unlock()

	for _, f := range facts {
		for _, h := range handlers {
			if h.filter == nil || h.filter(f) {
				h.handler(f)
			}
		}
	}
	return facts, nil
}

// Subscribe registers a handler for every fact. The returned function
// unsubscribes.
func (j *Journal) Subscribe(handler Handler) func() {
	return j.SubscribeFiltered(nil, handler)
}

// SubscribeTypes registers a handler for the given fact types only.
func (j *Journal) SubscribeTypes(handler Handler, types ...Type) func() {
	want := make(map[Type]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	return j.SubscribeFiltered(func(f Fact) bool { return want[f.Type] }, handler)
}

// SubscribeFiltered registers a handler behind a filter.
func (j *Journal) SubscribeFiltered(filter Filter, handler Handler) func() {
	j.mu.Lock()
	id := j.nextID
	j.nextID++
	j.handlers = append(j.handlers, handlerEntry{id: id, filter: filter, handler: handler})
	j.mu.Unlock()

	return func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		for i, h := range j.handlers {
			if h.id == id {
				j.handlers = append(j.handlers[:i], j.handlers[i+1:]...)
				return
			}
		}
	}
}

// ReadFrom returns up to limit facts starting at seq from.
func (j *Journal) ReadFrom(ctx context.Context, from uint64, limit int) ([]Fact, error) {
	return j.store.FactsFrom(ctx, from, limit)
}

// LastSeq returns the seq of the most recent fact, zero when empty.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextSeq - 1
}
