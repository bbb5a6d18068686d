// Package storage defines the durable stores behind the fact journal and
// the node's submission records. Implementations: memory (tests, local
// development) and postgres.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
)

// ErrNotFound is returned for lookups of records that do not exist.
// Implementations wrap it with detail.
var ErrNotFound = errors.New("not found")

// FactStore persists the append-only fact journal. It must keep facts in
// seq order and never mutate a stored fact.
type FactStore interface {
	AppendFacts(ctx context.Context, facts []fact.Fact) error
	FactsFrom(ctx context.Context, from uint64, limit int) ([]fact.Fact, error)
	LastFactSeq(ctx context.Context) (uint64, error)
}

// SubmissionStore persists the node's submission records.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, rec *submission.Record) error
	UpdateSubmission(ctx context.Context, rec *submission.Record) error
	GetSubmission(ctx context.Context, id string) (*submission.Record, error)
	GetSubmissionByKey(ctx context.Context, idempotencyKey string) (*submission.Record, error)
	ListUnsealedSubmissions(ctx context.Context) ([]*submission.Record, error)
	// LastSealedHeight returns the highest block height any stored
	// submission was sealed at, zero when none were.
	LastSealedHeight(ctx context.Context) (uint64, error)
	// DeleteSealedBefore prunes sealed records older than the cutoff and
	// reports how many were removed.
	DeleteSealedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store is the full persistence surface the daemon wires up.
type Store interface {
	FactStore
	SubmissionStore
	Close() error
}
