// Package node is the execution substrate behind the submission protocol.
// It takes signed envelopes in, deduplicates them by idempotency key, seals
// the queue into numbered blocks on a fixed interval, executes each block
// against the ledger, and answers confirmation-depth queries about any
// submission it has seen.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/ledger"
	"github.com/DataStream-Network/dat_ledger/internal/storage"
	"github.com/DataStream-Network/dat_ledger/pkg/logger"
)

// Config tunes intake, sealing, and retention.
type Config struct {
	// BlockInterval is the sealing cadence. Blocks are sealed on every
	// tick, empty or not, so confirmation depth keeps growing.
	BlockInterval time.Duration
	// MaxBlockSubmissions caps how many submissions one block drains.
	MaxBlockSubmissions int
	// IntakeRate and IntakeBurst bound envelope intake per second.
	IntakeRate  float64
	IntakeBurst int
	// Retention bounds how long resolved submission records are kept.
	// Zero disables pruning.
	Retention time.Duration
	// RetentionSchedule is the cron spec (with seconds) for the prune job.
	RetentionSchedule string
}

func (c *Config) setDefaults() {
	if c.BlockInterval <= 0 {
		c.BlockInterval = 500 * time.Millisecond
	}
	if c.MaxBlockSubmissions <= 0 {
		c.MaxBlockSubmissions = 256
	}
	if c.IntakeRate <= 0 {
		c.IntakeRate = 200
	}
	if c.IntakeBurst <= 0 {
		c.IntakeBurst = 400
	}
	if c.RetentionSchedule == "" {
		c.RetentionSchedule = "0 */10 * * * *"
	}
}

// Node drives the ledger from a durable submission queue.
type Node struct {
	cfg     Config
	led     *ledger.Ledger
	journal *fact.Journal
	store   storage.SubmissionStore
	log     *logger.Logger

	limiter *rate.Limiter
	cron    *cron.Cron
	height  atomic.Uint64

	mu    sync.Mutex
	queue []*submission.Record

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New wires a node over its ledger, journal, and submission store.
func New(cfg Config, led *ledger.Ledger, journal *fact.Journal, store storage.SubmissionStore, log *logger.Logger) (*Node, error) {
	if led == nil || journal == nil || store == nil {
		return nil, errors.New("node requires a ledger, a journal, and a submission store")
	}
	if log == nil {
		log = logger.NewDefault("node")
	}
	cfg.setDefaults()

	return &Node{
		cfg:     cfg,
		led:     led,
		journal: journal,
		store:   store,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.IntakeRate), cfg.IntakeBurst),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Name implements system.Service.
func (n *Node) Name() string { return "ledger-node" }

// Start resumes the block height, re-queues submissions that were accepted
// but never sealed, and launches the sealer and the retention job.
func (n *Node) Start(ctx context.Context) error {
	last, err := n.store.LastSealedHeight(ctx)
	if err != nil {
		return fmt.Errorf("resume block height: %w", err)
	}
	n.height.Store(last)

	unsealed, err := n.store.ListUnsealedSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("load unsealed submissions: %w", err)
	}
	n.mu.Lock()
	n.queue = append(n.queue, unsealed...)
	n.mu.Unlock()
	if len(unsealed) > 0 {
		n.log.WithField("count", len(unsealed)).Info("re-queued unsealed submissions")
	}

	if n.cfg.Retention > 0 {
		n.cron = cron.New(cron.WithSeconds())
		if _, err := n.cron.AddFunc(n.cfg.RetentionSchedule, n.pruneResolved); err != nil {
			return fmt.Errorf("schedule retention job: %w", err)
		}
		n.cron.Start()
	}

	go n.run()
	n.log.WithField("height", last).WithField("interval", n.cfg.BlockInterval).Info("node started")
	return nil
}

// Stop halts sealing after the in-flight block completes.
func (n *Node) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() { close(n.stop) })
	if n.cron != nil {
		n.cron.Stop()
	}
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Height returns the most recently sealed block height.
func (n *Node) Height() uint64 {
	return n.height.Load()
}

// Submit runs intake on one envelope and returns the submission id. A
// duplicate idempotency key returns the original submission's id without a
// second execution.
func (n *Node) Submit(ctx context.Context, env Envelope) (string, error) {
	if !n.limiter.Allow() {
		return "", ledger.ErrRateLimited
	}

	principal, err := env.verify()
	if err != nil {
		return "", err
	}

	if existing, err := n.store.GetSubmissionByKey(ctx, env.IdempotencyKey); err == nil {
		n.log.WithField("submission", existing.ID).
			WithField("idempotency_key", env.IdempotencyKey).
			Debug("duplicate submission folded into original")
		return existing.ID, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("dedup lookup: %w", err)
	}

	rec := &submission.Record{
		ID:             uuid.New().String(),
		IdempotencyKey: env.IdempotencyKey,
		Operation:      env.Operation,
		Args:           append([]byte(nil), env.Args...),
		Principal:      principal,
		Status:         submission.StatusSubmitted,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := n.store.CreateSubmission(ctx, rec); err != nil {
		// A concurrent submission with the same key may have won the race.
		if existing, lookupErr := n.store.GetSubmissionByKey(ctx, env.IdempotencyKey); lookupErr == nil {
			return existing.ID, nil
		}
		return "", fmt.Errorf("persist submission: %w", err)
	}

	n.mu.Lock()
	n.queue = append(n.queue, rec.Clone())
	n.mu.Unlock()
	return rec.ID, nil
}

// Status is one submission's progress through the node, as seen at the
// current block height.
type Status struct {
	SubmissionID string
	Operation    string
	Principal    string

	Sealed      bool
	Success     bool
	FailureCode ledger.Code
	FailureMsg  string

	Height        uint64
	CurrentHeight uint64
	// Confirmations is zero until the submission is sealed.
	Confirmations uint64

	Facts     []fact.Fact
	CostUnits uint64

	SubmittedAt time.Time
	SealedAt    time.Time
}

// SubmissionStatus reports a submission's outcome and confirmation depth.
// For sealed, successful submissions the emitted facts are read back from
// the journal in order.
func (n *Node) SubmissionStatus(ctx context.Context, id string) (*Status, error) {
	rec, err := n.store.GetSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ledger.Errorf(ledger.CodeNotFound, "submission %s not found", id)
		}
		return nil, fmt.Errorf("load submission: %w", err)
	}

	st := &Status{
		SubmissionID:  rec.ID,
		Operation:     rec.Operation,
		Principal:     rec.Principal,
		Sealed:        rec.Status == submission.StatusSealed,
		Success:       rec.Success,
		FailureCode:   ledger.Code(rec.FailureCode),
		FailureMsg:    rec.FailureMsg,
		Height:        rec.Height,
		CurrentHeight: n.height.Load(),
		CostUnits:     rec.CostUnits,
		SubmittedAt:   rec.SubmittedAt,
		SealedAt:      rec.SealedAt,
	}
	if st.Sealed && st.CurrentHeight >= st.Height {
		st.Confirmations = st.CurrentHeight - st.Height + 1
	}
	if st.Sealed && rec.FactCount > 0 {
		facts, err := n.journal.ReadFrom(ctx, rec.FirstFactSeq, rec.FactCount)
		if err != nil {
			return nil, fmt.Errorf("read submission facts: %w", err)
		}
		st.Facts = facts
	}
	return st, nil
}

func (n *Node) pruneResolved() {
	cutoff := time.Now().UTC().Add(-n.cfg.Retention)
	removed, err := n.store.DeleteSealedBefore(context.Background(), cutoff)
	if err != nil {
		n.log.WithError(err).Warn("retention sweep failed")
		return
	}
	if removed > 0 {
		n.log.WithField("removed", removed).Info("pruned resolved submissions")
	}
}
