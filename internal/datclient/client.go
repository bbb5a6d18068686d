// Package datclient is the client side of the submission protocol: build a
// signed envelope, hand it to the node, poll for durable confirmation, and
// decode the emitted facts into typed results. Every caller of the ledger,
// from tests to the daemon's own tooling, goes through this surface.
package datclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/identity"
	"github.com/DataStream-Network/dat_ledger/internal/ledger"
	"github.com/DataStream-Network/dat_ledger/internal/node"
	"github.com/DataStream-Network/dat_ledger/pkg/logger"
)

// ErrFactNotPresent reports that a confirmation's fact list holds no fact of
// the requested type. It is distinct so a failed mint can never be mistaken
// for asset id zero.
var ErrFactNotPresent = errors.New("fact not present in confirmation")

// NodeAPI is the node surface the client drives.
type NodeAPI interface {
	Submit(ctx context.Context, env node.Envelope) (string, error)
	SubmissionStatus(ctx context.Context, id string) (*node.Status, error)
}

// Client submits operations on behalf of one signing identity.
type Client struct {
	node NodeAPI
	key  *identity.KeyPair
	log  *logger.Logger
}

// New builds a client for the given identity.
func New(api NodeAPI, key *identity.KeyPair, log *logger.Logger) (*Client, error) {
	if api == nil {
		return nil, errors.New("datclient requires a node")
	}
	if key == nil {
		return nil, errors.New("datclient requires a signing key")
	}
	if log == nil {
		log = logger.NewDefault("datclient")
	}
	return &Client{node: api, key: key, log: log}, nil
}

// Principal returns the address this client signs as.
func (c *Client) Principal() string { return c.key.Address() }

// PendingHandle references one in-flight submission. Re-polling with the
// same handle is idempotent; resubmitting with the same idempotency key
// folds into the original submission.
type PendingHandle struct {
	SubmissionID   string
	IdempotencyKey string
	Operation      string
}

// Submit signs and hands one operation to the node, returning immediately
// with a handle. It never waits for finality.
func (c *Client) Submit(ctx context.Context, operation string, args interface{}) (*PendingHandle, error) {
	return c.SubmitWithKey(ctx, uuid.New().String(), operation, args)
}

// SubmitWithKey submits under a caller-chosen idempotency key. Reusing a key
// after a transport failure is the safe resubmission path: the node returns
// the original submission instead of executing twice.
func (c *Client) SubmitWithKey(ctx context.Context, idempotencyKey, operation string, args interface{}) (*PendingHandle, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", operation, err)
	}

	env := node.Envelope{
		IdempotencyKey: idempotencyKey,
		Operation:      operation,
		Args:           raw,
		PublicKey:      c.key.PublicKey(),
		Signature:      c.key.Sign(identity.SigningDigest(idempotencyKey, operation, raw)),
	}

	id, err := c.node.Submit(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", operation, err)
	}
	c.log.WithField("submission", id).WithField("operation", operation).Debug("submission accepted")
	return &PendingHandle{SubmissionID: id, IdempotencyKey: idempotencyKey, Operation: operation}, nil
}

// AwaitOptions tunes one confirmation wait.
type AwaitOptions struct {
	// Timeout bounds this wait only. Zero means DefaultAwaitTimeout. A
	// timed-out handle stays valid and can be awaited again.
	Timeout time.Duration
	// RequiredConfirmations is the depth the sealing block must reach.
	// Zero means 1: sealed is confirmed.
	RequiredConfirmations uint64
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
}

// Default await parameters.
const (
	DefaultAwaitTimeout = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Confirmation is the durable outcome of one submission.
type Confirmation struct {
	Handle  PendingHandle
	Success bool
	// Err carries the classified ledger failure when Success is false.
	Err error

	// Facts the operation emitted, in journal order. Empty for reverted
	// submissions.
	Facts []fact.Fact

	// Resource-consumption metadata.
	Height        uint64
	Confirmations uint64
	CostUnits     uint64
	SealedAt      time.Time
}

// AwaitConfirmation blocks the calling goroutine until the submission is
// sealed to the required depth or the timeout elapses. Cancelling ctx
// abandons only this wait; the submission still executes.
func (c *Client) AwaitConfirmation(ctx context.Context, handle *PendingHandle, opts AwaitOptions) (*Confirmation, error) {
	if handle == nil {
		return nil, errors.New("nil handle")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAwaitTimeout
	}
	if opts.RequiredConfirmations == 0 {
		opts.RequiredConfirmations = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	wctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		st, err := c.node.SubmissionStatus(wctx, handle.SubmissionID)
		if err != nil && wctx.Err() == nil {
			return nil, fmt.Errorf("poll submission %s: %w", handle.SubmissionID, err)
		}
		if err == nil && st.Sealed && st.Confirmations >= opts.RequiredConfirmations {
			return c.confirm(handle, st)
		}

		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				// The caller abandoned the wait; the submission is unaffected.
				return nil, ctx.Err()
			}
			return nil, ledger.Errorf(ledger.CodeTimeout,
				"submission %s not confirmed within %s; re-await the same handle", handle.SubmissionID, opts.Timeout)
		case <-ticker.C:
		}
	}
}

func (c *Client) confirm(handle *PendingHandle, st *node.Status) (*Confirmation, error) {
	conf := &Confirmation{
		Handle:        *handle,
		Success:       st.Success,
		Facts:         st.Facts,
		Height:        st.Height,
		Confirmations: st.Confirmations,
		CostUnits:     st.CostUnits,
		SealedAt:      st.SealedAt,
	}
	if !st.Success {
		conf.Err = ledger.FromCode(st.FailureCode, st.FailureMsg)
		return conf, conf.Err
	}
	return conf, nil
}

// ExtractFact returns the first fact of the given type from a confirmation.
// Absence is ErrFactNotPresent, never a zero-valued fact.
func ExtractFact(conf *Confirmation, typ fact.Type) (fact.Fact, error) {
	if conf == nil {
		return fact.Fact{}, ErrFactNotPresent
	}
	for _, f := range conf.Facts {
		if f.Type == typ {
			return f, nil
		}
	}
	return fact.Fact{}, fmt.Errorf("%w: %s", ErrFactNotPresent, typ)
}
