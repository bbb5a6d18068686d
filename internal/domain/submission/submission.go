// Package submission defines the records the node keeps for every
// operation handed to it.
package submission

import (
	"encoding/json"
	"time"
)

// Status is the durable lifecycle of a submission record. The caller-facing
// states (pending, confirmed, reverted) are derived from the record plus the
// current block height; only intake and sealing are stored.
type Status string

const (
	// StatusSubmitted means intake accepted the envelope and queued it.
	StatusSubmitted Status = "submitted"
	// StatusSealed means the submission executed inside a sealed block.
	StatusSealed Status = "sealed"
)

// Operation names accepted by the node.
const (
	OpCreateAsset       = "create_asset"
	OpUpdatePrice       = "update_price"
	OpSetActive         = "set_active"
	OpTransferOwnership = "transfer_ownership"
	OpPayForQuery       = "pay_for_query"
	OpDeposit           = "deposit"
	OpUpdateConfig      = "update_config"
)

// Record is everything the node remembers about one submission.
type Record struct {
	ID             string
	IdempotencyKey string
	Operation      string
	Args           json.RawMessage
	Principal      string
	Status         Status

	// Execution outcome, meaningful once Status is StatusSealed.
	Success     bool
	FailureCode string
	FailureMsg  string

	// Height of the block the submission was sealed into.
	Height uint64
	// FirstFactSeq and FactCount locate the facts this submission emitted
	// in the journal. FactCount is zero for reverted submissions.
	FirstFactSeq uint64
	FactCount    int
	// CostUnits is the execution cost charged to the submission.
	CostUnits uint64

	SubmittedAt time.Time
	SealedAt    time.Time
}

// Clone returns an independent copy, including the argument bytes.
func (r *Record) Clone() *Record {
	c := *r
	if r.Args != nil {
		c.Args = append(json.RawMessage(nil), r.Args...)
	}
	return &c
}

// Resolved reports whether the record reached a terminal outcome.
func (r *Record) Resolved() bool {
	return r.Status == StatusSealed
}
