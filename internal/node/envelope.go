package node

import (
	"encoding/json"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/identity"
	"github.com/DataStream-Network/dat_ledger/internal/ledger"
)

// Envelope is the signed wrapper every submission arrives in. The signature
// covers the idempotency key, the operation name, and the canonical argument
// bytes, so a forwarded envelope cannot be altered in flight.
type Envelope struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	Operation      string          `json:"operation"`
	Args           json.RawMessage `json:"args"`
	PublicKey      []byte          `json:"publicKey"`
	Signature      []byte          `json:"signature"`
}

var knownOperations = map[string]bool{
	submission.OpCreateAsset:       true,
	submission.OpUpdatePrice:       true,
	submission.OpSetActive:         true,
	submission.OpTransferOwnership: true,
	submission.OpPayForQuery:       true,
	submission.OpDeposit:           true,
	submission.OpUpdateConfig:      true,
}

// verify checks the envelope and returns the principal derived from its
// public key. Rejections are transport-class: the submission never entered
// intake, so resubmitting with the same key is safe.
func (e Envelope) verify() (string, error) {
	if e.IdempotencyKey == "" {
		return "", ledger.Errorf(ledger.CodeTransportFailure, "envelope rejected: idempotency key is required")
	}
	if !knownOperations[e.Operation] {
		return "", ledger.Errorf(ledger.CodeTransportFailure, "envelope rejected: unknown operation %q", e.Operation)
	}
	if len(e.Args) == 0 {
		return "", ledger.Errorf(ledger.CodeTransportFailure, "envelope rejected: args are required")
	}

	principal, err := identity.AddressFromPublicKey(e.PublicKey)
	if err != nil {
		return "", ledger.Errorf(ledger.CodeTransportFailure, "envelope rejected: %v", err)
	}
	digest := identity.SigningDigest(e.IdempotencyKey, e.Operation, e.Args)
	if !identity.Verify(e.PublicKey, digest, e.Signature) {
		return "", ledger.Errorf(ledger.CodeTransportFailure, "envelope rejected: signature does not verify")
	}
	return principal, nil
}
