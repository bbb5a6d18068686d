package node

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/identity"
	"github.com/DataStream-Network/dat_ledger/internal/ledger"
	"github.com/DataStream-Network/dat_ledger/internal/storage/memory"
)

func newTestNode(t *testing.T) (*Node, *identity.KeyPair) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	journal, err := fact.NewJournal(ctx, store, nil)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}

	key, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	led, err := ledger.New(ctx, ledger.Options{
		Config:          ledger.PlatformConfig{Treasury: "dat1treasury", FeeBps: 250},
		Admin:           "dat1admin",
		GenesisBalances: map[string]uint64{key.Address(): 1_000_000},
	}, journal, nil)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	n, err := New(Config{}, led, journal, store, nil)
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	return n, key
}

func signedEnvelope(t *testing.T, key *identity.KeyPair, idempotencyKey, operation string, args interface{}) Envelope {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return Envelope{
		IdempotencyKey: idempotencyKey,
		Operation:      operation,
		Args:           raw,
		PublicKey:      key.PublicKey(),
		Signature:      key.Sign(identity.SigningDigest(idempotencyKey, operation, raw)),
	}
}

func TestIntakeRejectsBadEnvelopes(t *testing.T) {
	ctx := context.Background()
	n, key := newTestNode(t)
	args := submission.CreateAssetArgs{ContentRef: "QmIntake", QueryPrice: 10}

	env := signedEnvelope(t, key, "key-1", submission.OpCreateAsset, args)
	env.Signature[0] ^= 0xff
	if _, err := n.Submit(ctx, env); ledger.CodeOf(err) != ledger.CodeTransportFailure {
		t.Errorf("tampered signature err = %v, want TransportFailure", err)
	}

	env = signedEnvelope(t, key, "key-2", "drop_table", args)
	if _, err := n.Submit(ctx, env); ledger.CodeOf(err) != ledger.CodeTransportFailure {
		t.Errorf("unknown operation err = %v, want TransportFailure", err)
	}

	env = signedEnvelope(t, key, "", submission.OpCreateAsset, args)
	if _, err := n.Submit(ctx, env); ledger.CodeOf(err) != ledger.CodeTransportFailure {
		t.Errorf("missing idempotency key err = %v, want TransportFailure", err)
	}

	// Tampered args invalidate the signature too.
	env = signedEnvelope(t, key, "key-3", submission.OpCreateAsset, args)
	env.Args = json.RawMessage(`{"contentRef":"QmOther","queryPrice":10}`)
	if _, err := n.Submit(ctx, env); ledger.CodeOf(err) != ledger.CodeTransportFailure {
		t.Errorf("tampered args err = %v, want TransportFailure", err)
	}
}

func TestIntakeRateLimit(t *testing.T) {
	ctx := context.Background()
	n, key := newTestNode(t)
	n.limiter.SetBurst(1)
	n.limiter.SetLimit(0)

	env := signedEnvelope(t, key, "key-a", submission.OpCreateAsset,
		submission.CreateAssetArgs{ContentRef: "QmRate", QueryPrice: 10})
	if _, err := n.Submit(ctx, env); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	env = signedEnvelope(t, key, "key-b", submission.OpCreateAsset,
		submission.CreateAssetArgs{ContentRef: "QmRate2", QueryPrice: 10})
	if _, err := n.Submit(ctx, env); !errors.Is(err, ledger.ErrRateLimited) {
		t.Fatalf("err = %v, want RateLimited", err)
	}
}

func TestDuplicateKeyExecutesOnce(t *testing.T) {
	ctx := context.Background()
	n, key := newTestNode(t)

	env := signedEnvelope(t, key, "mint-once", submission.OpCreateAsset,
		submission.CreateAssetArgs{ContentRef: "QmDedup", QueryPrice: 10})

	first, err := n.Submit(ctx, env)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := n.Submit(ctx, env)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if first != second {
		t.Fatalf("duplicate key produced a second submission: %s vs %s", first, second)
	}

	n.sealBlock(ctx)
	n.sealBlock(ctx)

	st, err := n.SubmissionStatus(ctx, first)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Sealed || !st.Success {
		t.Fatalf("status = %+v, want sealed success", st)
	}
	if got := n.led.Stats().TotalAssets; got != 1 {
		t.Errorf("assets = %d, want exactly one execution", got)
	}

	// Resubmitting after sealing still folds into the original.
	third, err := n.Submit(ctx, env)
	if err != nil {
		t.Fatalf("resubmit after seal: %v", err)
	}
	if third != first {
		t.Errorf("post-seal duplicate produced %s, want %s", third, first)
	}
}

func TestSealRecordsOutcomeAndFacts(t *testing.T) {
	ctx := context.Background()
	n, key := newTestNode(t)

	id, err := n.Submit(ctx, signedEnvelope(t, key, "mint", submission.OpCreateAsset,
		submission.CreateAssetArgs{ContentRef: "QmSeal", QueryPrice: 100, DataClass: "telemetry"}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	n.sealBlock(ctx)

	st, err := n.SubmissionStatus(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Height != 1 || st.Confirmations != 1 {
		t.Errorf("height/conf = %d/%d, want 1/1", st.Height, st.Confirmations)
	}
	if len(st.Facts) != 1 || st.Facts[0].Type != fact.TypeAssetCreated {
		t.Fatalf("facts = %+v, want one AssetCreated", st.Facts)
	}
	created, err := fact.DecodeAssetCreated(st.Facts[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Creator != key.Address() {
		t.Errorf("creator = %s, want the envelope principal", created.Creator)
	}
	if created.DataClass != "telemetry" {
		t.Errorf("dataClass = %q", created.DataClass)
	}
	if st.CostUnits != costBase+costPerFact {
		t.Errorf("cost = %d, want %d", st.CostUnits, costBase+costPerFact)
	}

	// Empty blocks keep deepening confirmations.
	n.sealBlock(ctx)
	n.sealBlock(ctx)
	st, _ = n.SubmissionStatus(ctx, id)
	if st.Confirmations != 3 {
		t.Errorf("confirmations = %d, want 3", st.Confirmations)
	}
}

func TestSealRecordsRevertedFailureClass(t *testing.T) {
	ctx := context.Background()
	n, key := newTestNode(t)

	id, err := n.Submit(ctx, signedEnvelope(t, key, "pay-missing", submission.OpPayForQuery,
		submission.PayForQueryArgs{AssetID: 999, AmountPaid: 100}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	n.sealBlock(ctx)

	st, err := n.SubmissionStatus(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Success {
		t.Fatal("payment against unknown asset succeeded")
	}
	if st.FailureCode != ledger.CodeNotFound {
		t.Errorf("failure code = %s, want NOT_FOUND", st.FailureCode)
	}
	if len(st.Facts) != 0 {
		t.Errorf("reverted submission carries facts: %+v", st.Facts)
	}
	if st.Confirmations != 1 {
		t.Errorf("reverted submissions still confirm: %d", st.Confirmations)
	}
}

func TestUnknownSubmission(t *testing.T) {
	n, _ := newTestNode(t)
	_, err := n.SubmissionStatus(context.Background(), "no-such-id")
	if ledger.CodeOf(err) != ledger.CodeNotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestStartResumesQueueAndHeight(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	journal, err := fact.NewJournal(ctx, store, nil)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	key, err := identity.Generate()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	led, err := ledger.New(ctx, ledger.Options{
		Config: ledger.PlatformConfig{Treasury: "dat1treasury", FeeBps: 250},
	}, journal, nil)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	n, err := New(Config{Retention: 0}, led, journal, store, nil)
	if err != nil {
		t.Fatalf("node: %v", err)
	}

	sealed, err := n.Submit(ctx, signedEnvelope(t, key, "sealed", submission.OpCreateAsset,
		submission.CreateAssetArgs{ContentRef: "QmSealed", QueryPrice: 10}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	n.sealBlock(ctx)
	queued, err := n.Submit(ctx, signedEnvelope(t, key, "queued", submission.OpCreateAsset,
		submission.CreateAssetArgs{ContentRef: "QmQueued", QueryPrice: 10}))
	if err != nil {
		t.Fatalf("submit queued: %v", err)
	}

	// A restarted node over the same store resumes height and re-queues
	// the unsealed submission.
	restarted, err := New(Config{Retention: 0}, led, journal, store, nil)
	if err != nil {
		t.Fatalf("restart node: %v", err)
	}
	if err := restarted.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer restarted.Stop(ctx)

	if restarted.Height() < 1 {
		t.Errorf("resumed height = %d, want >= 1", restarted.Height())
	}
	restarted.sealBlock(ctx)

	st, err := restarted.SubmissionStatus(ctx, queued)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Sealed || !st.Success {
		t.Fatalf("re-queued submission not executed: %+v", st)
	}
	if st.Height <= 1 {
		t.Errorf("re-queued submission sealed at height %d, want past the resumed height", st.Height)
	}
	if _, err := restarted.SubmissionStatus(ctx, sealed); err != nil {
		t.Errorf("previously sealed submission lost: %v", err)
	}
}
