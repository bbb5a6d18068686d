package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/storage"
)

func seqFact(t *testing.T, seq uint64) fact.Fact {
	t.Helper()
	f, err := fact.New(fact.TypeQueryPaid, 1, fact.QueryPaid{ID: 1, AmountPaid: 100})
	if err != nil {
		t.Fatalf("new fact: %v", err)
	}
	f.Seq = seq
	return f
}

func TestAppendFactsRejectsGaps(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.AppendFacts(ctx, []fact.Fact{seqFact(t, 1), seqFact(t, 2)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendFacts(ctx, []fact.Fact{seqFact(t, 4)}); err == nil {
		t.Fatal("expected gap rejection")
	}
	last, err := s.LastFactSeq(ctx)
	if err != nil {
		t.Fatalf("last seq: %v", err)
	}
	if last != 2 {
		t.Errorf("last seq = %d, want 2", last)
	}
}

func TestFactsFromWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := uint64(1); i <= 5; i++ {
		if err := s.AppendFacts(ctx, []fact.Fact{seqFact(t, i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := s.FactsFrom(ctx, 2, 3)
	if err != nil {
		t.Fatalf("facts from: %v", err)
	}
	if len(got) != 3 || got[0].Seq != 2 || got[2].Seq != 4 {
		t.Errorf("window wrong: %+v", got)
	}

	empty, err := s.FactsFrom(ctx, 9, 0)
	if err != nil {
		t.Fatalf("facts from past end: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty window, got %d", len(empty))
	}
}

func newRecord(id, key string) *submission.Record {
	return &submission.Record{
		ID:             id,
		IdempotencyKey: key,
		Operation:      submission.OpPayForQuery,
		Principal:      "dat1payer",
		Status:         submission.StatusSubmitted,
		SubmittedAt:    time.Now().UTC(),
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := newRecord("sub-1", "key-1")
	if err := s.CreateSubmission(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateSubmission(ctx, newRecord("sub-2", "key-1")); err == nil {
		t.Fatal("expected duplicate idempotency key rejection")
	}

	got, err := s.GetSubmissionByKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if got.ID != "sub-1" {
		t.Errorf("get by key returned %s", got.ID)
	}

	rec.Status = submission.StatusSealed
	rec.Height = 7
	rec.SealedAt = time.Now().UTC()
	if err := s.UpdateSubmission(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err = s.GetSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != submission.StatusSealed || got.Height != 7 {
		t.Errorf("update not visible: %+v", got)
	}

	// Stored records are isolated from caller mutation.
	got.Height = 99
	again, _ := s.GetSubmission(ctx, "sub-1")
	if again.Height != 7 {
		t.Errorf("store leaked a live pointer, height = %d", again.Height)
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	s := New()
	_, err := s.GetSubmission(context.Background(), "absent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListUnsealedSubmissionsOrdered(t *testing.T) {
	ctx := context.Background()
	s := New()

	old := newRecord("sub-old", "key-old")
	old.SubmittedAt = time.Now().Add(-time.Minute)
	recent := newRecord("sub-new", "key-new")
	sealed := newRecord("sub-sealed", "key-sealed")
	sealed.Status = submission.StatusSealed

	for _, rec := range []*submission.Record{recent, old, sealed} {
		if err := s.CreateSubmission(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", rec.ID, err)
		}
	}

	got, err := s.ListUnsealedSubmissions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "sub-old" || got[1].ID != "sub-new" {
		t.Errorf("unexpected list order: %+v", got)
	}
}

func TestDeleteSealedBefore(t *testing.T) {
	ctx := context.Background()
	s := New()

	stale := newRecord("sub-stale", "key-stale")
	stale.Status = submission.StatusSealed
	stale.SealedAt = time.Now().Add(-2 * time.Hour)

	fresh := newRecord("sub-fresh", "key-fresh")
	fresh.Status = submission.StatusSealed
	fresh.SealedAt = time.Now()

	open := newRecord("sub-open", "key-open")

	for _, rec := range []*submission.Record{stale, fresh, open} {
		if err := s.CreateSubmission(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", rec.ID, err)
		}
	}

	removed, err := s.DeleteSealedBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := s.GetSubmission(ctx, "sub-stale"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("stale record still present")
	}
	if _, err := s.GetSubmission(ctx, "sub-open"); err != nil {
		t.Error("unsealed record was pruned")
	}

	// The idempotency key of a pruned record is free again.
	if err := s.CreateSubmission(ctx, newRecord("sub-stale-2", "key-stale")); err != nil {
		t.Errorf("reuse of pruned key: %v", err)
	}
}
