package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/ledger"
	"github.com/DataStream-Network/dat_ledger/internal/metrics"
)

// Execution cost units charged per sealed submission.
const (
	costBase    = 100
	costPerFact = 25
)

func (n *Node) run() {
	defer close(n.done)

	ticker := time.NewTicker(n.cfg.BlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.sealBlock(context.Background())
		}
	}
}

// sealBlock drains the queue into the next block and executes it. Blocks
// are sealed on every tick, so an empty block still advances the height and
// with it every earlier submission's confirmation depth.
func (n *Node) sealBlock(ctx context.Context) {
	start := time.Now()

	n.mu.Lock()
	take := len(n.queue)
	if take > n.cfg.MaxBlockSubmissions {
		take = n.cfg.MaxBlockSubmissions
	}
	batch := n.queue[:take]
	n.queue = n.queue[take:]
	n.mu.Unlock()

	height := n.height.Add(1)
	sealedAt := time.Now().UTC()

	for _, rec := range batch {
		facts, err := n.execute(ctx, rec)

		rec.Status = submission.StatusSealed
		rec.Height = height
		rec.SealedAt = sealedAt
		if err != nil {
			rec.Success = false
			rec.FailureCode = string(ledger.CodeOf(err))
			rec.FailureMsg = err.Error()
			rec.CostUnits = costBase
			metrics.RecordSubmission(rec.Operation, "reverted")
		} else {
			rec.Success = true
			rec.CostUnits = costBase + costPerFact*uint64(len(facts))
			if len(facts) > 0 {
				rec.FirstFactSeq = facts[0].Seq
				rec.FactCount = len(facts)
			}
			metrics.RecordSubmission(rec.Operation, "confirmed")
		}

		if err := n.store.UpdateSubmission(ctx, rec); err != nil {
			// The execution already committed; the record catches up when
			// the update is retried on the next status write. Log loudly.
			n.log.WithError(err).WithField("submission", rec.ID).Error("failed to persist sealed submission")
		}
	}

	metrics.RecordBlock(height, len(batch), time.Since(start))
	metrics.SetJournalLength(n.journal.LastSeq())

	if len(batch) > 0 {
		n.log.WithField("height", height).
			WithField("submissions", len(batch)).
			WithField("elapsed", time.Since(start)).
			Debug("block sealed")
	}
}

// execute dispatches one submission to the ledger operation it names. The
// returned error is the ledger's classified failure; it is recorded on the
// submission, never swallowed.
func (n *Node) execute(ctx context.Context, rec *submission.Record) ([]fact.Fact, error) {
	switch rec.Operation {
	case submission.OpCreateAsset:
		var args submission.CreateAssetArgs
		if err := decodeArgs(rec.Args, &args); err != nil {
			return nil, err
		}
		_, facts, err := n.led.CreateAsset(ctx, ledger.CreateParams{
			Creator:    rec.Principal,
			ContentRef: args.ContentRef,
			TokenURI:   args.TokenURI,
			DataClass:  args.DataClass,
			DataValue:  args.DataValue,
			QueryPrice: args.QueryPrice,
		})
		return facts, err

	case submission.OpUpdatePrice:
		var args submission.UpdatePriceArgs
		if err := decodeArgs(rec.Args, &args); err != nil {
			return nil, err
		}
		return n.led.UpdatePrice(ctx, rec.Principal, args.AssetID, args.NewPrice)

	case submission.OpSetActive:
		var args submission.SetActiveArgs
		if err := decodeArgs(rec.Args, &args); err != nil {
			return nil, err
		}
		return n.led.SetActive(ctx, rec.Principal, args.AssetID, args.Active)

	case submission.OpTransferOwnership:
		var args submission.TransferOwnershipArgs
		if err := decodeArgs(rec.Args, &args); err != nil {
			return nil, err
		}
		return n.led.TransferOwnership(ctx, rec.Principal, args.AssetID, args.NewCreator)

	case submission.OpPayForQuery:
		var args submission.PayForQueryArgs
		if err := decodeArgs(rec.Args, &args); err != nil {
			return nil, err
		}
		_, facts, err := n.led.PayForQuery(ctx, rec.Principal, args.AssetID, args.AmountPaid)
		if err == nil {
			metrics.RecordSettlement(args.AmountPaid)
		}
		return facts, err

	case submission.OpDeposit:
		var args submission.DepositArgs
		if err := decodeArgs(rec.Args, &args); err != nil {
			return nil, err
		}
		return n.led.Deposit(ctx, rec.Principal, args.Account, args.Amount)

	case submission.OpUpdateConfig:
		var args submission.UpdateConfigArgs
		if err := decodeArgs(rec.Args, &args); err != nil {
			return nil, err
		}
		return n.led.UpdatePlatformConfig(ctx, rec.Principal, args.Treasury, args.FeeBps)

	default:
		// Intake validates operations, so only a corrupted record gets here.
		return nil, ledger.Errorf(ledger.CodeInvalidArgument, "unknown operation %q", rec.Operation)
	}
}

func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return ledger.Errorf(ledger.CodeInvalidArgument, "decode args: %v", err)
	}
	return nil
}
