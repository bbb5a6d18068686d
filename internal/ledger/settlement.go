package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/DataStream-Network/dat_ledger/internal/domain/asset"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
)

// splitPayment computes the platform fee and creator share. The fee floors,
// never rounds up, so fee + share == amountPaid exactly. Amounts whose fee
// product would not fit in 64 bits are rejected.
func splitPayment(amountPaid uint64, feeBps uint32) (fee, share uint64, err error) {
	if feeBps > 10000 {
		return 0, 0, Errorf(CodeInvalidArgument, "fee %d bps exceeds 10000", feeBps)
	}
	if feeBps > 0 && amountPaid > math.MaxUint64/uint64(feeBps) {
		return 0, 0, Errorf(CodeOverflow, "amount %d at %d bps overflows the fee product", amountPaid, feeBps)
	}
	fee = amountPaid * uint64(feeBps) / 10000
	return fee, amountPaid - fee, nil
}

// PayForQuery settles a paid query against an asset: it validates the
// payment, debits the payer, credits treasury and creator with the exact
// split, and advances the usage counters, all as one unit. Any failure
// leaves every balance and counter untouched.
func (l *Ledger) PayForQuery(ctx context.Context, payer string, id, amountPaid uint64) (*asset.SettlementReceipt, []fact.Fact, error) {
	if payer == "" {
		return nil, nil, Errorf(CodeInvalidArgument, "payer principal is required")
	}

	mu := l.assetLock(id)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.registry.get(id)
	if err != nil {
		return nil, nil, err
	}
	if !rec.Active {
		return nil, nil, Errorf(CodeInactiveAsset, "asset %d is not active", id)
	}
	if amountPaid < rec.QueryPrice {
		return nil, nil, Errorf(CodeInsufficientPayment, "payment %d below query price %d", amountPaid, rec.QueryPrice)
	}

	// The bank lock pins the config snapshot and the payer balance for the
	// rest of the settlement.
	l.bankMu.Lock()
	defer l.bankMu.Unlock()

	cfg := l.Config()
	fee, share, err := splitPayment(amountPaid, cfg.FeeBps)
	if err != nil {
		return nil, nil, err
	}
	if err := l.registry.checkSettlementCounters(id, share, amountPaid); err != nil {
		return nil, nil, err
	}
	if err := l.bank.canSettle(payer, cfg.Treasury, rec.Creator, amountPaid, fee, share); err != nil {
		return nil, nil, err
	}

	f, err := fact.New(fact.TypeQueryPaid, id, fact.QueryPaid{
		ID:           id,
		Payer:        payer,
		AmountPaid:   amountPaid,
		FeePaid:      fee,
		CreatorShare: share,
	})
	if err != nil {
		return nil, nil, err
	}
	facts, err := l.commit(ctx, f)
	if err != nil {
		return nil, nil, fmt.Errorf("pay for query: %w", err)
	}

	receipt := &asset.SettlementReceipt{
		AssetID:        id,
		TransactionRef: uuid.New().String(),
		AmountPaid:     amountPaid,
		FeePaid:        fee,
		CreatorShare:   share,
	}
	l.log.WithField("asset_id", id).
		WithField("payer", payer).
		WithField("fee", fee).
		WithField("creator_share", share).
		Info("query settled")
	return receipt, facts, nil
}

// Deposit credits an account. Admin only: deposits introduce new funds.
func (l *Ledger) Deposit(ctx context.Context, caller, account string, amount uint64) ([]fact.Fact, error) {
	if caller != l.admin || l.admin == "" {
		return nil, Errorf(CodeUnauthorized, "caller %s is not the ledger admin", caller)
	}
	if account == "" {
		return nil, Errorf(CodeInvalidArgument, "account is required")
	}
	if amount == 0 {
		return nil, Errorf(CodeInvalidArgument, "deposit amount must be greater than zero")
	}

	l.bankMu.Lock()
	defer l.bankMu.Unlock()

	if current := l.bank.balanceOf(account); current > math.MaxUint64-amount {
		return nil, Errorf(CodeOverflow, "deposit of %d would overflow account %s", amount, account)
	}

	f, err := fact.New(fact.TypeDeposited, 0, fact.Deposited{Account: account, Amount: amount})
	if err != nil {
		return nil, err
	}
	facts, err := l.commit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	return facts, nil
}

// UpdatePlatformConfig swaps the settlement parameters. Admin only. The
// swap is serialized against settlements, so no settlement ever observes a
// half-applied config.
func (l *Ledger) UpdatePlatformConfig(ctx context.Context, caller, treasury string, feeBps uint32) ([]fact.Fact, error) {
	if caller != l.admin || l.admin == "" {
		return nil, Errorf(CodeUnauthorized, "caller %s is not the ledger admin", caller)
	}
	next := PlatformConfig{Treasury: treasury, FeeBps: feeBps}
	if err := next.validate(); err != nil {
		return nil, err
	}

	l.configMu.Lock()
	defer l.configMu.Unlock()
	l.bankMu.Lock()
	defer l.bankMu.Unlock()

	f, err := fact.New(fact.TypeConfigUpdated, 0, fact.ConfigUpdated{Treasury: treasury, FeeBps: feeBps})
	if err != nil {
		return nil, err
	}
	facts, err := l.commit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("update platform config: %w", err)
	}
	l.log.WithField("treasury", treasury).WithField("fee_bps", feeBps).Info("platform config updated")
	return facts, nil
}
