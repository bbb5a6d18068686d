// Package ledger implements the data-asset ledger and payment-settlement
// engine: creator-owned asset records, the fee-splitting settlement of paid
// queries, and the balance book the splits move money across.
//
// Every mutation follows the same commit discipline: validate against
// current state, journal the facts, then apply them to memory. The journal
// write is the commit point, so restart replay and live execution share one
// apply path and can never disagree.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/DataStream-Network/dat_ledger/internal/domain/asset"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/pkg/logger"
)

// PlatformConfig carries the settlement split parameters. Settlements read
// one consistent snapshot for their whole execution.
type PlatformConfig struct {
	Treasury string
	FeeBps   uint32
}

func (c PlatformConfig) validate() error {
	if c.Treasury == "" {
		return Errorf(CodeInvalidArgument, "treasury account is required")
	}
	if c.FeeBps > 10000 {
		return Errorf(CodeInvalidArgument, "fee %d bps exceeds 10000", c.FeeBps)
	}
	return nil
}

// Options configures a Ledger.
type Options struct {
	Config PlatformConfig
	// Admin is the only principal allowed to deposit funds and update the
	// platform config.
	Admin string
	// GenesisBalances are deposited on first start, before any submission.
	GenesisBalances map[string]uint64
}

// Ledger is the single owner of all asset records, balances, and platform
// configuration. Operations on one asset are totally ordered by a per-id
// lock; fund-moving operations are additionally serialized by the bank
// lock so balance checks stay valid through commit.
type Ledger struct {
	journal *fact.Journal
	log     *logger.Logger

	registry *registry
	bank     *bank
	admin    string

	config atomic.Pointer[PlatformConfig]

	locksMu  sync.Mutex
	locks    map[uint64]*sync.Mutex
	createMu sync.Mutex
	bankMu   sync.Mutex
	configMu sync.Mutex
}

// New replays the journal into a fresh ledger and, on an empty journal,
// records the genesis balances.
func New(ctx context.Context, opts Options, journal *fact.Journal, log *logger.Logger) (*Ledger, error) {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	if err := opts.Config.validate(); err != nil {
		return nil, fmt.Errorf("platform config: %w", err)
	}

	l := &Ledger{
		journal:  journal,
		log:      log,
		registry: newRegistry(),
		bank:     newBank(),
		admin:    opts.Admin,
		locks:    make(map[uint64]*sync.Mutex),
	}
	cfg := opts.Config
	l.config.Store(&cfg)

	if err := l.replay(ctx); err != nil {
		return nil, err
	}

	if journal.LastSeq() == 0 && len(opts.GenesisBalances) > 0 {
		if err := l.bootstrapGenesis(ctx, opts.GenesisBalances); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) replay(ctx context.Context) error {
	const batch = 1000
	from := uint64(1)
	replayed := 0
	for {
		facts, err := l.journal.ReadFrom(ctx, from, batch)
		if err != nil {
			return fmt.Errorf("replay journal: %w", err)
		}
		if len(facts) == 0 {
			break
		}
		for _, f := range facts {
			if err := l.apply(f); err != nil {
				return fmt.Errorf("replay fact seq %d (%s): %w", f.Seq, f.Type, err)
			}
		}
		replayed += len(facts)
		from = facts[len(facts)-1].Seq + 1
		if len(facts) < batch {
			break
		}
	}
	if replayed > 0 {
		l.log.WithField("facts", replayed).Info("ledger state rebuilt from journal")
	}
	return nil
}

func (l *Ledger) bootstrapGenesis(ctx context.Context, balances map[string]uint64) error {
	accounts := make([]string, 0, len(balances))
	for account := range balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	facts := make([]fact.Fact, 0, len(accounts))
	for _, account := range accounts {
		if balances[account] == 0 {
			continue
		}
		f, err := fact.New(fact.TypeDeposited, 0, fact.Deposited{Account: account, Amount: balances[account]})
		if err != nil {
			return err
		}
		facts = append(facts, f)
	}
	if len(facts) == 0 {
		return nil
	}
	if _, err := l.commit(ctx, facts...); err != nil {
		return fmt.Errorf("genesis balances: %w", err)
	}
	l.log.WithField("accounts", len(facts)).Info("genesis balances deposited")
	return nil
}

// commit journals the facts and applies them to memory. The journal write
// is the commit point: a failure there changes nothing, and a crash after
// it is healed by replay.
func (l *Ledger) commit(ctx context.Context, facts ...fact.Fact) ([]fact.Fact, error) {
	stamped, err := l.journal.Append(ctx, facts...)
	if err != nil {
		return nil, err
	}
	for _, f := range stamped {
		if err := l.apply(f); err != nil {
			l.log.WithError(err).WithField("seq", f.Seq).Error("journalled fact failed to apply")
			return stamped, fmt.Errorf("apply journalled fact seq %d: %w", f.Seq, err)
		}
	}
	return stamped, nil
}

// apply mutates state from a single journalled fact. Both live commits and
// restart replay run through here, in seq order.
func (l *Ledger) apply(f fact.Fact) error {
	switch f.Type {
	case fact.TypeAssetCreated:
		p, err := fact.DecodeAssetCreated(f)
		if err != nil {
			return err
		}
		return l.registry.insert(&asset.Record{
			ID:         p.ID,
			Creator:    p.Creator,
			ContentRef: p.ContentRef,
			TokenURI:   p.TokenURI,
			DataClass:  p.DataClass,
			DataValue:  p.DataValue,
			QueryPrice: p.QueryPrice,
			Active:     true,
			CreatedAt:  f.Timestamp,
		})

	case fact.TypePriceUpdated:
		p, err := fact.DecodePriceUpdated(f)
		if err != nil {
			return err
		}
		return l.registry.applyPriceUpdate(p.ID, p.NewPrice)

	case fact.TypeActiveChanged:
		p, err := fact.DecodeActiveChanged(f)
		if err != nil {
			return err
		}
		return l.registry.applyActive(p.ID, p.Active)

	case fact.TypeOwnershipTransferred:
		p, err := fact.DecodeOwnershipTransferred(f)
		if err != nil {
			return err
		}
		return l.registry.applyTransfer(p.ID, p.NewCreator)

	case fact.TypeQueryPaid:
		p, err := fact.DecodeQueryPaid(f)
		if err != nil {
			return err
		}
		rec, err := l.registry.get(p.ID)
		if err != nil {
			return err
		}
		cfg := l.Config()
		if err := l.bank.settle(p.Payer, cfg.Treasury, rec.Creator, p.AmountPaid, p.FeePaid, p.CreatorShare); err != nil {
			return err
		}
		return l.registry.applySettlement(p.ID, p.CreatorShare, p.AmountPaid)

	case fact.TypeDeposited:
		p, err := fact.DecodeDeposited(f)
		if err != nil {
			return err
		}
		_, err = l.bank.deposit(p.Account, p.Amount)
		return err

	case fact.TypeConfigUpdated:
		p, err := fact.DecodeConfigUpdated(f)
		if err != nil {
			return err
		}
		cfg := PlatformConfig{Treasury: p.Treasury, FeeBps: p.FeeBps}
		l.config.Store(&cfg)
		return nil

	default:
		return Errorf(CodeInvalidArgument, "unknown fact type %q", f.Type)
	}
}

// assetLock returns the mutex serializing all mutations of one asset.
// Locks are never dropped; assets live for the ledger's lifetime.
func (l *Ledger) assetLock(id uint64) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// === Registry operations ===

// CreateParams are the caller-supplied fields of a mint.
type CreateParams struct {
	Creator    string
	ContentRef string
	TokenURI   string
	DataClass  string
	DataValue  uint64
	QueryPrice uint64
}

// CreateAsset mints a new asset record and returns it with the facts the
// mint emitted.
func (l *Ledger) CreateAsset(ctx context.Context, p CreateParams) (*asset.Record, []fact.Fact, error) {
	if p.Creator == "" {
		return nil, nil, Errorf(CodeInvalidArgument, "creator principal is required")
	}
	if p.ContentRef == "" {
		return nil, nil, Errorf(CodeInvalidArgument, "content reference is required")
	}
	if p.QueryPrice == 0 {
		return nil, nil, ErrInvalidPrice
	}

	l.createMu.Lock()
	defer l.createMu.Unlock()

	if l.registry.hasContent(p.ContentRef) {
		return nil, nil, Errorf(CodeDuplicateContent, "content reference %q already registered", p.ContentRef)
	}

	id := l.registry.peekNextID()
	f, err := fact.New(fact.TypeAssetCreated, id, fact.AssetCreated{
		ID:         id,
		Creator:    p.Creator,
		ContentRef: p.ContentRef,
		QueryPrice: p.QueryPrice,
		TokenURI:   p.TokenURI,
		DataClass:  p.DataClass,
		DataValue:  p.DataValue,
	})
	if err != nil {
		return nil, nil, err
	}

	facts, err := l.commit(ctx, f)
	if err != nil {
		return nil, nil, fmt.Errorf("create asset: %w", err)
	}

	rec, err := l.registry.get(id)
	if err != nil {
		return nil, facts, err
	}
	l.log.WithField("asset_id", id).WithField("creator", p.Creator).Info("asset created")
	return rec, facts, nil
}

// UpdatePrice changes an asset's query price. Only the creator may call it;
// deactivation does not block it.
func (l *Ledger) UpdatePrice(ctx context.Context, caller string, id, newPrice uint64) ([]fact.Fact, error) {
	mu := l.assetLock(id)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.registry.get(id)
	if err != nil {
		return nil, err
	}
	if rec.Creator != caller {
		return nil, Errorf(CodeUnauthorized, "caller %s is not the creator of asset %d", caller, id)
	}
	if newPrice == 0 {
		return nil, ErrInvalidPrice
	}

	f, err := fact.New(fact.TypePriceUpdated, id, fact.PriceUpdated{ID: id, NewPrice: newPrice})
	if err != nil {
		return nil, err
	}
	facts, err := l.commit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("update price: %w", err)
	}
	return facts, nil
}

// SetActive opens or closes an asset for settlement.
func (l *Ledger) SetActive(ctx context.Context, caller string, id uint64, active bool) ([]fact.Fact, error) {
	mu := l.assetLock(id)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.registry.get(id)
	if err != nil {
		return nil, err
	}
	if rec.Creator != caller {
		return nil, Errorf(CodeUnauthorized, "caller %s is not the creator of asset %d", caller, id)
	}

	f, err := fact.New(fact.TypeActiveChanged, id, fact.ActiveChanged{ID: id, Active: active})
	if err != nil {
		return nil, err
	}
	facts, err := l.commit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	return facts, nil
}

// TransferOwnership hands an asset to a new creator.
func (l *Ledger) TransferOwnership(ctx context.Context, caller string, id uint64, newCreator string) ([]fact.Fact, error) {
	mu := l.assetLock(id)
	mu.Lock()
	defer mu.Unlock()

	rec, err := l.registry.get(id)
	if err != nil {
		return nil, err
	}
	if rec.Creator != caller {
		return nil, Errorf(CodeUnauthorized, "caller %s is not the creator of asset %d", caller, id)
	}
	if newCreator == "" {
		return nil, Errorf(CodeInvalidArgument, "new creator principal is required")
	}

	f, err := fact.New(fact.TypeOwnershipTransferred, id, fact.OwnershipTransferred{
		ID:              id,
		PreviousCreator: rec.Creator,
		NewCreator:      newCreator,
	})
	if err != nil {
		return nil, err
	}
	facts, err := l.commit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("transfer ownership: %w", err)
	}
	return facts, nil
}

// === Reads ===

// Get returns a copy of the asset record.
func (l *Ledger) Get(id uint64) (*asset.Record, error) {
	return l.registry.get(id)
}

// Stats returns registry-wide aggregates.
func (l *Ledger) Stats() asset.Stats {
	return l.registry.stats()
}

// BalanceOf returns an account's balance, zero for unknown accounts.
func (l *Ledger) BalanceOf(account string) uint64 {
	return l.bank.balanceOf(account)
}

// TotalBalance returns the sum of all balances.
func (l *Ledger) TotalBalance() uint64 {
	return l.bank.total()
}

// Config returns the current platform configuration snapshot.
func (l *Ledger) Config() PlatformConfig {
	return *l.config.Load()
}
