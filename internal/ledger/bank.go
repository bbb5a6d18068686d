package ledger

import (
	"math"
	"sync"
)

// bank is the in-memory balance book. The sum of all balances changes only
// through deposits; settlements move funds between accounts and conserve
// the total exactly.
type bank struct {
	mu       sync.RWMutex
	balances map[string]uint64
}

func newBank() *bank {
	return &bank{balances: make(map[string]uint64)}
}

func (b *bank) balanceOf(account string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[account]
}

// deposit credits an account and returns the new balance.
func (b *bank) deposit(account string, amount uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.balances[account]
	if current > math.MaxUint64-amount {
		return 0, Errorf(CodeOverflow, "deposit of %d would overflow account %s", amount, account)
	}
	b.balances[account] = current + amount
	return current + amount, nil
}

// settle debits the payer by amount and credits treasury and creator with
// the split. It either applies all three movements or none: every check
// runs against a scratch view before the book is touched, so a failure
// leaves no state change. Accounts may alias (payer paying themselves);
// the scratch map makes that safe.
func (b *bank) settle(payer, treasury, creator string, amount, fee, share uint64) error {
	if fee > amount || amount-fee != share {
		return Errorf(CodeOverflow, "split %d+%d does not conserve amount %d", fee, share, amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	scratch := map[string]uint64{
		payer:    b.balances[payer],
		treasury: b.balances[treasury],
		creator:  b.balances[creator],
	}

	if scratch[payer] < amount {
		return Errorf(CodeInsufficientFunds, "insufficient balance: available %d, requested %d", scratch[payer], amount)
	}
	scratch[payer] -= amount

	if scratch[treasury] > math.MaxUint64-fee {
		return Errorf(CodeOverflow, "treasury credit of %d would overflow", fee)
	}
	scratch[treasury] += fee

	if scratch[creator] > math.MaxUint64-share {
		return Errorf(CodeOverflow, "creator credit of %d would overflow", share)
	}
	scratch[creator] += share

	for account, balance := range scratch {
		b.balances[account] = balance
	}
	return nil
}

// canSettle runs the settle checks without applying anything.
func (b *bank) canSettle(payer, treasury, creator string, amount, fee, share uint64) error {
	if fee > amount || amount-fee != share {
		return Errorf(CodeOverflow, "split %d+%d does not conserve amount %d", fee, share, amount)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.balances[payer] < amount {
		return Errorf(CodeInsufficientFunds, "insufficient balance: available %d, requested %d", b.balances[payer], amount)
	}
	// Credits land on the post-debit view when accounts alias.
	scratch := map[string]uint64{
		payer:    b.balances[payer],
		treasury: b.balances[treasury],
		creator:  b.balances[creator],
	}
	scratch[payer] -= amount
	if scratch[treasury] > math.MaxUint64-fee {
		return Errorf(CodeOverflow, "treasury credit of %d would overflow", fee)
	}
	scratch[treasury] += fee
	if scratch[creator] > math.MaxUint64-share {
		return Errorf(CodeOverflow, "creator credit of %d would overflow", share)
	}
	return nil
}

// total returns the sum of every balance.
func (b *bank) total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sum uint64
	for _, bal := range b.balances {
		sum += bal
	}
	return sum
}
