package engine

import (
	"fmt"
	"sync"
)

// Bank is the funds-transfer primitive the engine uses to move value
// between external accounts and custody escrow. The engine never touches
// external balances except through this interface.
type Bank interface {
	// Debit pulls amount from an external account into escrow.
	Debit(account string, amount uint64) error
	// Credit pushes amount from escrow out to an external account.
	Credit(account string, amount uint64) error
}

// MemoryBank is an in-process Bank for tests and local runs.
type MemoryBank struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{balances: make(map[string]uint64)}
}

// Fund seeds an external account balance.
func (b *MemoryBank) Fund(account string, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Balance reports an external account balance.
func (b *MemoryBank) Balance(account string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}

func (b *MemoryBank) Debit(account string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[account] < amount {
		return fmt.Errorf("%w: account %s has %d, need %d",
			ErrInsufficientFunds, account, b.balances[account], amount)
	}
	b.balances[account] -= amount
	return nil
}

func (b *MemoryBank) Credit(account string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
	return nil
}
