package credits

import (
	"context"
	"sync"

	"server/internal/domain"
)

// MemoryLedger is an in-process Ledger for tests and single-node runs.
// Accounts lock independently so unrelated users never contend.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount
}

type memoryAccount struct {
	mu       sync.Mutex
	balances Balances
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: make(map[string]*memoryAccount)}
}

func (l *MemoryLedger) account(userID string) *memoryAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[userID]
	if !ok {
		a = &memoryAccount{}
		l.accounts[userID] = a
	}
	return a
}

// Reserve atomically draws amount from the user's pools, base first.
func (l *MemoryLedger) Reserve(_ context.Context, userID string, amount int64) (Reservation, Balances, error) {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount > a.balances.Total() {
		return Reservation{}, a.balances, &domain.InsufficientCreditsError{
			Needed:    amount,
			Available: a.balances.Total(),
		}
	}
	res := split(a.balances, amount)
	a.balances.Base -= res.Base
	a.balances.Bonus -= res.Bonus
	return res, a.balances, nil
}

// Refund restores the reservation's split to the same pools it was drawn
// from.
func (l *MemoryLedger) Refund(_ context.Context, userID string, res Reservation) (Balances, error) {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances.Base += res.Base
	a.balances.Bonus += res.Bonus
	return a.balances, nil
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (Balances, error) {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances, nil
}

// Grant tops up the user's pools.
func (l *MemoryLedger) Grant(_ context.Context, userID string, base, bonus int64) (Balances, error) {
	a := l.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances.Base += base
	a.balances.Bonus += bonus
	return a.balances, nil
}
