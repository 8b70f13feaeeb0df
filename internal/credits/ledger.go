// Package credits implements the prepaid credit ledger. Every generation
// job draws credits at admission and settles them exactly once at its
// terminal state: completion keeps the deduction, failure refunds the exact
// per-pool split recorded at reserve time.
package credits

import "context"

// Balances is a user's two credit pools. Both are always >= 0.
type Balances struct {
	Base  int64
	Bonus int64
}

// Total is the spendable sum across pools.
func (b Balances) Total() int64 { return b.Base + b.Bonus }

// Reservation records how much was drawn from each pool for one job. A
// refund restores exactly this split so the pools stay individually
// correct, not just the total.
type Reservation struct {
	Base  int64
	Bonus int64
}

// Total is the amount held by this reservation.
func (r Reservation) Total() int64 { return r.Base + r.Bonus }

// Ledger is the durable per-user balance store. Reserve draws from the base
// pool first and only then from the bonus pool; Refund is its exact
// inverse. Reserve must be atomic with respect to concurrent reserves for
// the same user.
type Ledger interface {
	Reserve(ctx context.Context, userID string, amount int64) (Reservation, Balances, error)
	Refund(ctx context.Context, userID string, res Reservation) (Balances, error)
	Balance(ctx context.Context, userID string) (Balances, error)
	Grant(ctx context.Context, userID string, base, bonus int64) (Balances, error)
}

// split computes the base-first draw order for an amount against balances.
// Callers must have already verified amount <= b.Total().
func split(b Balances, amount int64) Reservation {
	fromBase := amount
	if fromBase > b.Base {
		fromBase = b.Base
	}
	return Reservation{Base: fromBase, Bonus: amount - fromBase}
}
