package domain

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	AccountID     uuid.UUID
	Balance       int64
	FrozenBalance int64
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (a *Account) Available() int64 {
	return a.Balance - a.FrozenBalance
}

func (a *Account) Snapshot() Balance {
	return Balance{
		AccountID: a.AccountID,
		Balance:   a.Balance,
		Frozen:    a.FrozenBalance,
		Available: a.Available(),
	}
}

type Balance struct {
	AccountID uuid.UUID
	Balance   int64
	Frozen    int64
	Available int64
}

// BalanceSummary is derived from the transaction log on every read; none of
// the totals are stored.
type BalanceSummary struct {
	Balance
	TotalDeposited int64
	TotalWithdrawn int64
	TotalSpent     int64
	TotalRefunded  int64
}

type Reconciliation struct {
	AccountID       uuid.UUID
	Balance         int64
	ReplayedBalance int64
	Frozen          int64
	ReplayedFrozen  int64
	EntryCount      int
}

func (r Reconciliation) Consistent() bool {
	return r.Balance == r.ReplayedBalance && r.Frozen == r.ReplayedFrozen
}
