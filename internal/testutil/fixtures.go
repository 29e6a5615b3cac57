package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/repository"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
)

// NewStore wires a ledger store over the test database.
func NewStore(db *sql.DB) *ledger.Store {
	return ledger.NewStore(db, repository.NewAccountRepository(db), repository.NewTransactionRepository(db))
}

// SeedDeposit credits an account through the ledger so the log and the
// balance agree from the start.
func SeedDeposit(t *testing.T, store *ledger.Store, accountID uuid.UUID, amount int64) *domain.Transaction {
	t.Helper()

	entry, err := store.ApplyDelta(context.Background(), ledger.DeltaRequest{
		AccountID:   accountID,
		Amount:      amount,
		Type:        domain.TransactionTypeDeposit,
		Reference:   domain.Reference{Type: domain.ReferencePaymentOrder, ID: uuid.NewString()},
		Description: "seed deposit",
	})
	if err != nil {
		t.Fatalf("seed deposit for %s: %v", accountID, err)
	}
	return entry
}

func SeedResource(t *testing.T, db *sql.DB, accountID uuid.UUID, status domain.ResourceStatus) *domain.Resource {
	t.Helper()

	now := time.Now().UTC()
	res := &domain.Resource{
		ID:        uuid.New(),
		AccountID: accountID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repository.NewResourceRepository(db).Create(context.Background(), res); err != nil {
		t.Fatalf("seed resource for %s: %v", accountID, err)
	}
	return res
}

func GetBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) (balance, frozen int64) {
	t.Helper()

	err := db.QueryRow(`SELECT balance, frozen_balance FROM accounts WHERE account_id = $1`, accountID).
		Scan(&balance, &frozen)
	if err != nil {
		t.Fatalf("get balance %s: %v", accountID, err)
	}
	return balance, frozen
}

func CountEntries(t *testing.T, db *sql.DB, ref domain.Reference) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE reference_type = $1 AND reference_id = $2`,
		ref.Type, ref.ID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count entries for %s/%s: %v", ref.Type, ref.ID, err)
	}
	return count
}
