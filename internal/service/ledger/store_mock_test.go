package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/repository"
)

var accountCols = []string{"account_id", "balance", "frozen_balance", "version", "created_at", "updated_at"}

var transactionCols = []string{
	"id", "seq", "account_id", "type", "amount", "frozen_delta",
	"balance_before", "balance_after", "status", "reference_type", "reference_id",
	"idempotency_key", "description", "metadata", "created_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, repository.NewAccountRepository(db), repository.NewTransactionRepository(db)), mock
}

func TestGetBalance_NoRowReadsZero(t *testing.T) {
	store, mock := newMockStore(t)
	accountID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE account_id = \$1`).
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows(accountCols))

	bal, err := store.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
	assert.Equal(t, int64(0), bal.Available)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_InsufficientFundsRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	accountID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO accounts`).WithArgs(accountID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE account_id = \$1 FOR UPDATE`).
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountID.String(), 1000, 600, 3, now, now))
	mock.ExpectRollback()

	_, err := store.ApplyDelta(context.Background(), DeltaRequest{
		AccountID: accountID,
		Amount:    -500,
		Type:      domain.TransactionTypePurchase,
	})

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_VersionConflictRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	accountID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO accounts`).WithArgs(accountID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE account_id = \$1 FOR UPDATE`).
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountID.String(), 1000, 0, 3, now, now))
	mock.ExpectQuery(`INSERT INTO transactions`).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(17))
	mock.ExpectExec(`UPDATE accounts SET balance`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.ApplyDelta(context.Background(), DeltaRequest{
		AccountID: accountID,
		Amount:    250,
		Type:      domain.TransactionTypeDeposit,
	})

	require.ErrorIs(t, err, domain.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_KeyHeldByOtherOperation(t *testing.T) {
	accountID := uuid.New()
	orderID := uuid.NewString()
	key := "chargeback:" + orderID
	orderRef := domain.Reference{Type: domain.ReferencePaymentOrder, ID: orderID}

	tests := []struct {
		name      string
		priorType domain.TransactionType
		amount    int64
		refType   string
		refID     string
	}{
		{"different type", domain.TransactionTypePurchase, -1000, "resource", uuid.NewString()},
		{"different amount", domain.TransactionTypeCorrection, -1, string(orderRef.Type), orderRef.ID},
		{"different reference", domain.TransactionTypeCorrection, -1000, string(orderRef.Type), uuid.NewString()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			now := time.Now()

			mock.ExpectBegin()
			mock.ExpectExec(`INSERT INTO accounts`).WithArgs(accountID).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT .+ FROM accounts WHERE account_id = \$1 FOR UPDATE`).
				WithArgs(accountID).
				WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountID.String(), 2000, 0, 4, now, now))
			mock.ExpectQuery(`SELECT .+ FROM transactions\s+WHERE account_id = \$1 AND idempotency_key = \$2`).
				WithArgs(accountID, key).
				WillReturnRows(sqlmock.NewRows(transactionCols).AddRow(
					uuid.NewString(), 3, accountID.String(), string(tt.priorType), tt.amount, 0,
					2000, 2000+tt.amount, "completed", tt.refType, tt.refID,
					key, "", []byte(`{}`), now,
				))
			mock.ExpectRollback()

			entry, err := store.ApplyDelta(context.Background(), DeltaRequest{
				AccountID:      accountID,
				Amount:         -1000,
				Type:           domain.TransactionTypeCorrection,
				Reference:      orderRef,
				IdempotencyKey: key,
			})

			require.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
			assert.NotErrorIs(t, err, domain.ErrDuplicateOperation)
			assert.Nil(t, entry)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSameOperation(t *testing.T) {
	ref := domain.Reference{Type: domain.ReferenceResource, ID: uuid.NewString()}
	prior := &domain.Transaction{Type: domain.TransactionTypePurchase, Amount: -500, Reference: ref}

	assert.True(t, sameOperation(prior, DeltaRequest{Type: domain.TransactionTypePurchase, Amount: -500, Reference: ref}))
	assert.False(t, sameOperation(prior, DeltaRequest{Type: domain.TransactionTypeCorrection, Amount: -500, Reference: ref}))
	assert.False(t, sameOperation(prior, DeltaRequest{Type: domain.TransactionTypePurchase, Amount: -400, Reference: ref}))
	assert.False(t, sameOperation(prior, DeltaRequest{Type: domain.TransactionTypePurchase, Amount: -500}))
}

func TestReconcile_ReadsOneSnapshot(t *testing.T) {
	store, mock := newMockStore(t)
	accountID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE account_id = \$1`).
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountID.String(), 1500, 300, 7, now, now))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\), COALESCE\(SUM\(frozen_delta\), 0\), COUNT\(\*\)`).
		WithArgs(accountID, domain.TransactionStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "frozen", "count"}).AddRow(1500, 300, 6))
	mock.ExpectCommit()

	rec, err := store.Reconcile(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent())
	assert.Equal(t, int64(1500), rec.Balance)
	assert.Equal(t, int64(300), rec.ReplayedFrozen)
	assert.Equal(t, 6, rec.EntryCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummary_ReadsOneSnapshot(t *testing.T) {
	store, mock := newMockStore(t)
	accountID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE account_id = \$1`).
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectQuery(`SELECT type, COALESCE\(SUM\(amount\), 0\) FROM transactions`).
		WithArgs(accountID, domain.TransactionStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"type", "sum"}))
	mock.ExpectCommit()

	sum, err := store.Summary(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, accountID, sum.Balance.AccountID)
	assert.Equal(t, int64(0), sum.TotalDeposited)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, defaultPageSize, 0},
		{500, 10, maxPageSize, 10},
		{5, -3, 5, 0},
	}
	for _, tt := range tests {
		l, o := normalizePage(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, l)
		assert.Equal(t, tt.wantOffset, o)
	}
}
