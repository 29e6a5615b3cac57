package withdrawal_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/label-ledger/internal/config"
	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/repository"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
	"github.com/josh-kwaku/label-ledger/internal/service/withdrawal"
	"github.com/josh-kwaku/label-ledger/internal/testutil"
)

type fakePayouts struct {
	mu    sync.Mutex
	calls []withdrawal.PayoutRequest
	err   error
}

func (f *fakePayouts) SubmitPayout(_ context.Context, req withdrawal.PayoutRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}

type fixture struct {
	db       *sql.DB
	store    *ledger.Store
	svc      *withdrawal.Service
	payouts  *fakePayouts
	notifier *fakeNotifier
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store := testutil.NewStore(db)
	payouts := &fakePayouts{}
	notifier := &fakeNotifier{}
	svc := withdrawal.NewService(
		repository.NewWithdrawalRepository(db),
		store,
		repository.NewTransactionRepository(db),
		payouts,
		notifier,
		&config.Config{MinWithdrawalAmount: 100},
	)
	return &fixture{db: db, store: store, svc: svc, payouts: payouts, notifier: notifier}
}

func details() domain.PayoutDetails {
	return domain.PayoutDetails{
		Method:        domain.PayoutMethodCard,
		BankName:      "Tinkoff",
		CardNumber:    "4276 1600 1234 5678",
		RecipientName: "Ivan Petrov",
	}
}

func TestRequestWithdrawal_InsufficientFunds(t *testing.T) {
	f := setup(t)
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	_, err := f.svc.RequestWithdrawal(context.Background(), withdrawal.Request{
		AccountID:     accountID,
		Amount:        1500,
		PayoutDetails: details(),
	})

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	var fe *domain.FundsError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, int64(1000), fe.Available)

	balance, frozen := testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, int64(0), frozen)

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM withdrawal_requests WHERE account_id = $1`, accountID).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithdrawal_ApproveThenPay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	adminID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	w, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{
		AccountID:     accountID,
		Amount:        600,
		PayoutDetails: details(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusRequested, w.Status)
	assert.Equal(t, "****5678", w.PayoutDetails.CardNumber)
	require.NotNil(t, w.FreezeTransactionID)

	bal, err := f.store.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), bal.Available)
	assert.Equal(t, int64(600), bal.Frozen)

	w, err = f.svc.Approve(ctx, w.ID, withdrawal.Decision{ActorID: adminID, Comment: "ok"})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusApproved, w.Status)
	require.Len(t, f.payouts.calls, 1)
	assert.Equal(t, int64(600), f.payouts.calls[0].Amount)

	w, err = f.svc.MarkPaid(ctx, w.ID, withdrawal.Decision{ActorID: adminID})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPaid, w.Status)
	assert.NotNil(t, w.PaidAt)

	balance, frozen := testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(400), balance)
	assert.Equal(t, int64(0), frozen)

	detail, err := f.svc.Get(ctx, w.ID, &accountID)
	require.NoError(t, err)
	require.Len(t, detail.Transactions, 2)
	assert.Equal(t, domain.TransactionTypeFreeze, detail.Transactions[0].Type)
	assert.Equal(t, domain.TransactionTypeWithdrawal, detail.Transactions[1].Type)

	rec, err := f.store.Reconcile(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent())

	sum, err := f.store.Summary(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), sum.TotalWithdrawn)
}

func TestRequestWithdrawal_ConcurrentRequests(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{
				AccountID:     accountID,
				Amount:        600,
				PayoutDetails: details(),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	balance, frozen := testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, int64(600), frozen)
}

func TestWithdrawal_RejectReleasesHold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	w, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 600, PayoutDetails: details()})
	require.NoError(t, err)

	w, err = f.svc.Reject(ctx, w.ID, withdrawal.Decision{ActorID: uuid.New(), Comment: "card mismatch"})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusRejected, w.Status)
	require.NotNil(t, w.AdminComment)
	assert.Equal(t, "card mismatch", *w.AdminComment)

	balance, frozen := testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, int64(0), frozen)

	again, err := f.svc.Reject(ctx, w.ID, withdrawal.Decision{ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusRejected, again.Status)
	_, frozen = testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(0), frozen)

	_, err = f.svc.Approve(ctx, w.ID, withdrawal.Decision{ActorID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Empty(t, f.payouts.calls)
}

func TestWithdrawal_Cancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	w, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 300, PayoutDetails: details()})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, w.ID, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	w, err = f.svc.Cancel(ctx, w.ID, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusRejected, w.Status)
	require.NotNil(t, w.DecidedBy)
	assert.Equal(t, accountID, *w.DecidedBy)

	bal, err := f.store.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Available)
}

func TestWithdrawal_CannotCancelApproved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	w, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 300, PayoutDetails: details()})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, w.ID, withdrawal.Decision{ActorID: uuid.New()})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, w.ID, accountID)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, frozen := testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(300), frozen)
}

func TestWithdrawal_PayBeforeApproveIsRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	w, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 300, PayoutDetails: details()})
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, w.ID, withdrawal.Decision{ActorID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	balance, frozen := testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, int64(300), frozen)
}

func TestWithdrawal_ApproveTwiceSubmitsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	w, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 300, PayoutDetails: details()})
	require.NoError(t, err)

	for range 2 {
		_, err = f.svc.Approve(ctx, w.ID, withdrawal.Decision{ActorID: uuid.New()})
		require.NoError(t, err)
	}
	assert.Len(t, f.payouts.calls, 1)
}

func TestWithdrawal_PayoutFailureKeepsApproval(t *testing.T) {
	f := setup(t)
	f.payouts.err = errors.New("provider down")
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	w, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 300, PayoutDetails: details()})
	require.NoError(t, err)

	w, err = f.svc.Approve(ctx, w.ID, withdrawal.Decision{ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusApproved, w.Status)
}

func TestRequestWithdrawal_IdempotencyKey(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 1000)

	req := withdrawal.Request{AccountID: accountID, Amount: 300, PayoutDetails: details(), IdempotencyKey: "wd-1"}
	first, err := f.svc.RequestWithdrawal(ctx, req)
	require.NoError(t, err)

	second, err := f.svc.RequestWithdrawal(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, frozen := testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(300), frozen)

	req.Amount = 400
	_, err = f.svc.RequestWithdrawal(ctx, req)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
}

func TestRequestWithdrawal_SameKeyAcrossInstances(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 500)

	other := withdrawal.NewService(
		repository.NewWithdrawalRepository(f.db),
		testutil.NewStore(f.db),
		repository.NewTransactionRepository(f.db),
		f.payouts,
		f.notifier,
		&config.Config{MinWithdrawalAmount: 100},
	)
	instances := []*withdrawal.Service{f.svc, other}
	req := withdrawal.Request{AccountID: accountID, Amount: 300, PayoutDetails: details(), IdempotencyKey: "wd-shared"}

	const attempts = 6
	var (
		wg   sync.WaitGroup
		ids  = make([]uuid.UUID, attempts)
		errs = make([]error, attempts)
	)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := instances[i%len(instances)].RequestWithdrawal(ctx, req)
			errs[i] = err
			if w != nil {
				ids[i] = w.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range attempts {
		require.NoError(t, errs[i], "attempt %d", i)
		assert.Equal(t, ids[0], ids[i])
	}

	_, frozen := testutil.GetBalance(t, f.db, accountID)
	assert.Equal(t, int64(300), frozen)
}

func TestRequestWithdrawal_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()

	_, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 50, PayoutDetails: details()})
	require.ErrorIs(t, err, domain.ErrBelowMinimum)
	var me *domain.MinimumError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, int64(100), me.Minimum)

	d := details()
	d.RecipientName = " "
	_, err = f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 500, PayoutDetails: d})
	require.ErrorIs(t, err, domain.ErrMissingField)
	var fe *domain.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "recipient_name", fe.Field)

	_, err = f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: -5, PayoutDetails: details()})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestListByStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	accountID := uuid.New()
	testutil.SeedDeposit(t, f.store, accountID, 5000)

	for range 3 {
		_, err := f.svc.RequestWithdrawal(ctx, withdrawal.Request{AccountID: accountID, Amount: 200, PayoutDetails: details()})
		require.NoError(t, err)
	}

	list, total, err := f.svc.ListByStatus(ctx, domain.WithdrawalStatusRequested, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, list, 2)
	assert.False(t, list[0].CreatedAt.After(list[1].CreatedAt))

	mine, total, err := f.svc.List(ctx, accountID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, mine, 3)

	_, _, err = f.svc.ListByStatus(ctx, "unknown", 10, 0)
	require.ErrorIs(t, err, domain.ErrValidation)
}
