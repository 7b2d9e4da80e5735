package withdrawal

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/secure"
	"reviewcamp/pkg/sequence"
	"reviewcamp/services/access"
	"reviewcamp/services/ledger"
	"reviewcamp/services/notification"
	"reviewcamp/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	reviewer = access.Actor{ID: "rv-1", Role: access.RoleReviewer}
	admin    = access.Actor{ID: "admin-1", Role: access.RoleAdmin}
)

func newTestService(t *testing.T, cfg *config.Config) (*Service, *ledger.Service) {
	t.Helper()
	db := testutil.NewTestDB(t, append(Models(), ledger.Models()...)...)
	node := testutil.NewNode(t)

	cipher, err := secure.NewCipher("test-secret", cipherPurpose)
	require.NoError(t, err)

	led := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	return NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Seq:      sequence.NewMemoryGenerator(),
		Ledger:   led,
		Cipher:   cipher,
		Dispatch: notification.NewDispatcher(nil),
		Config:   cfg,
	}), led
}

func credit(t *testing.T, led *ledger.Service, reviewerID string, amount int64) {
	t.Helper()
	_, err := led.Post(context.Background(), ledger.PostParams{
		ReviewerID:    reviewerID,
		Type:          ledger.TypeEarn,
		Amount:        amount,
		ReferenceType: ledger.ReferenceReview,
		ReferenceID:   fmt.Sprintf("review-%s-%d", reviewerID, amount),
	})
	require.NoError(t, err)
}

func request(amount int64) CreateInput {
	return CreateInput{
		Amount:        amount,
		BankName:      "Shinhan",
		AccountHolder: "Kim",
		AccountNumber: "110-234-567890",
	}
}

func TestCreateFreezesFeeAndReserves(t *testing.T) {
	cfg := &config.Config{}
	cfg.Withdrawal = config.Withdrawal{MinAmount: 10000, FeeFlat: 500, FeeBps: 100}
	svc, led := newTestService(t, cfg)
	ctx := context.Background()
	credit(t, led, "rv-1", 50000)

	w, err := svc.Create(ctx, reviewer, request(20000))
	require.NoError(t, err)
	require.Equal(t, StatusPending, w.Status)
	require.EqualValues(t, 700, w.Fee)
	require.EqualValues(t, 19300, w.NetAmount)
	require.Equal(t, "**********7890", w.AccountNumberMasked)
	require.NotContains(t, w.AccountNumberEnc, "567890")

	bal, err := led.GetBalance(ctx, "rv-1")
	require.NoError(t, err)
	require.EqualValues(t, 50000, bal.Balance)
	require.EqualValues(t, 20000, bal.Reserved)
	require.EqualValues(t, 30000, bal.Available)

	// a later schedule change leaves the open request alone
	svc.fees.FeeFlat = 5000
	got, err := svc.Get(ctx, reviewer, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 700, got.Fee)

	number, err := svc.AccountNumber(ctx, admin, w.ID)
	require.NoError(t, err)
	require.Equal(t, "110-234-567890", number)

	_, err = svc.AccountNumber(ctx, reviewer, w.ID)
	require.ErrorIs(t, err, errutil.ErrForbidden)
}

func TestCreateValidation(t *testing.T) {
	svc, led := newTestService(t, nil)
	ctx := context.Background()
	credit(t, led, "rv-1", 50000)

	_, err := svc.Create(ctx, reviewer, request(9999))
	require.ErrorIs(t, err, errutil.ErrValidation)

	in := request(10000)
	in.AccountNumber = "abc-123"
	_, err = svc.Create(ctx, reviewer, in)
	require.ErrorIs(t, err, errutil.ErrValidation)

	_, err = svc.Create(ctx, admin, request(10000))
	require.ErrorIs(t, err, errutil.ErrForbidden)
}

func TestCreateBalanceGuards(t *testing.T) {
	svc, led := newTestService(t, nil)
	ctx := context.Background()
	credit(t, led, "rv-1", 30000)

	_, err := svc.Create(ctx, reviewer, request(40000))
	require.ErrorIs(t, err, errutil.ErrInsufficientBalance)

	_, err = svc.Create(ctx, reviewer, request(20000))
	require.NoError(t, err)

	_, err = svc.Create(ctx, reviewer, request(20000))
	require.ErrorIs(t, err, errutil.ErrOverdraftRisk)

	report, err := svc.CheckReservation(ctx, "rv-1")
	require.NoError(t, err)
	require.True(t, report.Consistent)
	require.EqualValues(t, 20000, report.OpenAmount)
}

func TestConcurrentRequestsNeverOverdraw(t *testing.T) {
	svc, led := newTestService(t, nil)
	ctx := context.Background()
	credit(t, led, "rv-1", 50000)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Create(ctx, reviewer, request(15000)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 3, ok)

	report, err := svc.CheckReservation(ctx, "rv-1")
	require.NoError(t, err)
	require.True(t, report.Consistent)
	require.EqualValues(t, 45000, report.Reserved)
}

func TestRejectReleasesReservation(t *testing.T) {
	svc, led := newTestService(t, nil)
	ctx := context.Background()
	credit(t, led, "rv-1", 30000)

	w, err := svc.Create(ctx, reviewer, request(30000))
	require.NoError(t, err)

	_, err = svc.Reject(ctx, admin, w.ID, "")
	require.ErrorIs(t, err, errutil.ErrValidation)

	rejected, err := svc.Reject(ctx, admin, w.ID, "account holder mismatch")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	// rejecting again does not release twice
	_, err = svc.Reject(ctx, admin, w.ID, "account holder mismatch")
	require.NoError(t, err)

	bal, err := led.GetBalance(ctx, "rv-1")
	require.NoError(t, err)
	require.EqualValues(t, 30000, bal.Balance)
	require.Zero(t, bal.Reserved)

	entries, _, err := led.ListTransactions(ctx, "rv-1", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCompleteDebitsLedgerOnce(t *testing.T) {
	svc, led := newTestService(t, nil)
	ctx := context.Background()
	credit(t, led, "rv-1", 30000)

	w, err := svc.Create(ctx, reviewer, request(25000))
	require.NoError(t, err)

	_, err = svc.Complete(ctx, admin, w.ID)
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)

	_, err = svc.Approve(ctx, reviewer, w.ID)
	require.ErrorIs(t, err, errutil.ErrForbidden)

	approved, err := svc.Approve(ctx, admin, w.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	_, err = svc.Reject(ctx, admin, w.ID, "late")
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)

	completed, err := svc.Complete(ctx, admin, w.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.NotEmpty(t, completed.PointTransactionID)

	again, err := svc.Complete(ctx, admin, w.ID)
	require.NoError(t, err)
	require.Equal(t, completed.PointTransactionID, again.PointTransactionID)

	bal, err := led.GetBalance(ctx, "rv-1")
	require.NoError(t, err)
	require.EqualValues(t, 5000, bal.Balance)
	require.Zero(t, bal.Reserved)

	report, err := led.Audit(ctx, "rv-1")
	require.NoError(t, err)
	require.True(t, report.Consistent)

	check, err := svc.CheckReservation(ctx, "rv-1")
	require.NoError(t, err)
	require.True(t, check.Consistent)
}

func TestGetIsOwnerOnly(t *testing.T) {
	svc, led := newTestService(t, nil)
	ctx := context.Background()
	credit(t, led, "rv-1", 30000)

	w, err := svc.Create(ctx, reviewer, request(10000))
	require.NoError(t, err)

	_, err = svc.Get(ctx, access.Actor{ID: "rv-2", Role: access.RoleReviewer}, w.ID)
	require.ErrorIs(t, err, errutil.ErrForbidden)

	mine, _, err := svc.List(ctx, "rv-1", "", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestEmptyIdsAreRejected(t *testing.T) {
	svc, led := newTestService(t, nil)
	ctx := context.Background()
	credit(t, led, "rv-1", 30000)

	_, err := svc.Create(ctx, reviewer, request(10000))
	require.NoError(t, err)

	_, err = svc.CheckReservation(ctx, "")
	require.ErrorIs(t, err, errutil.ErrValidation)

	_, err = svc.Get(ctx, admin, "")
	require.ErrorIs(t, err, errutil.ErrNotFound)

	_, err = svc.Approve(ctx, admin, "")
	require.ErrorIs(t, err, errutil.ErrNotFound)
}
