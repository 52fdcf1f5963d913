package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront-rewards/pkg/db/option"
	"storefront-rewards/pkg/db/pagination"
	"storefront-rewards/pkg/repository"
	"storefront-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn     func(tx *gorm.DB) repository.Repository[T]
	findFn        func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn      func(ctx context.Context, resource *T) error
	updateFn      func(ctx context.Context, resourceID string, resource any) error
	countFn       func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &UserBalance{}, &LedgerEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestGetBalanceInitializesZeroRow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", bal.UserID)
	require.Zero(t, bal.AvailablePoints)
	require.Zero(t, bal.LifetimeEarned)

	again, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, bal.ID, again.ID)
}

func TestCommitEarnUpdatesBalanceAndLog(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bal, err := svc.Commit(ctx, CommitParams{
		UserID:      "user-1",
		Delta:       120,
		Kind:        KindEarned,
		Reason:      "spend",
		ReferenceID: "order-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(120), bal.AvailablePoints)
	require.Equal(t, int64(120), bal.LifetimeEarned)

	entries, err := svc.Entries(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(120), entries[0].Delta)
	require.Equal(t, "GENESIS", entries[0].PreviousHash)
	require.NotEmpty(t, entries[0].TransactionID)

	require.NoError(t, svc.Reconcile(ctx, "user-1"))
}

func TestCommitRedeemSignsEntryNegative(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 100, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	bal, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 40, Kind: KindRedeemed, Reason: "redemption", ReferenceID: "rdm-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(60), bal.AvailablePoints)
	require.Equal(t, int64(40), bal.LifetimeRedeemed)

	entries, err := svc.Entries(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(-40), entries[1].Delta)
	require.Equal(t, entries[0].Hash, entries[1].PreviousHash)

	require.NoError(t, svc.Reconcile(ctx, "user-1"))
}

func TestCommitInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 450, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 500, Kind: KindRedeemed, Reason: "redemption", ReferenceID: "rdm-1",
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(450), bal.AvailablePoints)

	entries, err := svc.Entries(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSequentialRedeemsCannotOverdraw(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 400, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 300, Kind: KindRedeemed, Reason: "redemption", ReferenceID: "rdm-1",
	})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 300, Kind: KindRedeemed, Reason: "redemption", ReferenceID: "rdm-2",
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.AvailablePoints)
}

func TestCommitDuplicateReference(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 50, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 50, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.ErrorIs(t, err, ErrDuplicateReference)

	entries, err := svc.Entries(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(50), bal.AvailablePoints)
}

func TestCommitDuplicateReferencePrecheck(t *testing.T) {
	svc := &Service{
		entries: &repoMock[LedgerEntry]{
			findOneFn: func(ctx context.Context, _ *LedgerEntry, opts ...option.QueryOption) (*LedgerEntry, error) {
				return &LedgerEntry{ID: "existing"}, nil
			},
		},
	}

	_, err := svc.Commit(context.Background(), CommitParams{
		UserID: "user-1", Delta: 10, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.ErrorIs(t, err, ErrDuplicateReference)
}

func TestCommitValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 0, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.Error(t, err)

	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 10, Kind: KindEarned, Reason: "spend",
	})
	require.Error(t, err)

	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 10, Kind: EntryKind("bogus"), Reason: "spend", ReferenceID: "order-1",
	})
	require.Error(t, err)
}

func TestCommitNotifiesObserversOnEarn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var notified []int64
	svc.observers = []Observer{observerFunc(func(_ context.Context, userID string, available int64) error {
		require.Equal(t, "user-1", userID)
		notified = append(notified, available)
		return nil
	})}

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 150, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)
	require.Equal(t, []int64{150}, notified)

	// debits never notify
	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 50, Kind: KindRedeemed, Reason: "redemption", ReferenceID: "rdm-1",
	})
	require.NoError(t, err)
	require.Len(t, notified, 1)
}

func TestCommitObserverFailureDoesNotFailCommit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.observers = []Observer{observerFunc(func(context.Context, string, int64) error {
		return errors.New("observer down")
	})}

	bal, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 10, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), bal.AvailablePoints)
}

type observerFunc func(ctx context.Context, userID string, available int64) error

func (f observerFunc) OnBalanceIncrease(ctx context.Context, userID string, available int64) error {
	return f(ctx, userID, available)
}

func TestReconcileDetectsTamperedBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 100, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Reconcile(ctx, "user-1"))

	require.NoError(t, svc.db.Model(&UserBalance{}).
		Where("user_id = ?", "user-1").
		Update("available_points", 999).Error)

	require.Error(t, svc.Reconcile(ctx, "user-1"))
}

func TestReconcileDetectsBrokenChain(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 100, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.db.Model(&LedgerEntry{}).
		Where("user_id = ?", "user-1").
		Update("hash", "tampered").Error)

	require.Error(t, svc.Reconcile(ctx, "user-1"))
}

func TestExpireOlderThanFIFO(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 100, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 30, Kind: KindRedeemed, Reason: "redemption", ReferenceID: "rdm-1",
	})
	require.NoError(t, err)

	// age the earned entry past the cutoff
	old := time.Now().AddDate(0, -13, 0)
	require.NoError(t, svc.db.Model(&LedgerEntry{}).
		Where("reference_id = ?", "order-1").
		Update("created_at", old).Error)

	cutoff := time.Now().AddDate(0, -12, 0)

	expired, err := svc.ExpireOlderThan(ctx, "user-1", cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(70), expired)

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, bal.AvailablePoints)
	require.Equal(t, int64(70), bal.LifetimeExpired)

	// rerun for the same day is a no-op
	expired, err = svc.ExpireOlderThan(ctx, "user-1", cutoff)
	require.NoError(t, err)
	require.Zero(t, expired)
}

func TestExpireOlderThanNothingExpirable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 100, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	expired, err := svc.ExpireOlderThan(ctx, "user-1", time.Now().AddDate(0, -12, 0))
	require.NoError(t, err)
	require.Zero(t, expired)
}

func TestActiveUserIDs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 10, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	_, err = svc.GetBalance(ctx, "user-2")
	require.NoError(t, err)

	ids, err := svc.ActiveUserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"user-1"}, ids)
}

func TestConcurrentRedeemsAllowExactlyOne(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 400, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Commit(ctx, CommitParams{
				UserID:      "user-1",
				Delta:       300,
				Kind:        KindRedeemed,
				Reason:      "redeem",
				ReferenceID: fmt.Sprintf("redeem-%d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var rejected int
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientBalance)
			rejected++
		}
	}
	require.Equal(t, 1, rejected)

	bal, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.AvailablePoints)
	require.NoError(t, svc.Reconcile(ctx, "user-1"))
}

func TestEntriesStableOrderWithinSameTimestamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 10, Kind: KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)
	_, err = svc.Commit(ctx, CommitParams{
		UserID: "user-1", Delta: 20, Kind: KindEarned, Reason: "spend", ReferenceID: "order-2",
	})
	require.NoError(t, err)

	// Collapse both timestamps so only the id tiebreak can order the chain.
	shared := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, svc.db.Model(&LedgerEntry{}).
		Where("user_id = ?", "user-1").
		Update("created_at", shared).Error)

	entries, err := svc.Entries(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "order-1", entries[0].ReferenceID)
	require.Equal(t, "order-2", entries[1].ReferenceID)
	require.Less(t, entries[0].ID, entries[1].ID)
}

func TestEntriesPageWalksCursor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.Commit(ctx, CommitParams{
			UserID:      "user-1",
			Delta:       int64(i * 10),
			Kind:        KindEarned,
			Reason:      "spend",
			ReferenceID: fmt.Sprintf("order-%d", i),
		})
		require.NoError(t, err)
	}

	var seen []string
	page := pagination.Pagination{Limit: 2}
	for {
		rows, info, err := svc.EntriesPage(ctx, "user-1", page)
		require.NoError(t, err)
		require.LessOrEqual(t, len(rows), 2)
		for _, e := range rows {
			seen = append(seen, e.ReferenceID)
		}
		if !info.HasMore {
			break
		}
		require.NotEmpty(t, info.NextCursor)
		page.Cursor = info.NextCursor
	}

	require.Equal(t, []string{"order-1", "order-2", "order-3", "order-4", "order-5"}, seen)
}

func TestEntriesPageRejectsMalformedCursor(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.EntriesPage(context.Background(), "user-1", pagination.Pagination{
		Cursor: "not-base64!",
		Limit:  10,
	})
	require.ErrorIs(t, err, ErrInvalidCursor)
}
