package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRecordAndGet(t *testing.T) {
	svc := NewService(ServiceParams{DB: testutil.NewTestDB(t, &Order{})})
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, &Order{
		ID:          "order-1",
		UserID:      "user-1",
		TotalAmount: 250,
		Status:      StatusCompleted,
	}))

	ord, err := svc.Get(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, int64(250), ord.TotalAmount)

	// replay updates in place
	require.NoError(t, svc.Record(ctx, &Order{
		ID:          "order-1",
		UserID:      "user-1",
		TotalAmount: 300,
		Status:      StatusCompleted,
	}))

	ord, err = svc.Get(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, int64(300), ord.TotalAmount)
}

func TestGetUnknownOrder(t *testing.T) {
	svc := NewService(ServiceParams{DB: testutil.NewTestDB(t, &Order{})})

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestGetForUserEnforcesOwnership(t *testing.T) {
	svc := NewService(ServiceParams{DB: testutil.NewTestDB(t, &Order{})})
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, &Order{ID: "order-1", UserID: "user-1", Status: StatusCompleted}))

	_, err := svc.GetForUser(ctx, "order-1", "user-1")
	require.NoError(t, err)

	_, err = svc.GetForUser(ctx, "order-1", "user-2")
	require.ErrorIs(t, err, ErrOrderOwnership)
}
