package expiry

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront-rewards/services/ledger"
	"storefront-rewards/services/pointsconfig"
	"storefront-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestSweep(t *testing.T) (*Service, *ledger.Service, *pointsconfig.Resolver, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&pointsconfig.PointsConfig{},
		&ledger.UserBalance{},
		&ledger.LedgerEntry{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	led := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	resolver := pointsconfig.NewResolver(pointsconfig.ResolverParams{DB: db, Node: node})

	svc := NewService(ServiceParams{Ledger: led, Configs: resolver})

	return svc, led, resolver, db
}

func age(t *testing.T, db *gorm.DB, referenceID string, months int) {
	t.Helper()
	require.NoError(t, db.Model(&ledger.LedgerEntry{}).
		Where("reference_id = ?", referenceID).
		Update("created_at", time.Now().AddDate(0, -months, 0)).Error)
}

func TestRunExpiresAgedPoints(t *testing.T) {
	svc, led, resolver, db := newTestSweep(t)
	ctx := context.Background()

	_, err := resolver.Create(ctx, pointsconfig.CreateParams{
		PointValueCurrency: 1.0,
		ExpiryMonths:       12,
	})
	require.NoError(t, err)

	_, err = led.Commit(ctx, ledger.CommitParams{
		UserID: "user-1", Delta: 100, Kind: ledger.KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)
	age(t, db, "order-1", 13)

	_, err = led.Commit(ctx, ledger.CommitParams{
		UserID: "user-2", Delta: 80, Kind: ledger.KindEarned, Reason: "spend", ReferenceID: "order-2",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Run(ctx))

	bal1, err := led.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, bal1.AvailablePoints)
	require.Equal(t, int64(100), bal1.LifetimeExpired)

	// recent points survive
	bal2, err := led.GetBalance(ctx, "user-2")
	require.NoError(t, err)
	require.Equal(t, int64(80), bal2.AvailablePoints)
}

func TestRunSkipsWithoutConfig(t *testing.T) {
	svc, led, _, db := newTestSweep(t)
	ctx := context.Background()

	_, err := led.Commit(ctx, ledger.CommitParams{
		UserID: "user-1", Delta: 100, Kind: ledger.KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)
	age(t, db, "order-1", 24)

	require.NoError(t, svc.Run(ctx))

	bal, err := led.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.AvailablePoints)
}

func TestRunSkipsWhenExpiryDisabled(t *testing.T) {
	svc, led, resolver, db := newTestSweep(t)
	ctx := context.Background()

	_, err := resolver.Create(ctx, pointsconfig.CreateParams{
		PointValueCurrency: 1.0,
		ExpiryMonths:       0,
	})
	require.NoError(t, err)

	_, err = led.Commit(ctx, ledger.CommitParams{
		UserID: "user-1", Delta: 100, Kind: ledger.KindEarned, Reason: "spend", ReferenceID: "order-1",
	})
	require.NoError(t, err)
	age(t, db, "order-1", 24)

	require.NoError(t, svc.Run(ctx))

	bal, err := led.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.AvailablePoints)
}

func TestNextRunTime(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 30, 0, 0, time.UTC)
	next := nextRunTime(now, 1, 0)
	require.Equal(t, time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC), next)

	late := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
	next = nextRunTime(late, 1, 0)
	require.Equal(t, time.Date(2024, 3, 11, 1, 0, 0, 0, time.UTC), next)
}
