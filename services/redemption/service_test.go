package redemption

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-rewards/services/ledger"
	"storefront-rewards/services/order"
	"storefront-rewards/services/pointsconfig"
	"storefront-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Service, *order.Service, *pointsconfig.Resolver) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&pointsconfig.PointsConfig{},
		&ledger.UserBalance{},
		&ledger.LedgerEntry{},
		&order.Order{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	led := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	resolver := pointsconfig.NewResolver(pointsconfig.ResolverParams{DB: db, Node: node})
	orders := order.NewService(order.ServiceParams{DB: db})

	engine := NewEngine(EngineParams{
		Ledger:  led,
		Configs: resolver,
		Orders:  orders,
	})

	return engine, led, orders, resolver
}

func earn(t *testing.T, led *ledger.Service, userID string, points int64) {
	t.Helper()
	_, err := led.Commit(context.Background(), ledger.CommitParams{
		UserID:      userID,
		Delta:       points,
		Kind:        ledger.KindEarned,
		Reason:      "spend",
		ReferenceID: "seed:" + userID,
	})
	require.NoError(t, err)
}

func TestRedeemConvertsAtActiveRate(t *testing.T) {
	engine, led, _, resolver := newTestEngine(t)
	ctx := context.Background()

	_, err := resolver.Create(ctx, pointsconfig.CreateParams{PointValueCurrency: 0.5})
	require.NoError(t, err)

	earn(t, led, "user-1", 100)

	result, err := engine.Redeem(ctx, "user-1", 40, "")
	require.NoError(t, err)
	require.Equal(t, int64(40), result.Points)
	require.Equal(t, 20.0, result.CurrencyAmount)
	require.Equal(t, int64(60), result.Available)
	require.NotEmpty(t, result.Code)

	bal, err := led.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(60), bal.AvailablePoints)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	engine, led, _, resolver := newTestEngine(t)
	ctx := context.Background()

	_, err := resolver.Create(ctx, pointsconfig.CreateParams{PointValueCurrency: 1.0})
	require.NoError(t, err)

	earn(t, led, "user-1", 450)

	_, err = engine.Redeem(ctx, "user-1", 500, "")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	bal, err := led.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(450), bal.AvailablePoints)
}

func TestRedeemUnknownOrder(t *testing.T) {
	engine, led, _, _ := newTestEngine(t)
	ctx := context.Background()

	earn(t, led, "user-1", 100)

	_, err := engine.Redeem(ctx, "user-1", 10, "missing-order")
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestRedeemForeignOrder(t *testing.T) {
	engine, led, orders, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, orders.Record(ctx, &order.Order{
		ID:     "order-1",
		UserID: "someone-else",
		Status: order.StatusCompleted,
	}))

	earn(t, led, "user-1", 100)

	_, err := engine.Redeem(ctx, "user-1", 10, "order-1")
	require.ErrorIs(t, err, ErrInvalidOrder)

	bal, err := led.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.AvailablePoints)
}

func TestRedeemAgainstOwnOrder(t *testing.T) {
	engine, led, orders, resolver := newTestEngine(t)
	ctx := context.Background()

	_, err := resolver.Create(ctx, pointsconfig.CreateParams{PointValueCurrency: 1.0})
	require.NoError(t, err)

	require.NoError(t, orders.Record(ctx, &order.Order{
		ID:          "order-1",
		UserID:      "user-1",
		TotalAmount: 5000,
		Status:      order.StatusCompleted,
	}))

	earn(t, led, "user-1", 100)

	result, err := engine.Redeem(ctx, "user-1", 25, "order-1")
	require.NoError(t, err)
	require.Equal(t, 25.0, result.CurrencyAmount)

	entries, err := led.Entries(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "order-1", entries[1].RelatedOrderID)
}

func TestRedeemRejectsNonPositivePoints(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.Redeem(context.Background(), "user-1", 0, "")
	require.Error(t, err)
}
