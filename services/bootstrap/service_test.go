package bootstrap

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-rewards/services/pointsconfig"
	"storefront-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestMigrateCreatesSchemaAndSeedsConfig(t *testing.T) {
	db := testutil.NewTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{DB: db, Node: node})
	ctx := context.Background()

	require.NoError(t, svc.Migrate(ctx))

	for _, table := range []string{
		"points_configs", "user_balances", "ledger_entries",
		"referrals", "milestone_crossings", "notifications", "orders",
	} {
		require.True(t, db.Migrator().HasTable(table), table)
	}

	resolver := pointsconfig.NewResolver(pointsconfig.ResolverParams{DB: db, Node: node})
	cfg, err := resolver.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, 1.0, cfg.PointValueCurrency)

	// second run keeps the single seed row
	require.NoError(t, svc.Migrate(ctx))
	count, err := svc.configs.Count(ctx, &pointsconfig.PointsConfig{})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}
