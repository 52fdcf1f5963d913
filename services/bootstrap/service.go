package bootstrap

import (
	"context"

	"storefront-rewards/pkg/repository"
	"storefront-rewards/services/ledger"
	"storefront-rewards/services/milestone"
	"storefront-rewards/services/notification"
	"storefront-rewards/services/order"
	"storefront-rewards/services/pointsconfig"
	"storefront-rewards/services/referral"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service prepares the database schema and seeds the initial points
// configuration when the table is empty.
type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	configs repository.Repository[pointsconfig.PointsConfig]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		configs: repository.ProvideStore[pointsconfig.PointsConfig](p.DB),
	}
}

func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&pointsconfig.PointsConfig{},
		&ledger.UserBalance{},
		&ledger.LedgerEntry{},
		&referral.Referral{},
		&milestone.MilestoneCrossing{},
		&notification.Notification{},
		&order.Order{},
	); err != nil {
		zap.L().Error("[bootstrap] schema migration failed", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] schema migrated")
	return s.seedConfig(ctx)
}

func (s *Service) seedConfig(ctx context.Context) error {
	count, err := s.configs.Count(ctx, &pointsconfig.PointsConfig{})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := pointsconfig.Default()
	seed.ID = s.node.Generate().String()

	if err := s.configs.Create(ctx, seed); err != nil {
		zap.L().Error("[bootstrap] failed to seed points configuration", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] seeded default points configuration", zap.String("config_id", seed.ID))
	return nil
}
