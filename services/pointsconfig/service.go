package pointsconfig

import (
	"context"
	"errors"
	"time"

	"storefront-rewards/pkg/db/option"
	"storefront-rewards/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrConfigNotFound is returned by Active when no configuration row exists.
var ErrConfigNotFound = errors.New("points configuration not found")

type Resolver struct {
	db      *gorm.DB
	node    *snowflake.Node
	configs repository.Repository[PointsConfig]
}

type ResolverParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewResolver(p ResolverParams) *Resolver {
	return &Resolver{
		db:      p.DB,
		node:    p.Node,
		configs: repository.ProvideStore[PointsConfig](p.DB),
	}
}

// Active returns the most recently created configuration.
func (r *Resolver) Active(ctx context.Context) (*PointsConfig, error) {
	cfg, err := r.configs.FindOne(ctx, &PointsConfig{}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"created_at": true},
	}))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	return cfg, nil
}

// ActiveOrDefault resolves the active configuration, falling back to the
// documented defaults when none exists. Reward accrual never blocks a
// purchase flow on a missing config row.
func (r *Resolver) ActiveOrDefault(ctx context.Context) *PointsConfig {
	cfg, err := r.Active(ctx)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			zap.L().Warn("no active points configuration, using defaults")
		} else {
			zap.L().Error("failed to resolve points configuration, using defaults", zap.Error(err))
		}
		return Default()
	}
	return cfg
}

// CreateParams carries the rates for a new configuration version.
type CreateParams struct {
	PointValueCurrency     float64
	SpendPointsPer100Units int64
	FirstPurchasePoints    int64
	ReferralSignupPoints   int64
	ReferralPurchasePoints int64
	QuizCompletionPoints   int64
	ExpiryMonths           int
}

// Create appends a new configuration version. Existing rows are never touched.
func (r *Resolver) Create(ctx context.Context, p CreateParams) (*PointsConfig, error) {
	cfg := &PointsConfig{
		ID:                     r.node.Generate().String(),
		PointValueCurrency:     p.PointValueCurrency,
		SpendPointsPer100Units: p.SpendPointsPer100Units,
		FirstPurchasePoints:    p.FirstPurchasePoints,
		ReferralSignupPoints:   p.ReferralSignupPoints,
		ReferralPurchasePoints: p.ReferralPurchasePoints,
		QuizCompletionPoints:   p.QuizCompletionPoints,
		ExpiryMonths:           p.ExpiryMonths,
		CreatedAt:              time.Now(),
	}

	if err := r.configs.Create(ctx, cfg); err != nil {
		return nil, err
	}

	zap.L().Info("points configuration created",
		zap.String("config_id", cfg.ID),
		zap.Float64("point_value_currency", cfg.PointValueCurrency),
	)
	return cfg, nil
}
