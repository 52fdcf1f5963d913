package expiry

import (
	"context"
	"encoding/json"
	"time"

	"storefront-rewards/pkg/task"
	"storefront-rewards/services/ledger"
	"storefront-rewards/services/pointsconfig"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const TypeExpiryRun = "rewards:expiry:run"

type runPayload struct {
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Service runs the expiry sweep: every user holding points earned before
// the configured horizon gets a single expired ledger entry.
type Service struct {
	ledger  *ledger.Service
	configs *pointsconfig.Resolver
	asynq   *asynq.Client
}

type ServiceParams struct {
	fx.In

	Ledger  *ledger.Service
	Configs *pointsconfig.Resolver
	Asynq   *asynq.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger:  p.Ledger,
		configs: p.Configs,
		asynq:   p.Asynq,
	}
}

// EnqueueRun pushes an expiry sweep onto the rewards queue.
func (s *Service) EnqueueRun(ctx context.Context) error {
	payload, _ := json.Marshal(runPayload{EnqueuedAt: time.Now()})
	t := asynq.NewTask(TypeExpiryRun, payload, asynq.Queue(task.QueueRewards))

	info, err := s.asynq.EnqueueContext(ctx, t)
	if err != nil {
		return err
	}

	zap.L().Info("enqueued expiry run", zap.String("task_id", info.ID))
	return nil
}

// HandleRun is the asynq worker entry point.
func (s *Service) HandleRun(ctx context.Context, t *asynq.Task) error {
	var payload runPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid expiry payload", zap.Error(err))
		return err
	}

	return s.Run(ctx)
}

// Run expires points for every user with a positive balance. Expiry is
// disabled when no configuration exists or expiry_months is zero.
func (s *Service) Run(ctx context.Context) error {
	cfg, err := s.configs.Active(ctx)
	if err != nil {
		zap.L().Warn("expiry sweep skipped, no points configuration")
		return nil
	}
	if cfg.ExpiryMonths <= 0 {
		zap.L().Info("expiry disabled, skipping sweep")
		return nil
	}

	cutoff := time.Now().AddDate(0, -cfg.ExpiryMonths, 0)

	userIDs, err := s.ledger.ActiveUserIDs(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	var total int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			expired, err := s.ledger.ExpireOlderThan(gctx, userID, cutoff)
			if err != nil {
				zap.L().Error("failed to expire points",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				return err
			}
			if expired > 0 {
				zap.L().Info("points expired",
					zap.String("user_id", userID),
					zap.Int64("points", expired),
				)
			}
			return nil
		})
		total++
	}

	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("expiry sweep finished",
		zap.Int64("users_checked", total),
		zap.Time("cutoff", cutoff),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
