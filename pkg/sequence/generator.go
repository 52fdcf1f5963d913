package sequence

import (
	"context"
	"fmt"
	"time"

	"storefront-rewards/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator issues human-readable reference codes for ledger-facing
// operations. Codes are unique per prefix and day.
type Generator interface {
	NextRedemptionCode(ctx context.Context) (string, error)
	NextReferralCode(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextRedemptionCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "RDM")
}

func (g *RedisGenerator) NextReferralCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "REF")
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	datePart := time.Now().Format("20060102")
	key := rediskey.BuildSequenceKey(prefix, datePart)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	// counters reset naturally; keep the key for a day past its window
	g.rdb.Expire(ctx, key, 48*time.Hour)

	return fmt.Sprintf("%s-%s-%04d", prefix, datePart, seq), nil
}
