package milestone

import (
	"context"
	"fmt"

	"storefront-rewards/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ladder is the fixed set of balance thresholds that trigger a celebration
// notification.
var Ladder = []int64{100, 500, 1000, 2500, 5000, 10000}

// Detector watches balance increases and records threshold crossings. It is
// wired into the ledger as an observer.
type Detector struct {
	db         *gorm.DB
	node       *snowflake.Node
	dispatcher notification.Dispatcher
}

type DetectorParams struct {
	fx.In

	DB         *gorm.DB
	Node       *snowflake.Node
	Dispatcher notification.Dispatcher
}

func NewDetector(p DetectorParams) *Detector {
	return &Detector{
		db:         p.DB,
		node:       p.Node,
		dispatcher: p.Dispatcher,
	}
}

// OnBalanceIncrease inserts a crossing row for every reachable threshold.
// ON CONFLICT DO NOTHING keeps the insert idempotent; only a fresh insert
// dispatches a notification, so each threshold is announced at most once.
func (d *Detector) OnBalanceIncrease(ctx context.Context, userID string, available int64) error {
	for _, threshold := range Ladder {
		if available < threshold {
			break
		}

		crossing := MilestoneCrossing{
			ID:        d.node.Generate().String(),
			UserID:    userID,
			Threshold: threshold,
		}

		res := d.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "threshold"}},
				DoNothing: true,
			}).
			Create(&crossing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		zap.L().Info("milestone crossed",
			zap.String("user_id", userID),
			zap.Int64("threshold", threshold),
		)

		d.dispatcher.Dispatch(ctx, notification.Message{
			UserID:   userID,
			Title:    fmt.Sprintf("Milestone reached: %d points", threshold),
			Body:     fmt.Sprintf("Your balance just passed %d points. Keep it up!", threshold),
			Category: notification.CategoryMilestone,
		})
	}

	return nil
}

// Crossings lists the thresholds a user has already passed.
func (d *Detector) Crossings(ctx context.Context, userID string) ([]*MilestoneCrossing, error) {
	var crossings []*MilestoneCrossing
	if err := d.db.WithContext(ctx).
		Where(&MilestoneCrossing{UserID: userID}).
		Order("threshold asc").
		Find(&crossings).Error; err != nil {
		return nil, err
	}
	return crossings, nil
}
