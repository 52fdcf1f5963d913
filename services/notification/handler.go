package notification

import (
	"context"
	"encoding/json"
	"time"

	"storefront-rewards/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler consumes deliver tasks and writes the notification rows the
// console inbox reads.
type Handler struct {
	node          *snowflake.Node
	notifications repository.Repository[Notification]
}

type HandlerParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		node:          p.Node,
		notifications: repository.ProvideStore[Notification](p.DB),
	}
}

func (h *Handler) HandleDeliver(ctx context.Context, t *asynq.Task) error {
	var payload DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid notification payload", zap.Error(err))
		return err
	}

	now := time.Now()
	notif := Notification{
		ID:          h.node.Generate().String(),
		UserID:      payload.UserID,
		Title:       payload.Title,
		Body:        payload.Body,
		Category:    payload.Category,
		ActionURL:   payload.ActionURL,
		DeliveredAt: &now,
	}

	if err := h.notifications.Create(ctx, &notif); err != nil {
		zap.L().Error("failed to persist notification",
			zap.String("user_id", payload.UserID),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("notification delivered",
		zap.String("notification_id", notif.ID),
		zap.String("user_id", notif.UserID),
		zap.String("category", string(notif.Category)),
	)
	return nil
}
