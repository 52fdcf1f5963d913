package notification

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Message is what callers hand to a Dispatcher. Persistence fields are
// filled in by the delivery worker.
type Message struct {
	UserID    string
	Title     string
	Body      string
	Category  Category
	ActionURL string
}

// Dispatcher sends a notification to a user. Implementations are
// fire-and-forget from the caller's point of view: a delivery failure
// must never fail the operation that produced the notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message)
}

type asynqDispatcher struct {
	client *asynq.Client
}

type DispatcherParams struct {
	fx.In

	Client *asynq.Client
}

func NewDispatcher(p DispatcherParams) Dispatcher {
	return &asynqDispatcher{client: p.Client}
}

func (d *asynqDispatcher) Dispatch(ctx context.Context, msg Message) {
	t, err := NewDeliverTask(DeliverPayload{
		UserID:    msg.UserID,
		Title:     msg.Title,
		Body:      msg.Body,
		Category:  msg.Category,
		ActionURL: msg.ActionURL,
	})
	if err != nil {
		zap.L().Error("failed to build notification task",
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return
	}

	if _, err := d.client.EnqueueContext(ctx, t); err != nil {
		zap.L().Error("failed to enqueue notification",
			zap.String("user_id", msg.UserID),
			zap.String("title", msg.Title),
			zap.Error(err),
		)
	}
}

// Nop discards every message. Used in tests and in binaries that run
// without a task backend.
type Nop struct{}

func (Nop) Dispatch(ctx context.Context, msg Message) {}
