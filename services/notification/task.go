package notification

import (
	"encoding/json"

	"storefront-rewards/pkg/task"

	"github.com/hibiken/asynq"
)

const TypeDeliver = "notification:deliver"

type DeliverPayload struct {
	UserID    string   `json:"user_id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Category  Category `json:"category"`
	ActionURL string   `json:"action_url,omitempty"`
}

func NewDeliverTask(p DeliverPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeliver, payload,
		asynq.Queue(task.QueueNotifications)), nil
}
