package notification

import "time"

// Category groups notifications for the console inbox.
type Category string

const (
	CategoryPoints    Category = "points"
	CategoryMilestone Category = "milestone"
	CategoryReferral  Category = "referral"
)

type Notification struct {
	ID          string     `gorm:"column:id;primaryKey" json:"id"`
	UserID      string     `gorm:"column:user_id;index" json:"user_id"`
	Title       string     `gorm:"column:title" json:"title"`
	Body        string     `gorm:"column:body" json:"body"`
	Category    Category   `gorm:"column:category" json:"category"`
	ActionURL   string     `gorm:"column:action_url" json:"action_url,omitempty"`
	DeliveredAt *time.Time `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
