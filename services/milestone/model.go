package milestone

import "time"

// MilestoneCrossing records that a user's balance reached a threshold. The
// unique(user_id, threshold) index makes each crossing a one-shot event no
// matter how many award bursts replay it.
type MilestoneCrossing struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;uniqueIndex:idx_milestone_user_threshold" json:"user_id"`
	Threshold int64     `gorm:"column:threshold;uniqueIndex:idx_milestone_user_threshold" json:"threshold"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (MilestoneCrossing) TableName() string {
	return "milestone_crossings"
}
