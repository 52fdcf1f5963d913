package referral

import "time"

// Referral records that referred_id signed up through referrer_id. A user can
// be referred at most once; the unique index on referred_id is the guard.
type Referral struct {
	ID                string     `gorm:"column:id;primaryKey" json:"id"`
	ReferrerID        string     `gorm:"column:referrer_id;index" json:"referrer_id"`
	ReferredID        string     `gorm:"column:referred_id;uniqueIndex" json:"referred_id"`
	Code              string     `gorm:"column:code" json:"code"`
	PurchaseAwardedAt *time.Time `gorm:"column:purchase_awarded_at" json:"purchase_awarded_at,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Referral) TableName() string {
	return "referrals"
}
