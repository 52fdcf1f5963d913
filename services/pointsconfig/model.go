package pointsconfig

import "time"

// PointsConfig is one version of the rewards configuration. Rows are never
// edited in place; a new row supersedes the previous one and the newest
// created_at wins.
type PointsConfig struct {
	ID                     string    `gorm:"column:id;primaryKey" json:"id"`
	PointValueCurrency     float64   `gorm:"column:point_value_currency;not null" json:"point_value_currency"`
	SpendPointsPer100Units int64     `gorm:"column:spend_points_per_100_units;not null" json:"spend_points_per_100_units"`
	FirstPurchasePoints    int64     `gorm:"column:first_purchase_points;not null" json:"first_purchase_points"`
	ReferralSignupPoints   int64     `gorm:"column:referral_signup_points;not null" json:"referral_signup_points"`
	ReferralPurchasePoints int64     `gorm:"column:referral_purchase_points;not null" json:"referral_purchase_points"`
	QuizCompletionPoints   int64     `gorm:"column:quiz_completion_points;not null" json:"quiz_completion_points"`
	ExpiryMonths           int       `gorm:"column:expiry_months;not null" json:"expiry_months"`
	CreatedAt              time.Time `gorm:"column:created_at" json:"created_at"`
}

func (PointsConfig) TableName() string { return "points_configs" }

// Default returns the documented fallback used when no configuration row
// exists yet: one currency unit per point, no bonuses, no expiry. Accrual must
// keep working on a fresh install.
func Default() *PointsConfig {
	return &PointsConfig{
		PointValueCurrency: 1.0,
	}
}
