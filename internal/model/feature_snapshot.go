package model

import "time"

// FeatureSnapshot is the reduced daily projection written to the feature store.
// (customer_id, feature_date) is unique; a rerun for the same date replaces the rows.
type FeatureSnapshot struct {
	ID                   int64     `gorm:"primaryKey" json:"-"`
	CustomerID           int64     `gorm:"column:customer_id;uniqueIndex:idx_feature_store_customer_date,priority:1;not null" json:"customer_id"`
	FeatureDate          time.Time `gorm:"column:feature_date;type:date;uniqueIndex:idx_feature_store_customer_date,priority:2;index;not null" json:"feature_date"`
	TenureDays           int       `gorm:"column:tenure_days" json:"tenure_days"`
	AvgMonthlyUsage      float64   `gorm:"column:avg_monthly_usage" json:"avg_monthly_usage"`
	SupportTicketRate    float64   `gorm:"column:support_ticket_rate" json:"support_ticket_rate"`
	PaymentDelayDays     int       `gorm:"column:payment_delay_days" json:"payment_delay_days"`
	FeatureAdoptionScore float64   `gorm:"column:feature_adoption_score" json:"feature_adoption_score"`
	EngagementScore      float64   `gorm:"column:engagement_score" json:"engagement_score"`
	ChurnRiskScore       float64   `gorm:"column:churn_risk_score" json:"churn_risk_score"`
	LifetimeValue        float64   `gorm:"column:lifetime_value" json:"lifetime_value"`
	CreatedAt            time.Time `gorm:"column:created_at" json:"created_at"` // Automatically set by GORM
}

// TableName specifies the table name for the FeatureSnapshot model.
func (FeatureSnapshot) TableName() string {
	return "feature_store"
}
