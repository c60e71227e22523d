package model

import "time"

// UsageMetric holds one period of product-usage counters for a customer.
type UsageMetric struct {
	ID                     int64     `gorm:"primaryKey" json:"id"`
	CustomerID             int64     `gorm:"column:customer_id;index:idx_usage_customer_date,priority:1;not null" json:"customer_id"`
	MetricDate             time.Time `gorm:"column:metric_date;type:date;index:idx_usage_customer_date,priority:2;not null" json:"metric_date"`
	LoginCount             float64   `gorm:"column:login_count" json:"login_count"`
	SessionDurationMinutes float64   `gorm:"column:session_duration_minutes" json:"session_duration_minutes"`
	FeaturesUsed           float64   `gorm:"column:features_used" json:"features_used"`
	SupportTickets         float64   `gorm:"column:support_tickets" json:"support_tickets"`
	DataUsageGB            float64   `gorm:"column:data_usage_gb" json:"data_usage_gb"`
}

// TableName specifies the table name for the UsageMetric model.
func (UsageMetric) TableName() string {
	return "usage_metrics"
}
