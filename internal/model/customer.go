package model

import (
	"time"
)

// Customer is a row of the customers table.
type Customer struct {
	CustomerID       int64     `gorm:"column:customer_id;primaryKey;autoIncrement" json:"customer_id"`
	CustomerCode     string    `gorm:"column:customer_code;uniqueIndex;not null" json:"customer_code"`
	SignupDate       time.Time `gorm:"column:signup_date;type:date;index;not null" json:"signup_date"`
	Age              *int      `gorm:"column:age" json:"age"`
	Gender           string    `gorm:"column:gender" json:"gender"`
	Location         string    `gorm:"column:location" json:"location"`
	SubscriptionType string    `gorm:"column:subscription_type" json:"subscription_type"`
	MonthlyCharges   *float64  `gorm:"column:monthly_charges" json:"monthly_charges"`
	TotalCharges     *float64  `gorm:"column:total_charges" json:"total_charges"`
	ContractLength   string    `gorm:"column:contract_length" json:"contract_length"`
	PaymentMethod    string    `gorm:"column:payment_method" json:"payment_method"`
	PaperlessBilling bool      `gorm:"column:paperless_billing" json:"paperless_billing"`
}

// TableName specifies the table name for the Customer model.
func (Customer) TableName() string {
	return "customers"
}

// ChurnEvent records that a customer left. A customer is churned iff a row exists.
type ChurnEvent struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	CustomerID  int64     `gorm:"column:customer_id;index;not null" json:"customer_id"`
	ChurnDate   time.Time `gorm:"column:churn_date;type:date;not null" json:"churn_date"`
	ChurnReason string    `gorm:"column:churn_reason" json:"churn_reason"`
}

// TableName specifies the table name for the ChurnEvent model.
func (ChurnEvent) TableName() string {
	return "churn_events"
}

// CustomerRecord is one customer left-joined with its churn event.
// ChurnDate and ChurnReason are nil unless Churned is true.
type CustomerRecord struct {
	Customer
	Churned     bool       `gorm:"column:churned" json:"churned"`
	ChurnDate   *time.Time `gorm:"column:churn_date" json:"churn_date"`
	ChurnReason *string    `gorm:"column:churn_reason" json:"churn_reason"`
}
