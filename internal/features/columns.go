package features

// Identity columns.
const (
	ColCustomerID   = "customer_id"
	ColCustomerCode = "customer_code"
	ColLocation     = "location"
	ColSignupDate   = "signup_date"
	ColChurnDate    = "churn_date"
	ColChurnReason  = "churn_reason"
)

// Numeric customer columns.
const (
	ColAge              = "age"
	ColMonthlyCharges   = "monthly_charges"
	ColTotalCharges     = "total_charges"
	ColPaperlessBilling = "paperless_billing"
	ColChurned          = "churned"
	ColTenureDays       = "tenure_days"
)

// Aggregated usage columns read by the loader and the derived features.
const (
	ColLoginCountMean      = "login_count_mean"
	ColSessionDurationMean = "session_duration_minutes_mean"
	ColFeaturesUsedMean    = "features_used_mean"
	ColSupportTicketsSum   = "support_tickets_sum"
	ColDataUsageMean       = "data_usage_gb_mean"
)

// Derived columns.
const (
	ColAvgSessionPerLogin = "avg_session_per_login"
	ColSupportTicketRate  = "support_ticket_rate"
	ColEngagementScore    = "engagement_score"
)

// CategoricalColumns are one-hot encoded, in this order, as <column>_<value>.
var CategoricalColumns = []string{"gender", "subscription_type", "contract_length", "payment_method"}
