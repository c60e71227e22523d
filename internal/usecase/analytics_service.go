package usecase

import (
	"context"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// CustomerList is every customer with its churn status.
type CustomerList struct {
	Customers []model.CustomerRecord `json:"customers"`
	Count     int                    `json:"count"`
}

// DashboardMetrics are the headline numbers of the dashboard.
type DashboardMetrics struct {
	TotalCustomers        int     `json:"total_customers"`
	ChurnedCustomers      int     `json:"churned_customers"`
	ChurnRate             float64 `json:"churn_rate"`
	TotalRevenue          float64 `json:"total_revenue"`
	AvgRevenuePerCustomer float64 `json:"avg_revenue_per_customer"`
}

// SubscriptionChurn counts customers and churned customers of one plan.
type SubscriptionChurn struct {
	Count   int `json:"count"`
	Churned int `json:"sum"`
}

// DashboardDistributions break customers down by subscription type.
type DashboardDistributions struct {
	SubscriptionTypes   map[string]int               `json:"subscription_types"`
	ChurnBySubscription map[string]SubscriptionChurn `json:"churn_by_subscription"`
}

// Dashboard is the analytics overview.
type Dashboard struct {
	Metrics       DashboardMetrics       `json:"metrics"`
	Distributions DashboardDistributions `json:"distributions"`
	Timestamp     string                 `json:"timestamp"`
}

// ListCustomers returns customers whose signup date falls in [start, end];
// with either bound nil every customer is returned.
func (s *AnalyticsService) ListCustomers(ctx context.Context, start, end *time.Time) (*CustomerList, error) {
	customers, err := s.customers.ExtractCustomerData(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return &CustomerList{Customers: customers, Count: len(customers)}, nil
}

// Dashboard computes churn and revenue figures over every customer.
func (s *AnalyticsService) Dashboard(ctx context.Context) (*Dashboard, error) {
	customers, err := s.customers.ExtractCustomerData(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	d := Summarize(customers)
	d.Timestamp = utils.FormatISO8601(s.now())
	return d, nil
}

// Summarize builds the dashboard figures. Customers without total charges
// are left out of the revenue average; with none at all it is 0.
func Summarize(customers []model.CustomerRecord) *Dashboard {
	d := &Dashboard{
		Distributions: DashboardDistributions{
			SubscriptionTypes:   make(map[string]int),
			ChurnBySubscription: make(map[string]SubscriptionChurn),
		},
	}

	revenue := make([]float64, 0, len(customers))
	for _, c := range customers {
		d.Metrics.TotalCustomers++
		if c.TotalCharges != nil {
			revenue = append(revenue, *c.TotalCharges)
		}

		byPlan := d.Distributions.ChurnBySubscription[c.SubscriptionType]
		byPlan.Count++
		if c.Churned {
			d.Metrics.ChurnedCustomers++
			byPlan.Churned++
		}
		d.Distributions.ChurnBySubscription[c.SubscriptionType] = byPlan
		d.Distributions.SubscriptionTypes[c.SubscriptionType]++
	}

	if d.Metrics.TotalCustomers > 0 {
		d.Metrics.ChurnRate = float64(d.Metrics.ChurnedCustomers) / float64(d.Metrics.TotalCustomers)
	}
	if len(revenue) > 0 {
		d.Metrics.TotalRevenue = floats.Sum(revenue)
		d.Metrics.AvgRevenuePerCustomer = stat.Mean(revenue, nil)
	}
	return d
}
