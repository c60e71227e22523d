package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

var (
	Genders           = []string{"F", "M"}
	SubscriptionTypes = []string{"Basic", "Standard", "Premium"}
	ContractLengths   = []string{"Monthly", "Quarterly", "Annual"}
	PaymentMethods    = []string{"Bank Transfer", "Credit Card", "Electronic Check", "Mailed Check"}
	ChurnReasons      = []string{"price", "competitor", "service", "relocation", "other"}
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

func ptr[T any](v T) *T { return &v }

// NewCustomer creates a new Customer instance with default fake data.
func NewCustomer(overrideDefaults ...*Customer) *Customer {
	monthly := gofakeit.Float64Range(10, 150)
	tenureMonths := gofakeit.Number(1, 60)
	base := &Customer{
		CustomerCode:     "CUST-" + gofakeit.DigitN(8),
		SignupDate:       utils.Now().AddDate(0, -tenureMonths, -gofakeit.Number(0, 27)).Truncate(24 * time.Hour),
		Age:              ptr(gofakeit.Number(18, 80)),
		Gender:           gofakeit.RandomString(Genders),
		Location:         gofakeit.City(),
		SubscriptionType: gofakeit.RandomString(SubscriptionTypes),
		MonthlyCharges:   ptr(monthly),
		TotalCharges:     ptr(monthly * float64(tenureMonths)),
		ContractLength:   gofakeit.RandomString(ContractLengths),
		PaymentMethod:    gofakeit.RandomString(PaymentMethods),
		PaperlessBilling: gofakeit.Bool(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.CustomerID != 0 {
			base.CustomerID = ovr.CustomerID
		}
		if ovr.CustomerCode != "" {
			base.CustomerCode = ovr.CustomerCode
		}
		if !ovr.SignupDate.IsZero() {
			base.SignupDate = ovr.SignupDate
		}
		if ovr.Age != nil {
			base.Age = ovr.Age
		}
		if ovr.Gender != "" {
			base.Gender = ovr.Gender
		}
		if ovr.Location != "" {
			base.Location = ovr.Location
		}
		if ovr.SubscriptionType != "" {
			base.SubscriptionType = ovr.SubscriptionType
		}
		if ovr.MonthlyCharges != nil {
			base.MonthlyCharges = ovr.MonthlyCharges
		}
		if ovr.TotalCharges != nil {
			base.TotalCharges = ovr.TotalCharges
		}
		if ovr.ContractLength != "" {
			base.ContractLength = ovr.ContractLength
		}
		if ovr.PaymentMethod != "" {
			base.PaymentMethod = ovr.PaymentMethod
		}
		base.PaperlessBilling = ovr.PaperlessBilling
	}
	return base
}

// NewCustomerRecord creates a joined customer record. churned controls whether
// a churn date and reason are filled in.
func NewCustomerRecord(id int64, churned bool, overrideDefaults ...*Customer) *CustomerRecord {
	var ovr *Customer
	if len(overrideDefaults) > 0 {
		ovr = overrideDefaults[0]
	}
	c := NewCustomer(ovr)
	c.CustomerID = id

	rec := &CustomerRecord{Customer: *c, Churned: churned}
	if churned {
		churnedAt := utils.Now().AddDate(0, 0, -gofakeit.Number(1, 90)).Truncate(24 * time.Hour)
		rec.ChurnDate = &churnedAt
		rec.ChurnReason = ptr(gofakeit.RandomString(ChurnReasons))
	}
	return rec
}

// NewChurnEvent creates a churn event for the given customer.
func NewChurnEvent(customerID int64) *ChurnEvent {
	return &ChurnEvent{
		CustomerID:  customerID,
		ChurnDate:   utils.Now().AddDate(0, 0, -gofakeit.Number(1, 90)).Truncate(24 * time.Hour),
		ChurnReason: gofakeit.RandomString(ChurnReasons),
	}
}

// NewUsageMetric creates a new UsageMetric instance with default fake data.
func NewUsageMetric(customerID int64, metricDate time.Time, overrideDefaults ...*UsageMetric) *UsageMetric {
	base := &UsageMetric{
		CustomerID:             customerID,
		MetricDate:             metricDate,
		LoginCount:             float64(gofakeit.Number(0, 40)),
		SessionDurationMinutes: gofakeit.Float64Range(0, 600),
		FeaturesUsed:           float64(gofakeit.Number(0, 15)),
		SupportTickets:         float64(gofakeit.Number(0, 3)),
		DataUsageGB:            gofakeit.Float64Range(0, 50),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		base.LoginCount = ovr.LoginCount
		base.SessionDurationMinutes = ovr.SessionDurationMinutes
		base.FeaturesUsed = ovr.FeaturesUsed
		base.SupportTickets = ovr.SupportTickets
		base.DataUsageGB = ovr.DataUsageGB
	}
	return base
}

// NewUsageSeries creates months consecutive monthly usage rows ending at the current month.
func NewUsageSeries(customerID int64, months int) []UsageMetric {
	start := utils.Now().AddDate(0, -months, 0).Truncate(24 * time.Hour)
	out := make([]UsageMetric, 0, months)
	for i := 0; i < months; i++ {
		out = append(out, *NewUsageMetric(customerID, start.AddDate(0, i, 0)))
	}
	return out
}
