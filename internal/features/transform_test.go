package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
)

var refNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func customer(id int64, signup time.Time, churned bool, over model.Customer) model.CustomerRecord {
	over.CustomerID = id
	over.SignupDate = signup
	rec := model.CustomerRecord{Customer: over, Churned: churned}
	return rec
}

func usageRow(id int64, day int, login, session, features, tickets, gb float64) model.UsageMetric {
	return model.UsageMetric{
		CustomerID:             id,
		MetricDate:             time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		LoginCount:             login,
		SessionDurationMinutes: session,
		FeaturesUsed:           features,
		SupportTickets:         tickets,
		DataUsageGB:            gb,
	}
}

func value(t *testing.T, tbl *Table, row int, col string) float64 {
	t.Helper()
	v, ok := tbl.Value(row, col)
	require.True(t, ok, "column %s missing", col)
	return v
}

func TestEngagementScore(t *testing.T) {
	assert.InDelta(t, 4.7, EngagementScore(10, 30, 5), 1e-9)
	assert.Equal(t, 0.0, EngagementScore(0, 0, 0))
}

func TestDerivedGuardsSubstituteOne(t *testing.T) {
	assert.Equal(t, 0.0, AvgSessionPerLogin(0, 0))
	assert.InDelta(t, 45.0, AvgSessionPerLogin(45, 0), 1e-9, "zero logins divides by 1")
	assert.InDelta(t, 3.0, AvgSessionPerLogin(30, 10), 1e-9)

	assert.InDelta(t, 60.0, SupportTicketRate(2, 0), 1e-9, "zero tenure divides by 1")
	assert.InDelta(t, 1.0, SupportTicketRate(10, 300), 1e-9)
}

func TestTransform_OneRowPerCustomerAndAggregates(t *testing.T) {
	signup := refNow.AddDate(0, 0, -100)
	customers := []model.CustomerRecord{
		customer(1, signup, false, model.Customer{Gender: "F", SubscriptionType: "Premium", ContractLength: "Annual", PaymentMethod: "Credit Card"}),
		customer(2, signup, true, model.Customer{Gender: "M", SubscriptionType: "Basic", ContractLength: "Monthly", PaymentMethod: "Mailed Check"}),
	}
	usage := []model.UsageMetric{
		usageRow(1, 1, 8, 20, 4, 1, 1.0),
		usageRow(1, 2, 12, 40, 6, 0, 2.0),
	}

	tbl, err := Transform(customers, usage, refNow)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []int64{1, 2}, tbl.CustomerIDs())

	assert.Equal(t, 100.0, value(t, tbl, 0, ColTenureDays))
	assert.Equal(t, 10.0, value(t, tbl, 0, "login_count_mean"))
	assert.Equal(t, 20.0, value(t, tbl, 0, "login_count_sum"))
	assert.InDelta(t, 2.8284, value(t, tbl, 0, "login_count_std"), 1e-9, "sample std rounded to 4 places")
	assert.Equal(t, 30.0, value(t, tbl, 0, "session_duration_minutes_mean"))
	assert.Equal(t, 6.0, value(t, tbl, 0, "features_used_max"))
	assert.Equal(t, 1.0, value(t, tbl, 0, "support_tickets_sum"))
	assert.Equal(t, 0.5, value(t, tbl, 0, "support_tickets_mean"))
	assert.Equal(t, 1.5, value(t, tbl, 0, "data_usage_gb_mean"))
	assert.InDelta(t, 4.7, value(t, tbl, 0, ColEngagementScore), 1e-9)
	assert.InDelta(t, 3.0, value(t, tbl, 0, ColAvgSessionPerLogin), 1e-9)
	assert.InDelta(t, 0.3, value(t, tbl, 0, ColSupportTicketRate), 1e-9)

	assert.Equal(t, 0.0, value(t, tbl, 0, ColChurned))
	assert.Equal(t, 1.0, value(t, tbl, 1, ColChurned))
}

func TestTransform_CustomerWithoutUsageGetsZeros(t *testing.T) {
	customers := []model.CustomerRecord{customer(7, refNow.AddDate(0, 0, -10), false, model.Customer{})}

	tbl, err := Transform(customers, nil, refNow)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())

	for _, col := range AggregateColumns(DefaultUsageAggregates) {
		assert.Equal(t, 0.0, value(t, tbl, 0, col), col)
	}
	assert.Equal(t, 0.0, value(t, tbl, 0, ColAvgSessionPerLogin))
	assert.Equal(t, 0.0, value(t, tbl, 0, ColSupportTicketRate))
	assert.Equal(t, 0.0, value(t, tbl, 0, ColEngagementScore))
}

func TestTransform_SingleUsageRowStdIsZero(t *testing.T) {
	customers := []model.CustomerRecord{customer(1, refNow.AddDate(-1, 0, 0), false, model.Customer{})}
	usage := []model.UsageMetric{usageRow(1, 1, 5, 10, 2, 0, 0.5)}

	tbl, err := Transform(customers, usage, refNow)
	require.NoError(t, err)
	assert.Equal(t, 0.0, value(t, tbl, 0, "login_count_std"))
	assert.Equal(t, 5.0, value(t, tbl, 0, "login_count_mean"))
}

func TestTransform_NullNumericsBecomeZero(t *testing.T) {
	customers := []model.CustomerRecord{customer(1, refNow.AddDate(0, -2, 0), false, model.Customer{})}

	tbl, err := Transform(customers, nil, refNow)
	require.NoError(t, err)
	assert.Equal(t, 0.0, value(t, tbl, 0, ColAge))
	assert.Equal(t, 0.0, value(t, tbl, 0, ColTotalCharges))
	for _, row := range tbl.Matrix(tbl.Columns()) {
		for _, v := range row {
			assert.False(t, math.IsNaN(v))
		}
	}
}

func TestTransform_OneHotEncodingSortedByLevel(t *testing.T) {
	signup := refNow.AddDate(0, -6, 0)
	customers := []model.CustomerRecord{
		customer(1, signup, false, model.Customer{Gender: "M", SubscriptionType: "Standard", PaperlessBilling: true}),
		customer(2, signup, false, model.Customer{Gender: "F", SubscriptionType: "Basic"}),
		customer(3, signup, false, model.Customer{Gender: "", SubscriptionType: "Premium"}),
	}

	tbl, err := Transform(customers, nil, refNow)
	require.NoError(t, err)
	cols := tbl.Columns()

	assert.Contains(t, cols, "gender_F")
	assert.Contains(t, cols, "gender_M")
	assert.NotContains(t, cols, "gender")
	assert.NotContains(t, cols, "gender_")

	idx := func(name string) int {
		for i, c := range cols {
			if c == name {
				return i
			}
		}
		return -1
	}
	assert.Less(t, idx("subscription_type_Basic"), idx("subscription_type_Premium"))
	assert.Less(t, idx("subscription_type_Premium"), idx("subscription_type_Standard"))

	assert.Equal(t, 1.0, value(t, tbl, 0, "gender_M"))
	assert.Equal(t, 0.0, value(t, tbl, 0, "gender_F"))
	assert.Equal(t, 0.0, value(t, tbl, 2, "gender_M"))
	assert.Equal(t, 0.0, value(t, tbl, 2, "gender_F"))
	assert.Equal(t, 1.0, value(t, tbl, 0, ColPaperlessBilling))
	assert.Equal(t, 0.0, value(t, tbl, 1, ColPaperlessBilling))
}

func TestTransform_IdentityCarried(t *testing.T) {
	reason := "price"
	churnedAt := refNow.AddDate(0, 0, -3)
	rec := customer(9, refNow.AddDate(-2, 0, 0), true, model.Customer{CustomerCode: "CUST-9", Location: "Surabaya"})
	rec.ChurnDate = &churnedAt
	rec.ChurnReason = &reason

	tbl, err := Transform([]model.CustomerRecord{rec}, nil, refNow)
	require.NoError(t, err)
	id := tbl.Identity(0)
	assert.Equal(t, "CUST-9", id.CustomerCode)
	assert.Equal(t, "Surabaya", id.Location)
	assert.Equal(t, &reason, id.ChurnReason)
	assert.False(t, tbl.Has(ColLocation), "location is not a numeric feature")
}

func TestRound4(t *testing.T) {
	assert.InDelta(t, 1.2346, round4(1.23456), 1e-12)
	assert.InDelta(t, -0.3333, round4(-1.0/3), 1e-12)
	assert.True(t, math.IsNaN(round4(math.NaN())))
}
