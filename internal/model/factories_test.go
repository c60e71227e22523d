package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCustomer_Overrides(t *testing.T) {
	c := NewCustomer(&Customer{CustomerCode: "CUST-1", Gender: "F", PaperlessBilling: true})

	assert.Equal(t, "CUST-1", c.CustomerCode)
	assert.Equal(t, "F", c.Gender)
	assert.True(t, c.PaperlessBilling)
	assert.NotEmpty(t, c.SubscriptionType)
	require.NotNil(t, c.TotalCharges)
	assert.GreaterOrEqual(t, *c.TotalCharges, 0.0)
}

func TestNewCustomerRecord_ChurnFieldsFollowFlag(t *testing.T) {
	churned := NewCustomerRecord(7, true)
	assert.Equal(t, int64(7), churned.CustomerID)
	assert.True(t, churned.Churned)
	assert.NotNil(t, churned.ChurnDate)
	assert.NotNil(t, churned.ChurnReason)

	active := NewCustomerRecord(8, false)
	assert.False(t, active.Churned)
	assert.Nil(t, active.ChurnDate)
	assert.Nil(t, active.ChurnReason)
}

func TestNewUsageSeries_Ordered(t *testing.T) {
	rows := NewUsageSeries(3, 6)
	require.Len(t, rows, 6)
	for i := 1; i < len(rows); i++ {
		assert.Equal(t, int64(3), rows[i].CustomerID)
		assert.True(t, rows[i].MetricDate.After(rows[i-1].MetricDate))
	}
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "customers", Customer{}.TableName())
	assert.Equal(t, "churn_events", ChurnEvent{}.TableName())
	assert.Equal(t, "usage_metrics", UsageMetric{}.TableName())
	assert.Equal(t, "feature_store", FeatureSnapshot{}.TableName())
	assert.Equal(t, "model_runs", ModelRun{}.TableName())
}
