package observer

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	return 0
}

func TestObserveETLStage_CountsRowsOnSuccessOnly(t *testing.T) {
	InitMetrics(true)
	before := value(t, ETLRowsTotal.WithLabelValues("extract_test"))

	ObserveETLStage("extract_test", 12, 10*time.Millisecond, nil)
	ObserveETLStage("extract_test", 99, 10*time.Millisecond, errors.New("boom"))

	assert.InDelta(t, before+12, value(t, ETLRowsTotal.WithLabelValues("extract_test")), 1e-9)
}

func TestObserveTraining_SetsGauges(t *testing.T) {
	InitMetrics(true)
	ObserveTraining("churn", "random_forest", time.Second, map[string]float64{"accuracy": 0.91})

	assert.InDelta(t, 0.91, value(t, ModelMetric.WithLabelValues("churn", "random_forest", "accuracy")), 1e-9)
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	InitMetrics(false)
	t.Cleanup(func() { InitMetrics(true) })

	before := value(t, PredictionsTotal.WithLabelValues("clv_disabled"))
	AddPredictions("clv_disabled", 5)
	assert.InDelta(t, before, value(t, PredictionsTotal.WithLabelValues("clv_disabled")), 1e-9)
}
