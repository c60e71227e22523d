package predictor

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/tracking"
)

var testColumns = []string{
	features.ColAge,
	features.ColMonthlyCharges,
	features.ColTotalCharges,
	features.ColTenureDays,
	features.ColEngagementScore,
	features.ColChurned,
}

// churnTable builds a labeled table where churn rises with price and falls
// with tenure and engagement. A few ages are missing.
func churnTable(t *testing.T, n int, seed int64) *features.Table {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	table := features.NewTable(testColumns)
	for i := 0; i < n; i++ {
		age := 18 + rng.Float64()*50
		if i%25 == 0 {
			age = math.NaN()
		}
		monthly := 20 + rng.Float64()*100
		tenure := rng.Float64() * 1000
		engagement := rng.Float64() * 10
		total := monthly * tenure / 30
		score := 0.03*(monthly-70) - 0.004*(tenure-500) - 0.3*(engagement-5) + 0.5*rng.NormFloat64()
		churned := 0.0
		if score > 0 {
			churned = 1
		}
		require.NoError(t, table.AppendRow(
			features.Identity{CustomerID: int64(i + 1)},
			[]float64{age, monthly, total, tenure, engagement, churned},
		))
	}
	return table
}

// unlabeled drops the churned column.
func unlabeled(t *testing.T, table *features.Table) *features.Table {
	t.Helper()
	cols := testColumns[:len(testColumns)-1]
	out := features.NewTable(cols)
	m := table.Matrix(cols)
	for i, row := range m {
		require.NoError(t, out.AppendRow(table.Identity(i), row))
	}
	return out
}

// fastParams keeps the ensembles small so the suite stays quick.
func fastParams() Hyperparameters {
	hp := DefaultHyperparameters()
	hp.RandomForest.NEstimators = 25
	hp.XGBoost.NEstimators = 30
	hp.GradientBoosting.NEstimators = 30
	hp.GradientBoosting.MaxDepth = 3
	hp.NeuralNet.Hidden = []int{32, 16, 8}
	hp.NeuralNet.LearningRate = 0.01
	hp.NeuralNet.Epochs = 30
	return hp
}

type trackerMock struct {
	mock.Mock
}

func (m *trackerMock) LogRun(ctx context.Context, run tracking.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}
