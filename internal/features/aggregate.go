package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
)

// Statistic reduces a customer's series of one usage counter to a single value.
// An empty or too-short series yields NaN.
type Statistic struct {
	Name   string
	Reduce func(xs []float64) float64
}

var (
	Mean = Statistic{Name: "mean", Reduce: func(xs []float64) float64 {
		if len(xs) == 0 {
			return math.NaN()
		}
		return stat.Mean(xs, nil)
	}}
	Sum = Statistic{Name: "sum", Reduce: func(xs []float64) float64 {
		if len(xs) == 0 {
			return math.NaN()
		}
		return floats.Sum(xs)
	}}
	// Std is the sample standard deviation (n-1 denominator); NaN for one value.
	Std = Statistic{Name: "std", Reduce: func(xs []float64) float64 {
		if len(xs) < 2 {
			return math.NaN()
		}
		return stat.StdDev(xs, nil)
	}}
	Max = Statistic{Name: "max", Reduce: func(xs []float64) float64 {
		if len(xs) == 0 {
			return math.NaN()
		}
		return floats.Max(xs)
	}}
)

// UsageAggregate names a usage counter and the statistics computed over it.
type UsageAggregate struct {
	Field string
	Value func(m *model.UsageMetric) float64
	Stats []Statistic
}

// DefaultUsageAggregates is the aggregate set of the feature table. Output
// columns are <field>_<stat> in this order.
var DefaultUsageAggregates = []UsageAggregate{
	{Field: "login_count", Value: func(m *model.UsageMetric) float64 { return m.LoginCount }, Stats: []Statistic{Mean, Sum, Std}},
	{Field: "session_duration_minutes", Value: func(m *model.UsageMetric) float64 { return m.SessionDurationMinutes }, Stats: []Statistic{Mean, Sum, Std}},
	{Field: "features_used", Value: func(m *model.UsageMetric) float64 { return m.FeaturesUsed }, Stats: []Statistic{Mean, Max, Std}},
	{Field: "support_tickets", Value: func(m *model.UsageMetric) float64 { return m.SupportTickets }, Stats: []Statistic{Sum, Mean}},
	{Field: "data_usage_gb", Value: func(m *model.UsageMetric) float64 { return m.DataUsageGB }, Stats: []Statistic{Mean, Sum, Std}},
}

// AggregateColumns lists the output column names of aggs.
func AggregateColumns(aggs []UsageAggregate) []string {
	var cols []string
	for _, a := range aggs {
		for _, s := range a.Stats {
			cols = append(cols, a.Field+"_"+s.Name)
		}
	}
	return cols
}

// AggregateUsage groups usage by customer and reduces every counter, rounding
// to 4 decimals. The values of each customer follow AggregateColumns(aggs).
func AggregateUsage(usage []model.UsageMetric, aggs []UsageAggregate) map[int64][]float64 {
	series := make(map[int64][][]float64)
	for i := range usage {
		m := &usage[i]
		s, ok := series[m.CustomerID]
		if !ok {
			s = make([][]float64, len(aggs))
		}
		for k, a := range aggs {
			s[k] = append(s[k], a.Value(m))
		}
		series[m.CustomerID] = s
	}

	out := make(map[int64][]float64, len(series))
	for id, s := range series {
		var vals []float64
		for k, a := range aggs {
			for _, st := range a.Stats {
				vals = append(vals, round4(st.Reduce(s[k])))
			}
		}
		out[id] = vals
	}
	return out
}

// round4 rounds half to even at 4 decimals. NaN passes through.
func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.RoundToEven(v*1e4) / 1e4
}
