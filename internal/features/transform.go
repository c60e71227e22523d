package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

var baseColumns = []string{
	ColAge, ColMonthlyCharges, ColTotalCharges, ColPaperlessBilling, ColChurned, ColTenureDays,
}

var derivedColumns = []string{ColAvgSessionPerLogin, ColSupportTicketRate, ColEngagementScore}

// Transform joins customers with their aggregated usage and derives the model
// feature table. Every customer gets exactly one row; customers without usage
// get zero aggregates. now fixes the tenure reference point.
func Transform(customers []model.CustomerRecord, usage []model.UsageMetric, now time.Time) (*Table, error) {
	aggCols := AggregateColumns(DefaultUsageAggregates)
	aggs := AggregateUsage(usage, DefaultUsageAggregates)
	dummies := categoryLevels(customers)

	cols := make([]string, 0, len(baseColumns)+len(aggCols)+len(derivedColumns)+16)
	cols = append(cols, baseColumns...)
	cols = append(cols, aggCols...)
	cols = append(cols, derivedColumns...)
	for _, d := range dummies {
		for _, level := range d.levels {
			cols = append(cols, d.column+"_"+level)
		}
	}

	t := NewTable(cols)
	for i := range customers {
		c := &customers[i]
		row := make([]float64, 0, len(cols))

		tenure := float64(utils.WholeDaysBetween(c.SignupDate, now))
		row = append(row,
			intOrNaN(c.Age),
			floatOrNaN(c.MonthlyCharges),
			floatOrNaN(c.TotalCharges),
			boolToFloat(c.PaperlessBilling),
			boolToFloat(c.Churned),
			tenure,
		)

		agg, ok := aggs[c.CustomerID]
		if !ok {
			agg = make([]float64, len(aggCols))
		}
		for _, v := range agg {
			row = append(row, zeroIfNaN(v))
		}

		loginMean := zeroIfNaN(valueAt(agg, aggCols, ColLoginCountMean))
		sessionMean := zeroIfNaN(valueAt(agg, aggCols, ColSessionDurationMean))
		featuresMean := zeroIfNaN(valueAt(agg, aggCols, ColFeaturesUsedMean))
		ticketsSum := zeroIfNaN(valueAt(agg, aggCols, ColSupportTicketsSum))

		row = append(row,
			AvgSessionPerLogin(sessionMean, loginMean),
			SupportTicketRate(ticketsSum, tenure),
			EngagementScore(loginMean, sessionMean, featuresMean),
		)

		for _, d := range dummies {
			v := d.value(c)
			for _, level := range d.levels {
				row = append(row, boolToFloat(v == level))
			}
		}

		// Remaining numeric nulls (age, charges) become zero.
		for j, v := range row {
			row[j] = zeroIfNaN(v)
		}

		err := t.AppendRow(Identity{
			CustomerID:   c.CustomerID,
			CustomerCode: c.CustomerCode,
			Location:     c.Location,
			SignupDate:   c.SignupDate,
			ChurnDate:    c.ChurnDate,
			ChurnReason:  c.ChurnReason,
		}, row)
		if err != nil {
			return nil, fmt.Errorf("customer %d: %w", c.CustomerID, err)
		}
	}
	return t, nil
}

// AvgSessionPerLogin is session minutes per login; a zero login mean is replaced by 1.
func AvgSessionPerLogin(sessionMean, loginMean float64) float64 {
	if loginMean == 0 {
		loginMean = 1
	}
	return round4(sessionMean / loginMean)
}

// SupportTicketRate normalises the ticket count to a 30-day rate; zero tenure is replaced by 1.
func SupportTicketRate(ticketsSum, tenureDays float64) float64 {
	if tenureDays == 0 {
		tenureDays = 1
	}
	return round4(ticketsSum / tenureDays * 30)
}

// EngagementScore weights login frequency, session hours and feature breadth.
func EngagementScore(loginMean, sessionMean, featuresMean float64) float64 {
	return round4(loginMean*0.3 + (sessionMean/60)*0.4 + featuresMean*0.3)
}

type categorical struct {
	column string
	value  func(c *model.CustomerRecord) string
	levels []string
}

var categoryAccessors = map[string]func(c *model.CustomerRecord) string{
	"gender":            func(c *model.CustomerRecord) string { return c.Gender },
	"subscription_type": func(c *model.CustomerRecord) string { return c.SubscriptionType },
	"contract_length":   func(c *model.CustomerRecord) string { return c.ContractLength },
	"payment_method":    func(c *model.CustomerRecord) string { return c.PaymentMethod },
}

// categoryLevels collects the sorted distinct non-empty values of every
// categorical column. Empty values get no indicator (all zeros).
func categoryLevels(customers []model.CustomerRecord) []categorical {
	cats := make([]categorical, 0, len(CategoricalColumns))
	for _, col := range CategoricalColumns {
		cats = append(cats, categorical{column: col, value: categoryAccessors[col]})
	}
	for k := range cats {
		seen := make(map[string]struct{})
		for i := range customers {
			v := cats[k].value(&customers[i])
			if v == "" {
				continue
			}
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				cats[k].levels = append(cats[k].levels, v)
			}
		}
		sort.Strings(cats[k].levels)
	}
	return cats
}

func valueAt(values []float64, cols []string, name string) float64 {
	for i, c := range cols {
		if c == name {
			return values[i]
		}
	}
	return math.NaN()
}

func intOrNaN(p *int) float64 {
	if p == nil {
		return math.NaN()
	}
	return float64(*p)
}

func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
