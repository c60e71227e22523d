package pipeline

import "gitlab.com/timkado/api/churn-analytics-platform/internal/model"

// extracted is the raw input of the transform stage.
type extracted struct {
	customers []model.CustomerRecord
	usage     []model.UsageMetric
}
