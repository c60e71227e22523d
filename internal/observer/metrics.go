package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	etlStageLabels  = []string{"stage", "status"}
	modelLabels     = []string{"model", "model_type"}
	modelMetricTags = []string{"model", "model_type", "metric"}

	// ETL pipeline
	ETLStageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "churn_analytics_etl_stage_duration_seconds",
			Help:    "Histogram of ETL stage durations (extract, transform, load).",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~3m
		},
		etlStageLabels,
	)
	ETLRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_analytics_etl_rows_total",
			Help: "Total number of rows handled by each ETL stage.",
		},
		[]string{"stage"},
	)
	ETLLastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "churn_analytics_etl_last_success_timestamp_seconds",
		Help: "Unix time of the last ETL run that loaded the feature store.",
	})

	// Model training / serving
	ModelTrainingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "churn_analytics_model_training_duration_seconds",
			Help:    "Histogram of model training durations.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
		},
		modelLabels,
	)
	ModelMetric = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "churn_analytics_model_metric",
			Help: "Evaluation metric of the most recently trained model (accuracy, auc, r2, ...).",
		},
		modelMetricTags,
	)
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_analytics_predictions_total",
			Help: "Total number of rows scored, labeled by model.",
		},
		[]string{"model"},
	)
	TrackingFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_analytics_tracking_failures_total",
			Help: "Total number of experiment tracking writes that failed and were skipped.",
		},
		[]string{"tracker"},
	)

	// Seeder
	SeederRowsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churn_analytics_seeder_rows_inserted_total",
			Help: "Total number of synthetic rows inserted by the seeder.",
		},
		[]string{"entity"},
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "churn_analytics_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// InitMetrics toggles metric collection. Collectors are registered by promauto
// at package init; disabling only stops the helpers from recording.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// ObserveETLStage records one ETL stage run and the number of rows it produced.
func ObserveETLStage(stage string, rows int, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	ETLStageDurationSeconds.WithLabelValues(stage, statusLabel(err)).Observe(duration.Seconds())
	if err == nil {
		ETLRowsTotal.WithLabelValues(stage).Add(float64(rows))
	}
}

// MarkETLSuccess stamps the last successful load time.
func MarkETLSuccess(at time.Time) {
	if !metricsEnabled {
		return
	}
	ETLLastSuccessTimestamp.Set(float64(at.Unix()))
}

// ObserveTraining records training duration and metric gauges for a model.
func ObserveTraining(model, modelType string, duration time.Duration, metrics map[string]float64) {
	if !metricsEnabled {
		return
	}
	ModelTrainingDurationSeconds.WithLabelValues(model, modelType).Observe(duration.Seconds())
	for name, value := range metrics {
		ModelMetric.WithLabelValues(model, modelType, name).Set(value)
	}
}

// AddPredictions counts scored rows.
func AddPredictions(model string, rows int) {
	if !metricsEnabled {
		return
	}
	PredictionsTotal.WithLabelValues(model).Add(float64(rows))
}

// IncTrackingFailure counts a tracking write that was dropped.
func IncTrackingFailure(tracker string) {
	if !metricsEnabled {
		return
	}
	TrackingFailuresTotal.WithLabelValues(tracker).Inc()
}

// AddSeededRows counts rows inserted by the seeder.
func AddSeededRows(entity string, rows int) {
	if !metricsEnabled {
		return
	}
	SeederRowsInsertedTotal.WithLabelValues(entity).Add(float64(rows))
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, statusLabel(err)).Observe(duration.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
