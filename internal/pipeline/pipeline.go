package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/jetstream"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/storage"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// Result summarizes one ETL run.
type Result struct {
	RunID       string          `json:"run_id"`
	FeatureDate time.Time       `json:"feature_date"`
	Customers   int             `json:"customers"`
	UsageRows   int             `json:"usage_rows"`
	RowsLoaded  int             `json:"records_processed"`
	Duration    time.Duration   `json:"-"`
	Features    *features.Table `json:"-"`
}

// FeaturesLoadedEvent is published after a snapshot is written.
type FeaturesLoadedEvent struct {
	RunID       string `json:"run_id"`
	FeatureDate string `json:"feature_date"`
	Rows        int    `json:"rows"`
	Columns     int    `json:"columns"`
	CompletedAt string `json:"completed_at"`
}

// Pipeline wires extract, transform and load.
type Pipeline struct {
	extractor     *Extractor
	loader        *Loader
	events        jetstream.Publisher
	eventsSubject string
	now           func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEvents publishes a features.loaded event on subject after every load.
func WithEvents(publisher jetstream.Publisher, subject string) Option {
	return func(p *Pipeline) {
		p.events = publisher
		p.eventsSubject = subject
	}
}

// WithClock overrides the time source used for tenure and snapshot dates.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline over the given repositories.
func New(extract storage.ExtractRepo, store storage.FeatureStoreRepo, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: NewExtractor(extract),
		loader:    NewLoader(store),
		now:       utils.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extractor exposes the extract stage for read-only callers.
func (p *Pipeline) Extractor() *Extractor { return p.extractor }

// TransformFeatures derives the feature table and records the stage.
func (p *Pipeline) TransformFeatures(ctx context.Context, ex extracted) (*features.Table, error) {
	log := logger.FromContext(ctx)
	log.Info("Transforming features...")

	startTime := time.Now()
	table, err := features.Transform(ex.customers, ex.usage, p.now())
	if err != nil {
		observer.ObserveETLStage(StageTransform, 0, time.Since(startTime), err)
		return nil, fmt.Errorf("transform features: %w", err)
	}
	observer.ObserveETLStage(StageTransform, table.Len(), time.Since(startTime), nil)

	log.Info(fmt.Sprintf("Created features for %d customers", table.Len()), zap.Int("columns", len(table.Columns())))
	return table, nil
}

// RunETLPipeline extracts every customer, builds the feature table and
// replaces today's feature-store snapshot.
func (p *Pipeline) RunETLPipeline(ctx context.Context) (*Result, error) {
	runID := logger.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.WithRunID(ctx, runID)
	}
	log := logger.FromContext(ctx)
	log.Info("Starting ETL pipeline...")
	startTime := time.Now()

	result, err := p.run(ctx, runID)
	if err != nil {
		log.Error("ETL pipeline failed", zap.Error(err))
		return nil, err
	}
	result.Duration = time.Since(startTime)
	observer.MarkETLSuccess(p.now())

	p.publishLoaded(ctx, result)
	log.Info("ETL pipeline completed successfully",
		zap.Int("records_processed", result.RowsLoaded),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, runID string) (*Result, error) {
	customers, err := p.extractor.ExtractCustomerData(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	usage, err := p.extractor.ExtractUsageData(ctx, nil)
	if err != nil {
		return nil, err
	}

	table, err := p.TransformFeatures(ctx, extracted{customers: customers, usage: usage})
	if err != nil {
		return nil, err
	}

	now := p.now()
	n, err := p.loader.LoadFeatures(ctx, table, now)
	if err != nil {
		return nil, err
	}
	return &Result{
		RunID:       runID,
		FeatureDate: utils.StartOfDay(now),
		Customers:   len(customers),
		UsageRows:   len(usage),
		RowsLoaded:  n,
		Features:    table,
	}, nil
}

// FeaturesForCustomers builds feature rows for the listed customers without
// touching the feature store.
func (p *Pipeline) FeaturesForCustomers(ctx context.Context, ids []int64) (*features.Table, error) {
	customers, err := p.extractor.ExtractCustomersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	usage, err := p.extractor.ExtractUsageData(ctx, ids)
	if err != nil {
		return nil, err
	}
	table, err := p.TransformFeatures(ctx, extracted{customers: customers, usage: usage})
	if err != nil {
		return nil, err
	}
	return table.FilterCustomers(ids), nil
}

// publishLoaded announces the snapshot. Failures are logged only.
func (p *Pipeline) publishLoaded(ctx context.Context, result *Result) {
	if p.events == nil || p.eventsSubject == "" {
		return
	}
	columns := 0
	if result.Features != nil {
		columns = len(result.Features.Columns())
	}
	data, err := json.Marshal(FeaturesLoadedEvent{
		RunID:       result.RunID,
		FeatureDate: result.FeatureDate.Format(utils.DateLayout),
		Rows:        result.RowsLoaded,
		Columns:     columns,
		CompletedAt: utils.FormatISO8601(p.now()),
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to encode features loaded event", zap.Error(err))
		return
	}
	headers := map[string]string{"Nats-Msg-Id": result.RunID}
	if err := p.events.Publish(ctx, p.eventsSubject, data, headers); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish features loaded event",
			zap.Bool("retryable", apperrors.IsRetryable(err)),
			zap.Error(err),
		)
	}
}
