package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// DailyETLWorker refreshes the feature store on a fixed interval.
type DailyETLWorker struct {
	etl        ETLRunner
	interval   time.Duration
	runTimeout time.Duration
	baseLogger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewDailyETLWorker creates a worker that runs the pipeline every interval.
// runTimeout <= 0 leaves runs unbounded.
func NewDailyETLWorker(etl ETLRunner, interval, runTimeout time.Duration, baseLogger *zap.Logger) *DailyETLWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if baseLogger == nil {
		baseLogger = logger.Log
	}
	return &DailyETLWorker{
		etl:        etl,
		interval:   interval,
		runTimeout: runTimeout,
		baseLogger: baseLogger.Named("etl_worker"),
		done:       make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop or ctx is done.
func (w *DailyETLWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	utils.SafeGo(func() {
		defer close(w.done)
		w.RunForever(ctx)
	}, func(r interface{}, stack []byte) {
		utils.LogPanic(ctx, "etl worker", r, stack)
	})
}

// Stop cancels the loop and waits for an in-flight run to return.
func (w *DailyETLWorker) Stop() {
	w.once.Do(func() {
		if w.cancel == nil {
			close(w.done)
			return
		}
		w.cancel()
		<-w.done
	})
}

// RunForever waits one interval, runs the pipeline, and repeats until ctx is
// done. A failed run is logged and retried at the next tick.
func (w *DailyETLWorker) RunForever(ctx context.Context) {
	w.baseLogger.Info("ETL worker started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.baseLogger.Info("ETL worker stopped")
			return
		case <-ticker.C:
			_ = w.RunOnce(ctx)
		}
	}
}

// RunOnce runs the pipeline with its own run id and timeout.
func (w *DailyETLWorker) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	log := w.baseLogger.With(zap.String("run_id", runID))
	runCtx := logger.WithRunID(logger.WithLogger(ctx, w.baseLogger), runID)
	if w.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, w.runTimeout)
		defer cancel()
	}

	start := time.Now()
	run := utils.WrapWithContextRecovery(func(ctx context.Context) error {
		_, err := w.etl.RunETLPipeline(ctx)
		return err
	})
	err := run(runCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: etl run exceeded %s: %w", apperrors.ErrTimeout, w.runTimeout, err)
	}
	if err != nil {
		log.Error("Scheduled ETL run failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return err
	}
	log.Info("Scheduled ETL run finished", zap.Duration("duration", time.Since(start)))
	return nil
}
