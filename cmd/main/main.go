package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/config"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/healthcheck"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/jetstream"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/pipeline"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/predictor"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/storage"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/tracking"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/usecase"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Churn Analytics Platform",
		zap.String("environment", cfg.Environment),
		zap.String("churn_model_type", cfg.Models.ChurnModelType),
		zap.String("model_dir", cfg.Models.Dir),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
	)

	// Initialize repository
	postgresRepo, err := storage.NewPostgresRepo(cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// NATS is optional: without it runs are tracked in postgres only
	var jsClient *jetstream.Client
	if cfg.NATS.Enabled {
		jsClient, err = initJetStreamClient(cfg.NATS)
		if err != nil {
			logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
		}
	}

	trackers := tracking.Multi{tracking.NewDBTracker(postgresRepo)}
	pipelineOpts := []pipeline.Option{}
	if jsClient != nil {
		trackers = append(trackers, tracking.NewNATSTracker(jsClient, cfg.NATS.TrackingSubject, tracking.BreakerConfig{
			FailureThreshold: cfg.NATS.BreakerFailures,
			Timeout:          cfg.NATS.BreakerTimeout,
		}))
		pipelineOpts = append(pipelineOpts, pipeline.WithEvents(jsClient, cfg.NATS.EventsSubject))
	}

	predictorOpts := []predictor.Option{
		predictor.WithSeed(cfg.Training.Seed),
		predictor.WithWorkers(cfg.Training.Workers),
		predictor.WithTracker(trackers),
	}

	// Load whichever models were trained by a previous process
	registry := predictor.NewRegistry(cfg.Models.Dir, cfg.Models.ChurnFile, cfg.Models.CLVFile)
	if err := registry.LoadFromDir(cfg.Models.ChurnModelType, predictorOpts...); err != nil {
		if apperrors.IsArtifactError(err) {
			logger.Log.Error("Stored model artifact is corrupt, retrain to replace it", zap.Error(err))
		} else {
			logger.Log.Error("Failed to load stored models, continuing without them", zap.Error(err))
		}
	}

	etl := pipeline.New(postgresRepo, postgresRepo, pipelineOpts...)
	service := usecase.NewAnalyticsService(etl, etl.Extractor(), registry, usecase.TrainingConfig{
		ChurnModelType: cfg.Models.ChurnModelType,
		TestSize:       cfg.Training.TestSize,
		Options:        predictorOpts,
	})
	logger.Log.Info("Analytics service ready", zap.Any("models", service.Registry().Status()))

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	var etlWorker *usecase.DailyETLWorker
	if cfg.ETL.Enabled {
		etlWorker = usecase.NewDailyETLWorker(etl, cfg.ETL.Interval, cfg.ETL.RunTimeout, logger.Log)
		etlWorker.Start(mainCtx)
	}

	// Create health check server
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Server.Port), logger.Log, registry, postgresRepo)

	// Register metrics handler if enabled BEFORE starting the server
	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	healthServer.Start()

	logger.Log.Info("Health check endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup

	// Stop the scheduled ETL, letting an in-flight run return
	utils.SafeGoWait(&wg, "stopping ETL worker", func() {
		if etlWorker == nil {
			return
		}
		logger.Log.Info("[shutdown] Stopping ETL worker")
		start := time.Now()
		etlWorker.Stop()
		logger.Log.Info("[shutdown] ETL worker stopped", zap.Duration("duration", time.Since(start)))
	})

	// Shutdown health check server (includes metrics if enabled)
	utils.SafeGoWait(&wg, "stopping health check server", func() {
		logger.Log.Info("[shutdown] Stopping health check server")
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	})

	// Close connections
	utils.SafeGoWait(&wg, "closing connections", func() {
		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		if jsClient != nil {
			logger.Log.Info("[shutdown] Closing JetStream connection")
			jsStart := time.Now()
			jsClient.Close()
			logger.Log.Info("[shutdown] JetStream connection closed",
				zap.Duration("duration", time.Since(jsStart)))
		}
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Churn Analytics Platform shutdown complete")
}

// initJetStreamClient connects to NATS and makes sure the analytics stream
// covers the tracking and event subjects.
func initJetStreamClient(cfg config.NATSConfig) (*jetstream.Client, error) {
	client, err := jetstream.NewClient(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	maxAge := time.Duration(cfg.MaxAgeDays) * 24 * time.Hour
	stream := jetstream.StreamConfig(cfg.TrackingStream, []string{cfg.TrackingSubject, cfg.EventsSubject}, maxAge)
	if err := client.SetupStream(ctx, stream); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set up stream %s: %w", cfg.TrackingStream, err)
	}

	logger.Log.Info("Initialized JetStream client", zap.String("stream", cfg.TrackingStream))
	return client, nil
}
