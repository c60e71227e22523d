package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/config"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/pipeline"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/predictor"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/storage"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/tracking"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/usecase"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/validator"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
)

// SeedOptions are the seeder flags.
type SeedOptions struct {
	Customers   int     `json:"customers" validate:"gte=1"`
	Months      int     `json:"months" validate:"gte=1,lte=120"`
	ChurnRate   float64 `json:"churn_rate" validate:"gte=0,lte=1"`
	BatchSize   int     `json:"batch_size" validate:"gte=1"`
	Concurrency int     `json:"concurrency" validate:"gte=1"`
	Seed        int64   `json:"seed"`
}

// customerBatch is one unit of work for the pool: customers that already
// have ids and still need usage and churn rows.
type customerBatch struct {
	ctx       context.Context
	customers []model.Customer
	faker     *gofakeit.Faker
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	var opts SeedOptions
	flag.IntVar(&opts.Customers, "customers", 1000, "Number of customers to generate")
	flag.IntVar(&opts.Months, "months", 12, "Months of usage history per customer")
	flag.Float64Var(&opts.ChurnRate, "churn-rate", 0.25, "Base probability that a customer churned")
	flag.IntVar(&opts.BatchSize, "batch-size", 200, "Customers per insert batch")
	flag.IntVar(&opts.Concurrency, "concurrency", 4, "Number of concurrent insert workers")
	flag.Int64Var(&opts.Seed, "seed", time.Now().UnixNano(), "Random seed for generated data")
	migrate := flag.Bool("migrate", true, "Create the analytics tables before seeding")
	train := flag.Bool("train", false, "Run the ETL pipeline and train both models after seeding")
	metricsPort := flag.Int("metrics-port", 0, "Port for Prometheus metrics endpoint (0 disables it)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Churn Analytics Seeder\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Fills customers, churn_events and usage_metrics with synthetic data.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := validator.Validate(opts); err != nil {
		fmt.Printf("Invalid options: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *metricsPort > 0 {
		metricsServer := startMetricsServer(*metricsPort)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Log.Info("Received termination signal, stopping...", zap.String("signal", sig.String()))
		cancel()
	}()

	dbCfg := cfg.Database
	dbCfg.PostgresAutoMigrate = dbCfg.PostgresAutoMigrate || *migrate
	repo, err := storage.NewPostgresRepo(dbCfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}
	defer func() { _ = repo.Close(context.Background()) }()

	logger.Log.Info("Starting seeder", zap.Any("options", opts))
	start := time.Now()
	if err := seed(ctx, repo, opts); err != nil {
		if apperrors.IsDuplicateError(err) {
			logger.Log.Fatal("Seeding failed on existing customer codes, rerun with another -seed", zap.Error(err))
		}
		logger.Log.Fatal("Seeding failed", zap.Error(err))
	}
	logger.Log.Info("Seeding finished", zap.Duration("duration", time.Since(start)))

	if *train {
		if err := trainModels(ctx, cfg, repo); err != nil {
			logger.Log.Fatal("Training failed", zap.Error(err))
		}
	}
}

// seed inserts customers batch by batch on the caller goroutine, since their
// ids are needed, and hands each inserted batch to the pool for usage and
// churn rows.
func seed(ctx context.Context, repo storage.SeedRepo, opts SeedOptions) error {
	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		errList []error
	)
	record := func(err error) {
		errMu.Lock()
		errList = append(errList, err)
		errMu.Unlock()
	}

	pool, err := ants.NewPoolWithFunc(opts.Concurrency, func(data interface{}) {
		defer wg.Done()
		batch := data.(customerBatch)
		if err := seedActivity(batch.ctx, repo, batch, opts); err != nil {
			record(err)
		}
	}, ants.WithPanicHandler(func(p interface{}) {
		logger.Log.Error("Panic recovered in seeder worker", zap.Any("panic", p), zap.Stack("stack"))
		record(fmt.Errorf("seeder worker panic: %v", p))
	}))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	codes := bloom.NewWithEstimates(uint(opts.Customers), 0.001)
	for done := 0; done < opts.Customers; done += opts.BatchSize {
		if ctx.Err() != nil {
			break
		}
		n := min(opts.BatchSize, opts.Customers-done)
		faker := gofakeit.New(opts.Seed + int64(done))

		customers := make([]model.Customer, n)
		for i := range customers {
			customers[i] = *newCustomer(faker, codes)
		}
		if err := repo.InsertCustomers(ctx, customers); err != nil {
			record(err)
			break
		}

		wg.Add(1)
		if err := pool.Invoke(customerBatch{ctx: ctx, customers: customers, faker: faker}); err != nil {
			wg.Done()
			record(fmt.Errorf("failed to submit batch: %w", err))
			break
		}
		logger.Log.Info("Inserted customers", zap.Int("inserted", done+n), zap.Int("total", opts.Customers))
	}

	wg.Wait()
	return errors.Join(errList...)
}

// seedActivity generates usage for every customer of the batch and marks
// some of them churned. Monthly contracts, high prices and low engagement
// churn more often so the models have signal to learn.
func seedActivity(ctx context.Context, repo storage.SeedRepo, batch customerBatch, opts SeedOptions) error {
	var (
		usage  []model.UsageMetric
		events []model.ChurnEvent
	)
	for _, c := range batch.customers {
		rows := model.NewUsageSeries(c.CustomerID, opts.Months)
		engagement := 0.0
		for _, u := range rows {
			engagement += u.LoginCount
		}
		usage = append(usage, rows...)

		if batch.faker.Float64() < churnProbability(c, engagement/float64(len(rows)), opts.ChurnRate) {
			events = append(events, *model.NewChurnEvent(c.CustomerID))
		}
	}

	if err := repo.InsertUsage(ctx, usage); err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	if err := repo.InsertChurnEvents(ctx, events); err != nil {
		return fmt.Errorf("insert churn events: %w", err)
	}
	return nil
}

func churnProbability(c model.Customer, avgLogins, base float64) float64 {
	p := base
	switch c.ContractLength {
	case "Monthly":
		p *= 1.6
	case "Annual":
		p *= 0.4
	}
	if c.MonthlyCharges != nil && *c.MonthlyCharges > 100 {
		p *= 1.3
	}
	if avgLogins < 10 {
		p *= 1.5
	}
	return min(p, 0.95)
}

// newCustomer draws a customer whose code the filter has not seen. A false
// positive only costs another draw.
func newCustomer(faker *gofakeit.Faker, codes *bloom.BloomFilter) *model.Customer {
	code := "CUST-" + faker.DigitN(10)
	for codes.TestAndAddString(code) {
		code = "CUST-" + faker.DigitN(10)
	}
	return model.NewCustomer(&model.Customer{
		CustomerCode:     code,
		SubscriptionType: faker.RandomString(model.SubscriptionTypes),
		ContractLength:   faker.RandomString(model.ContractLengths),
		PaymentMethod:    faker.RandomString(model.PaymentMethods),
		PaperlessBilling: faker.Bool(),
	})
}

// trainModels runs the same training path as the service on the seeded data
// and prints the evaluation.
func trainModels(ctx context.Context, cfg *config.Config, repo *storage.PostgresRepo) error {
	registry := predictor.NewRegistry(cfg.Models.Dir, cfg.Models.ChurnFile, cfg.Models.CLVFile)
	etl := pipeline.New(repo, repo)
	service := usecase.NewAnalyticsService(etl, etl.Extractor(), registry, usecase.TrainingConfig{
		ChurnModelType: cfg.Models.ChurnModelType,
		TestSize:       cfg.Training.TestSize,
		Options: []predictor.Option{
			predictor.WithSeed(cfg.Training.Seed),
			predictor.WithWorkers(cfg.Training.Workers),
			predictor.WithTracker(tracking.NewDBTracker(repo)),
		},
	})

	result, err := service.TrainModels(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func startMetricsServer(port int) *http.Server {
	logger.Log.Info("Starting Prometheus metrics server", zap.Int("port", port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Failed to start Prometheus metrics server", zap.Error(err))
		}
	}()
	return server
}
