//go:build integration

package integration_test

import (
	"encoding/json"
	"os"
	"path/filepath"

	natsgo "github.com/nats-io/nats.go"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/pipeline"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/predictor"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/tracking"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/usecase"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// PlatformSuite drives the real pipeline and training path against the containers.
type PlatformSuite struct {
	BaseIntegrationSuite
	modelDir string
}

func (s *PlatformSuite) SetupTest() {
	s.BaseIntegrationSuite.SetupTest()
	s.modelDir = s.T().TempDir()
}

// seedCustomers inserts n customers with six months of usage and marks every
// third one churned.
func (s *PlatformSuite) seedCustomers(n int) []int64 {
	customers := make([]model.Customer, n)
	for i := range customers {
		customers[i] = *model.NewCustomer()
	}
	s.Require().NoError(s.Repo.InsertCustomers(s.Ctx, customers))

	var (
		ids    []int64
		usage  []model.UsageMetric
		events []model.ChurnEvent
	)
	for i, c := range customers {
		s.Require().NotZero(c.CustomerID)
		ids = append(ids, c.CustomerID)
		usage = append(usage, model.NewUsageSeries(c.CustomerID, 6)...)
		if i%3 == 0 {
			events = append(events, *model.NewChurnEvent(c.CustomerID))
		}
	}
	s.Require().NoError(s.Repo.InsertUsage(s.Ctx, usage))
	s.Require().NoError(s.Repo.InsertChurnEvents(s.Ctx, events))
	return ids
}

func (s *PlatformSuite) newService() (*usecase.AnalyticsService, *pipeline.Pipeline) {
	trackers := tracking.Multi{
		tracking.NewDBTracker(s.Repo),
		tracking.NewNATSTracker(s.JetStream, trackingSubject, tracking.DefaultBreakerConfig()),
	}
	hp := predictor.DefaultHyperparameters()
	hp.RandomForest.NEstimators = 20

	etl := pipeline.New(s.Repo, s.Repo, pipeline.WithEvents(s.JetStream, eventsSubject))
	registry := predictor.NewRegistry(s.modelDir, "churn_model.bin", "clv_model.bin")
	service := usecase.NewAnalyticsService(etl, etl.Extractor(), registry, usecase.TrainingConfig{
		ChurnModelType: string(predictor.RandomForest),
		TestSize:       0.2,
		Options: []predictor.Option{
			predictor.WithSeed(11),
			predictor.WithWorkers(2),
			predictor.WithHyperparameters(hp),
			predictor.WithTracker(trackers),
		},
	})
	return service, etl
}

func (s *PlatformSuite) TestETLWritesSnapshotAndEvent() {
	s.seedCustomers(30)
	service, _ := s.newService()

	result, err := service.RunETL(s.Ctx)
	s.Require().NoError(err)
	s.Equal(30, result.RecordsProcessed)

	count, err := s.Repo.CountFeatureSnapshot(s.Ctx, utils.StartOfDay(utils.Now()))
	s.Require().NoError(err)
	s.EqualValues(30, count)

	// A second run on the same day replaces the snapshot instead of appending.
	_, err = service.RunETL(s.Ctx)
	s.Require().NoError(err)
	count, err = s.Repo.CountFeatureSnapshot(s.Ctx, utils.StartOfDay(utils.Now()))
	s.Require().NoError(err)
	s.EqualValues(30, count)

	msg := s.lastMessage(eventsSubject)
	var event pipeline.FeaturesLoadedEvent
	s.Require().NoError(json.Unmarshal(msg.Data, &event))
	s.Equal(30, event.Rows)
	s.Equal(result.RunID, event.RunID)
}

func (s *PlatformSuite) TestTrainPredictAndReload() {
	ids := s.seedCustomers(90)
	service, _ := s.newService()

	trained, err := service.TrainModels(s.Ctx)
	s.Require().NoError(err)
	s.Equal(90, trained.RecordsProcessed)
	s.Require().NotNil(trained.ChurnModel)
	s.Require().NotNil(trained.CLVModel)

	for _, name := range []string{"churn_model.bin", "clv_model.bin"} {
		_, err := os.Stat(filepath.Join(s.modelDir, name))
		s.NoError(err, name)
	}

	var runs int64
	s.Require().NoError(s.Repo.DB().WithContext(s.Ctx).Model(&model.ModelRun{}).Count(&runs).Error)
	s.EqualValues(2, runs)

	var tracked tracking.Run
	s.Require().NoError(json.Unmarshal(s.lastMessage(trackingSubject).Data, &tracked))
	s.Equal(trained.RunID, tracked.Params["pipeline_run_id"])

	req := usecase.PredictRequest{CustomerIDs: ids[:10]}
	churn, err := service.PredictChurn(s.Ctx, req)
	s.Require().NoError(err)
	s.Len(churn.Predictions, 10)
	for _, p := range churn.Predictions {
		s.GreaterOrEqual(p.ChurnProbability, 0.0)
		s.LessOrEqual(p.ChurnProbability, 1.0)
		s.Equal(predictor.RiskLevel(p.ChurnProbability), p.RiskLevel)
	}

	clv, err := service.PredictCLV(s.Ctx, req)
	s.Require().NoError(err)
	s.Len(clv.Predictions, 10)

	// A fresh process loads the saved artifacts and answers identically.
	restarted, _ := s.newService()
	s.Require().NoError(restarted.Registry().LoadFromDir(string(predictor.RandomForest)))
	again, err := restarted.PredictChurn(s.Ctx, req)
	s.Require().NoError(err)
	for i := range churn.Predictions {
		s.InDelta(churn.Predictions[i].ChurnProbability, again.Predictions[i].ChurnProbability, 1e-9)
	}
}

func (s *PlatformSuite) TestDashboardMatchesSeededData() {
	s.seedCustomers(12)
	service, _ := s.newService()

	dashboard, err := service.Dashboard(s.Ctx)
	s.Require().NoError(err)
	s.Equal(12, dashboard.Metrics.TotalCustomers)
	s.Equal(4, dashboard.Metrics.ChurnedCustomers)
	s.InDelta(4.0/12.0, dashboard.Metrics.ChurnRate, 1e-9)

	list, err := service.ListCustomers(s.Ctx, nil, nil)
	s.Require().NoError(err)
	s.Equal(12, list.Count)
}

func (s *PlatformSuite) TestReadinessPing() {
	s.NoError(s.Repo.Ping(s.Ctx))
}

func (s *PlatformSuite) lastMessage(subject string) *natsgo.RawStreamMsg {
	nc, err := natsgo.Connect(s.NATSURL)
	s.Require().NoError(err)
	defer nc.Close()
	js, err := nc.JetStream()
	s.Require().NoError(err)

	msg, err := js.GetLastMsg(trackingStream, subject)
	s.Require().NoError(err, "no message on %s", subject)
	return msg
}
