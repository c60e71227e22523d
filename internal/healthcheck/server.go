package healthcheck

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/predictor"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// ModelStatusProvider reports which models can serve predictions
type ModelStatusProvider interface {
	Status() predictor.Status
}

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents a health check HTTP server
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux // Expose mux for adding handlers
	logger     *zap.Logger
	models     ModelStatusProvider
	db         Pinger
}

// ModelsLoaded is the per-model readiness reported by /health
type ModelsLoaded struct {
	ChurnModel bool `json:"churn_model"`
	CLVModel   bool `json:"clv_model"`
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Timestamp    string            `json:"timestamp,omitempty"`
	ModelsLoaded *ModelsLoaded     `json:"models_loaded,omitempty"`
	Models       *predictor.Status `json:"models,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// NewServer creates a new health check server. models and db may be nil.
func NewServer(port string, logger *zap.Logger, models ModelStatusProvider, db Pinger) *Server {
	mux := http.NewServeMux()

	server := &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		mux:    mux, // Store the mux
		logger: logger,
		models: models,
		db:     db,
	}

	// Register default health check endpoints
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)

	return server
}

// Handler exposes the mux for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler(handler http.Handler) {
	s.logger.Info("Registering /metrics endpoint")
	s.mux.Handle("/metrics", handler)
}

// Start begins the HTTP server
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting health check server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health check server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping health check server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles the /health endpoint for liveness probes. It always
// answers 200 and reports which models are loaded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Timestamp: utils.FormatISO8601(utils.Now()),
	}
	if s.models != nil {
		status := s.models.Status()
		resp.Models = &status
		resp.ModelsLoaded = &ModelsLoaded{
			ChurnModel: status.ChurnModel.Loaded,
			CLVModel:   status.CLVModel.Loaded,
		}
	}

	s.write(w, http.StatusOK, resp)
}

// handleReady handles the /ready endpoint for readiness probes. The service
// is ready once the database answers; models are not required.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "READY",
		Details: map[string]string{
			"timestamp": utils.FormatISO8601(utils.Now()),
		},
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("Readiness check failed", zap.Error(err))
			resp.Status = "NOT_READY"
			resp.Details["database"] = err.Error()
			s.write(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Details["database"] = "ok"
	}

	s.write(w, http.StatusOK, resp)
}

func (s *Server) write(w http.ResponseWriter, status int, resp HealthResponse) {
	if err := utils.WriteJSON(w, status, resp); err != nil {
		s.logger.Warn("Failed to write health response", zap.Error(err))
	}
}
