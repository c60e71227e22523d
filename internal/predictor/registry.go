package predictor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
)

// Registry owns the churn and lifetime-value predictors currently serving
// requests. Retraining builds new predictors and swaps them in, so readers
// never observe a half-trained model.
type Registry struct {
	dir       string
	churnFile string
	clvFile   string

	churn atomic.Pointer[ChurnPredictor]
	clv   atomic.Pointer[LifetimeValuePredictor]
}

// NewRegistry creates an empty registry whose artifacts live in dir.
func NewRegistry(dir, churnFile, clvFile string) *Registry {
	return &Registry{dir: dir, churnFile: churnFile, clvFile: clvFile}
}

// Dir is the artifact directory.
func (r *Registry) Dir() string { return r.dir }

// ChurnPath is where the churn artifact is stored.
func (r *Registry) ChurnPath() string { return filepath.Join(r.dir, r.churnFile) }

// CLVPath is where the lifetime-value artifact is stored.
func (r *Registry) CLVPath() string { return filepath.Join(r.dir, r.clvFile) }

// Churn returns the serving churn predictor, or nil.
func (r *Registry) Churn() *ChurnPredictor { return r.churn.Load() }

// CLV returns the serving lifetime-value predictor, or nil.
func (r *Registry) CLV() *LifetimeValuePredictor { return r.clv.Load() }

// SetChurn swaps in a trained churn predictor.
func (r *Registry) SetChurn(p *ChurnPredictor) { r.churn.Store(p) }

// SetCLV swaps in a trained lifetime-value predictor.
func (r *Registry) SetCLV(p *LifetimeValuePredictor) { r.clv.Store(p) }

// LoadFromDir loads whichever artifacts exist. Missing files are skipped;
// unreadable ones are reported after the other model has been tried.
func (r *Registry) LoadFromDir(modelType string, opts ...Option) error {
	var errs []error

	if path := r.ChurnPath(); fileExists(path) {
		p, err := NewChurnPredictor(modelType, opts...)
		if err == nil {
			err = p.LoadModel(path)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("load churn model: %w", err))
		} else {
			r.SetChurn(p)
		}
	} else {
		logger.Log.Info("No churn model artifact found", zap.String("path", path))
	}

	if path := r.CLVPath(); fileExists(path) {
		p := NewLifetimeValuePredictor(opts...)
		if err := p.LoadModel(path); err != nil {
			errs = append(errs, fmt.Errorf("load clv model: %w", err))
		} else {
			r.SetCLV(p)
		}
	} else {
		logger.Log.Info("No clv model artifact found", zap.String("path", path))
	}

	return errors.Join(errs...)
}

// ModelStatus describes one serving model.
type ModelStatus struct {
	Loaded    bool       `json:"loaded"`
	ModelType string     `json:"model_type,omitempty"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
	// Artifact is the header of the model file on disk, if one is readable.
	Artifact *ArtifactMetadata `json:"artifact,omitempty"`
}

// Status is the registry view reported by health checks.
type Status struct {
	ChurnModel ModelStatus `json:"churn_model"`
	CLVModel   ModelStatus `json:"clv_model"`
}

// Status reports which models can serve predictions.
func (r *Registry) Status() Status {
	var s Status
	if p := r.Churn(); p != nil && p.IsTrained() {
		at := p.TrainedAt()
		s.ChurnModel = ModelStatus{Loaded: true, ModelType: p.ModelType().String(), TrainedAt: &at}
	}
	if p := r.CLV(); p != nil && p.IsTrained() {
		at := p.TrainedAt()
		s.CLVModel = ModelStatus{Loaded: true, ModelType: clvModelType, TrainedAt: &at}
	}
	s.ChurnModel.Artifact = artifactInfo(r.ChurnPath())
	s.CLVModel.Artifact = artifactInfo(r.CLVPath())
	return s
}

func artifactInfo(path string) *ArtifactMetadata {
	if !fileExists(path) {
		return nil
	}
	meta, err := ReadArtifactMetadata(path)
	if err != nil {
		logger.Log.Warn("Unreadable model artifact", zap.String("path", path), zap.Error(err))
		return nil
	}
	return &meta
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
