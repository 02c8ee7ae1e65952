package model

import (
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/luna-health/triage-go/internal/errors"
	"github.com/luna-health/triage-go/internal/logger"
	"github.com/luna-health/triage-go/pkg/models"
)

// RegistryConfig maps analysis types to their artifact files.
type RegistryConfig struct {
	ModelsDir           string
	SkinModelFile       string
	DischargeModelFile  string
	PatternModelFile    string
	HemoglobinModelFile string
}

// Registry owns all model heads. Artifacts are loaded lazily on first use,
// guarded by singleflight so concurrent first-requests trigger exactly one
// load, and are immutable and shared read-only afterwards.
type Registry struct {
	cfg RegistryConfig

	group       singleflight.Group
	mu          sync.RWMutex
	classifiers map[models.AnalysisType]*Classifier
	regressor   *Regressor
}

// NewRegistry creates a registry. No artifacts are touched until first use
// or an explicit Status call.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:         cfg,
		classifiers: make(map[models.AnalysisType]*Classifier),
	}
}

func (r *Registry) artifactPath(t models.AnalysisType) string {
	var file string
	switch t {
	case models.AnalysisSkin:
		file = r.cfg.SkinModelFile
	case models.AnalysisDischarge:
		file = r.cfg.DischargeModelFile
	case models.AnalysisPattern:
		file = r.cfg.PatternModelFile
	case models.AnalysisHemoglobin:
		file = r.cfg.HemoglobinModelFile
	}
	return filepath.Join(r.cfg.ModelsDir, file)
}

// Classifier returns the classification head for an analysis type, loading
// its checkpoint on first use. A missing or invalid artifact surfaces as a
// resource-unavailable error, never a panic.
func (r *Registry) Classifier(t models.AnalysisType) (*Classifier, error) {
	r.mu.RLock()
	if c, ok := r.classifiers[t]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do("classifier:"+string(t), func() (interface{}, error) {
		r.mu.RLock()
		if c, ok := r.classifiers[t]; ok {
			r.mu.RUnlock()
			return c, nil
		}
		r.mu.RUnlock()

		path := r.artifactPath(t)
		ckpt, err := LoadCheckpoint(path)
		if err != nil {
			return nil, apperrors.NewResourceUnavailableError("model artifact unavailable for "+string(t), err)
		}
		if ckpt.Task != TaskClassification {
			return nil, apperrors.NewResourceUnavailableError("artifact for "+string(t)+" is not a classification head", nil)
		}
		c := NewClassifier(ckpt)
		logger.WithField("path", path).Info("Loaded classification head")

		r.mu.Lock()
		r.classifiers[t] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Classifier), nil
}

// HemoglobinRegressor returns the calibrated regression head, loading it on
// first use.
func (r *Registry) HemoglobinRegressor() (*Regressor, error) {
	r.mu.RLock()
	if r.regressor != nil {
		reg := r.regressor
		r.mu.RUnlock()
		return reg, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do("regressor:hemoglobin", func() (interface{}, error) {
		r.mu.RLock()
		if r.regressor != nil {
			reg := r.regressor
			r.mu.RUnlock()
			return reg, nil
		}
		r.mu.RUnlock()

		path := r.artifactPath(models.AnalysisHemoglobin)
		ckpt, err := LoadCheckpoint(path)
		if err != nil {
			return nil, apperrors.NewResourceUnavailableError("hemoglobin model artifact unavailable", err)
		}
		if ckpt.Task != TaskRegression {
			return nil, apperrors.NewResourceUnavailableError("hemoglobin artifact is not a regression head", nil)
		}
		reg := NewRegressor(ckpt)
		scale, shift := reg.Calibration()
		logger.WithFields(map[string]interface{}{
			"path":  path,
			"scale": scale,
			"shift": shift,
		}).Info("Loaded hemoglobin regression head")

		r.mu.Lock()
		r.regressor = reg
		r.mu.Unlock()
		return reg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Regressor), nil
}

// Status eagerly checks artifact availability without loading anything,
// so callers can probe readiness before submitting work.
func (r *Registry) Status() models.ModelsStatus {
	types := []models.AnalysisType{
		models.AnalysisSkin,
		models.AnalysisDischarge,
		models.AnalysisPattern,
		models.AnalysisHemoglobin,
	}

	status := models.ModelsStatus{Ready: true}
	for _, t := range types {
		path := r.artifactPath(t)
		_, err := os.Stat(path)
		available := err == nil
		if !available {
			status.Ready = false
		}
		status.Artifacts = append(status.Artifacts, models.ArtifactStatus{
			Name:      string(t),
			Path:      path,
			Available: available,
		})
	}
	return status
}
