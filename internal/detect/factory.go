package detect

import (
	"fmt"
	"time"

	"github.com/luna-health/triage-go/pkg/models"
)

// Strategy names the two concrete detector implementations.
type Strategy string

const (
	StrategyLearned Strategy = "learned"
	StrategyContour Strategy = "contour"
)

// FactoryConfig carries everything needed to build either strategy.
type FactoryConfig struct {
	DetectorURL         string
	DetectorTimeout     time.Duration
	ConfidenceThreshold float64
	Contour             ContourConfig
}

// Factory builds region detectors per analysis type. Hemoglobin uses the
// learned nail detector; pattern analysis uses the classical contour
// detector. Whole-image analyses have no detector at all.
type Factory struct {
	cfg FactoryConfig
}

// NewFactory creates a detector factory.
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{cfg: cfg}
}

// ForAnalysisType returns the detector for a per-region analysis type, or an
// error for types that do not use region detection.
func (f *Factory) ForAnalysisType(t models.AnalysisType) (RegionDetector, error) {
	switch t {
	case models.AnalysisHemoglobin:
		return f.Create(StrategyLearned, models.RegionNail)
	case models.AnalysisPattern:
		return f.Create(StrategyContour, models.RegionPattern)
	default:
		return nil, fmt.Errorf("analysis type %q does not use region detection", t)
	}
}

// Create builds a detector of the given strategy.
func (f *Factory) Create(strategy Strategy, label models.RegionLabel) (RegionDetector, error) {
	switch strategy {
	case StrategyLearned:
		if f.cfg.DetectorURL == "" {
			return nil, fmt.Errorf("learned detector requires DETECTOR_URL")
		}
		cfg := DefaultRemoteConfig(f.cfg.DetectorURL)
		cfg.Timeout = f.cfg.DetectorTimeout
		cfg.ConfidenceThreshold = f.cfg.ConfidenceThreshold
		cfg.Label = label
		return NewRemoteDetector(cfg), nil
	case StrategyContour:
		cfg := f.cfg.Contour
		cfg.Label = label
		return NewContourDetector(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported detector strategy: %s", strategy)
	}
}
