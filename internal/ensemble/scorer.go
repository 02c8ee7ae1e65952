// Package ensemble combines per-model confidences into a single score.
//
// The weighting is heuristic: the vision-language model has no calibrated
// probability output, so its contribution is a fixed base bumped when the
// response is detailed. Treat the resulting score as a relative indicator,
// not a calibrated probability.
package ensemble

import (
	"github.com/luna-health/triage-go/internal/vlm"
	"github.com/luna-health/triage-go/pkg/models"
)

// Config holds the scoring constants. All of them are tunable per
// deployment.
type Config struct {
	// VLMBase is credited when the vision-language call succeeded.
	VLMBase float64
	// VLMDetailed replaces VLMBase when the response exceeds DetailLength.
	VLMDetailed float64
	// DetailLength is the response length, in characters, above which a
	// response counts as detailed.
	DetailLength int
	// Floor is returned when every model contribution failed.
	Floor float64
}

// DefaultConfig returns the stock scoring constants.
func DefaultConfig() Config {
	return Config{
		VLMBase:      0.8,
		VLMDetailed:  0.9,
		DetailLength: 100,
		Floor:        0.3,
	}
}

// Scorer folds classifier and vision-language outcomes into one confidence.
type Scorer struct {
	cfg Config
}

// NewScorer builds a Scorer from cfg, substituting defaults for zero values.
func NewScorer(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.VLMBase == 0 {
		cfg.VLMBase = def.VLMBase
	}
	if cfg.VLMDetailed == 0 {
		cfg.VLMDetailed = def.VLMDetailed
	}
	if cfg.DetailLength == 0 {
		cfg.DetailLength = def.DetailLength
	}
	if cfg.Floor == 0 {
		cfg.Floor = def.Floor
	}
	return &Scorer{cfg: cfg}
}

// Score averages the available model contributions. The classifier
// contributes its top-1 probability; the vision-language model contributes a
// fixed base, bumped for detailed responses. When nothing succeeded the
// configured floor is returned so downstream consumers still get a value in
// a known range.
func (s *Scorer) Score(classification *models.ClassificationResult, vlmOutcome vlm.Outcome) float64 {
	var contributions []float64
	if classification != nil && len(classification.Predictions) > 0 {
		contributions = append(contributions, classification.Predictions[0].Confidence)
	}
	return s.ScoreValues(contributions, vlmOutcome)
}

// ScoreValues is the general form of Score for pipelines whose model
// contribution is not a classification, such as per-region detection
// confidences.
func (s *Scorer) ScoreValues(modelContributions []float64, vlmOutcome vlm.Outcome) float64 {
	var sum float64
	var n int

	for _, c := range modelContributions {
		sum += c
		n++
	}
	if vlmOutcome.Success {
		contribution := s.cfg.VLMBase
		if len(vlmOutcome.RawText) > s.cfg.DetailLength {
			contribution = s.cfg.VLMDetailed
		}
		sum += contribution
		n++
	}

	if n == 0 {
		return s.cfg.Floor
	}
	return sum / float64(n)
}
