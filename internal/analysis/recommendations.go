package analysis

import (
	"fmt"

	"github.com/luna-health/triage-go/pkg/models"
)

// disclaimers accompany every result regardless of outcome.
var disclaimers = []string{
	"This is not a medical diagnosis",
	"Please consult a healthcare provider for medical advice",
	"This analysis is for informational purposes only",
}

// Disclaimers returns the fixed set attached to every analysis.
func Disclaimers() []string {
	out := make([]string, len(disclaimers))
	copy(out, disclaimers)
	return out
}

// labelAdvice maps top classification labels to type-agnostic guidance.
var labelAdvice = map[string]string{
	"acne":            "Keep the area clean and avoid picking at blemishes",
	"eczema":          "Moisturize regularly and avoid known irritants",
	"rash":            "Avoid scratching and note any spreading or new symptoms",
	"yeast_infection": "Over-the-counter antifungal treatments are commonly used; see a provider if symptoms persist",
	"bacterial":       "Bacterial imbalances usually need professional evaluation and treatment",
	"abnormal":        "Consider scheduling a professional evaluation of this finding",
}

// buildRecommendations assembles rule-based guidance from image quality
// flags and the analysis outcome.
func buildRecommendations(quality *models.QualityAssessment, analysis *models.ImageAnalysis, t models.AnalysisType) []string {
	var recs []string

	if quality != nil && !quality.WithinMaxDimension {
		recs = append(recs, "Resize the image to a smaller resolution; very large photos are downscaled and add no analysis detail")
	}

	if quality != nil && !quality.SuitableForAnalysis {
		if !quality.MeetsMinResolution {
			recs = append(recs, "Retake the photo at a higher resolution for a more reliable analysis")
		} else if quality.BlurScore < 50 {
			recs = append(recs, "Retake the photo with steadier focus and better lighting")
		} else {
			recs = append(recs, "Retake the photo under better conditions for a more reliable analysis")
		}
	}

	if analysis != nil {
		if analysis.Classification != nil && analysis.Classification.Top.Label != "" {
			if advice, ok := labelAdvice[analysis.Classification.Top.Label]; ok {
				recs = append(recs, advice)
			}
		}
		if analysis.AnemiaRisk != "" {
			switch analysis.AnemiaRisk {
			case "high":
				recs = append(recs, "Consider a blood test to confirm hemoglobin levels", "Increase intake of iron-rich foods such as leafy greens and legumes")
			case "moderate":
				recs = append(recs, "Monitor for fatigue or dizziness and consider iron-rich foods")
			}
		}
		if t == models.AnalysisDischarge && analysis.Color != nil {
			switch analysis.Color.DominantColor {
			case "yellow", "green":
				recs = append(recs, "Unusual discharge color can indicate infection; consider professional evaluation")
			case "gray/brown":
				recs = append(recs, "Track whether this color persists across your cycle and mention it at your next check-up")
			}
		}
	}

	if len(recs) == 0 {
		recs = append(recs, fmt.Sprintf("No immediate concerns detected in this %s analysis; continue routine monitoring", t))
	}
	return recs
}
