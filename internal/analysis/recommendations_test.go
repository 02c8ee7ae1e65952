package analysis

import (
	"strings"
	"testing"

	"github.com/luna-health/triage-go/pkg/models"
)

func TestRecommendationsOversizeImageSuggestsResize(t *testing.T) {
	// A sharp, well-framed photo that only exceeds the maximum dimension
	// must get a resize notice, never a retake notice.
	quality := &models.QualityAssessment{
		BlurScore:           240,
		MeetsMinResolution:  true,
		WithinMaxDimension:  false,
		AspectRatioOk:       true,
		OverallQuality:      0.95,
		SuitableForAnalysis: true,
	}
	recs := buildRecommendations(quality, &models.ImageAnalysis{}, models.AnalysisSkin)

	var resize, retake bool
	for _, r := range recs {
		if strings.Contains(r, "Resize") {
			resize = true
		}
		if strings.Contains(r, "Retake") {
			retake = true
		}
	}
	if !resize {
		t.Errorf("oversize image got no resize recommendation: %v", recs)
	}
	if retake {
		t.Errorf("sharp oversize image must not ask for a retake: %v", recs)
	}
}

func TestRecommendationsOversizeAndBlurryCombine(t *testing.T) {
	quality := &models.QualityAssessment{
		BlurScore:           12,
		MeetsMinResolution:  true,
		WithinMaxDimension:  false,
		AspectRatioOk:       true,
		OverallQuality:      0.4,
		SuitableForAnalysis: false,
	}
	recs := buildRecommendations(quality, &models.ImageAnalysis{}, models.AnalysisSkin)

	var resize, focus bool
	for _, r := range recs {
		if strings.Contains(r, "Resize") {
			resize = true
		}
		if strings.Contains(r, "steadier focus") {
			focus = true
		}
	}
	if !resize || !focus {
		t.Errorf("oversize blurry image should get both notices, got %v", recs)
	}
}
