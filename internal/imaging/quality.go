package imaging

import (
	"image"
	"image/draw"

	"gonum.org/v1/gonum/stat"

	"github.com/luna-health/triage-go/pkg/models"
)

// QualityConfig holds the advisory quality-gate thresholds.
type QualityConfig struct {
	BlurThreshold     float64 // Laplacian variance above this counts as sharp
	QualityThreshold  float64 // overall score needed for "suitable"
	MinImageSize      int     // minimum width and height
	MaxImageDimension int     // soft maximum for either dimension
	MinAspectRatio    float64
	MaxAspectRatio    float64
}

// DefaultQualityConfig returns the standard quality-gate thresholds.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		BlurThreshold:     100.0,
		QualityThreshold:  0.7,
		MinImageSize:      100,
		MaxImageDimension: 2048,
		MinAspectRatio:    0.75,
		MaxAspectRatio:    1.33,
	}
}

// QualityAssessor computes the advisory quality verdict for an image. The
// verdict never blocks analysis; it feeds recommendations and the ensemble
// confidence.
type QualityAssessor struct {
	cfg QualityConfig
}

// NewQualityAssessor creates an assessor with default thresholds.
func NewQualityAssessor() *QualityAssessor {
	return &QualityAssessor{cfg: DefaultQualityConfig()}
}

// NewQualityAssessorWithConfig creates an assessor with custom thresholds.
func NewQualityAssessorWithConfig(cfg QualityConfig) *QualityAssessor {
	return &QualityAssessor{cfg: cfg}
}

// Assess derives the quality verdict from one image. The blur score feeds
// the overall quality continuously (normalized by the threshold and clamped
// to 1), not just as a pass/fail flag.
func (qa *QualityAssessor) Assess(img image.Image) models.QualityAssessment {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	blur := qa.LaplacianVariance(img)
	sharpness := clampFloat(blur/qa.cfg.BlurThreshold, 0, 1)

	meetsMin := width >= qa.cfg.MinImageSize && height >= qa.cfg.MinImageSize
	withinMax := width <= qa.cfg.MaxImageDimension && height <= qa.cfg.MaxImageDimension

	aspectOk := false
	if height > 0 {
		ratio := float64(width) / float64(height)
		aspectOk = ratio >= qa.cfg.MinAspectRatio && ratio <= qa.cfg.MaxAspectRatio
	}

	resScore := 0.0
	if meetsMin {
		resScore = 1.0
	}
	aspectScore := 0.0
	if aspectOk {
		aspectScore = 1.0
	}
	overall := (sharpness + resScore + aspectScore) / 3.0

	return models.QualityAssessment{
		BlurScore:           blur,
		MeetsMinResolution:  meetsMin,
		WithinMaxDimension:  withinMax,
		AspectRatioOk:       aspectOk,
		OverallQuality:      overall,
		SuitableForAnalysis: overall >= qa.cfg.QualityThreshold,
	}
}

// LaplacianVariance measures sharpness as the variance of a discrete
// Laplacian over the grayscale image. Higher means sharper.
func (qa *QualityAssessor) LaplacianVariance(img image.Image) float64 {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)

	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	data := make([]float64, 0, (width-2)*(height-2))
	// Kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)
			data = append(data, -4*center+top+bottom+left+right)
		}
	}
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}
