package imaging

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/luna-health/triage-go/pkg/models"
)

// dischargeIndicators maps a dominant color category to advisory notes.
var dischargeIndicators = map[string][]string{
	"white/clear": {"Normal discharge", "Healthy pH balance likely"},
	"yellow":      {"Possible infection", "May need medical attention"},
	"green":       {"Bacterial infection possible", "Consult healthcare provider"},
	"gray/brown":  {"Old blood possible", "Monitor for other symptoms"},
	"red/pink":    {"Fresh blood present", "Track if during expected period"},
}

// AnalyzeColor computes the dominant color category of an image and the
// associated discharge health indicators. The image is downsampled first so
// the averaging cost stays flat regardless of upload size.
func AnalyzeColor(img image.Image) models.ColorAnalysis {
	small := image.NewRGBA(image.Rect(0, 0, 150, 150))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sumR, sumG, sumB float64
	n := 0
	for i := 0; i+3 < len(small.Pix); i += 4 {
		sumR += float64(small.Pix[i])
		sumG += float64(small.Pix[i+1])
		sumB += float64(small.Pix[i+2])
		n++
	}
	if n == 0 {
		return models.ColorAnalysis{DominantColor: "mixed"}
	}

	avg := [3]float64{sumR / float64(n), sumG / float64(n), sumB / float64(n)}
	category := categorizeColor(avg[0], avg[1], avg[2])

	indicators, ok := dischargeIndicators[category]
	if !ok {
		indicators = []string{"Unable to determine - consult healthcare provider"}
	}

	return models.ColorAnalysis{
		DominantColor: category,
		RGB:           avg,
		Brightness:    (avg[0] + avg[1] + avg[2]) / 3,
		Indicators:    indicators,
	}
}

func categorizeColor(r, g, b float64) string {
	switch {
	case r > 200 && g > 200 && b > 200:
		return "white/clear"
	case r > 150 && g > 150 && b < 100:
		return "yellow"
	case r > 150 && g < 100 && b < 100:
		return "red/pink"
	case r < 100 && g > 150 && b < 100:
		return "green"
	case r < 150 && g < 150 && b < 150:
		return "gray/brown"
	default:
		return "mixed"
	}
}
