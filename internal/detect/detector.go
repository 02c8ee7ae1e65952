package detect

import (
	"context"
	"image"

	"github.com/luna-health/triage-go/pkg/models"
)

// RegionDetector locates sub-regions of interest within an image. Two
// interchangeable strategies implement it: a learned object detector served
// remotely and a classical contour-based detector. Which one runs is a
// per-analysis-type configuration decision.
type RegionDetector interface {
	// DetectRegions returns the kept detections plus the raw count before
	// confidence filtering. Zero detections with a nil error is a valid
	// outcome; the orchestrator decides whether that is fatal.
	DetectRegions(ctx context.Context, img image.Image) ([]models.Detection, int, error)
	Name() string
}

// clampBox clips a box to image bounds. The second return is false when
// nothing with positive area survives clipping.
func clampBox(box models.BoundingBox, bounds image.Rectangle) (models.BoundingBox, bool) {
	w, h := bounds.Dx(), bounds.Dy()
	x0 := clamp(box.X, 0, w)
	y0 := clamp(box.Y, 0, h)
	x1 := clamp(box.X+box.Width, 0, w)
	y1 := clamp(box.Y+box.Height, 0, h)
	if x1 <= x0 || y1 <= y0 {
		return models.BoundingBox{}, false
	}
	return models.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, true
}

// CropRegion extracts the sub-image covered by a detection box. The box is
// assumed to already lie within image bounds.
func CropRegion(img image.Image, box models.BoundingBox) image.Image {
	r := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Add(img.Bounds().Min)
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			crop.Set(x, y, img.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return crop
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
