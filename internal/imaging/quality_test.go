package imaging

import (
	"image"
	"image/color"
	"testing"
)

func createTestImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createCheckerboard(width, height, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func TestAssessOverallQualityRange(t *testing.T) {
	qa := NewQualityAssessor()

	images := []image.Image{
		createTestImage(512, 512, color.RGBA{128, 128, 128, 255}),
		createTestImage(40, 40, color.RGBA{200, 10, 10, 255}),
		createCheckerboard(512, 512, 4),
	}

	for i, img := range images {
		q := qa.Assess(img)
		if q.OverallQuality < 0 || q.OverallQuality > 1 {
			t.Errorf("image %d: overall quality %f out of [0,1]", i, q.OverallQuality)
		}
		if q.BlurScore < 0 {
			t.Errorf("image %d: negative blur score %f", i, q.BlurScore)
		}
	}
}

func TestAssessSuitabilityMatchesThreshold(t *testing.T) {
	qa := NewQualityAssessor()

	images := []image.Image{
		createTestImage(512, 512, color.RGBA{128, 128, 128, 255}),
		createTestImage(40, 40, color.RGBA{128, 128, 128, 255}),
		createCheckerboard(512, 512, 4),
		createCheckerboard(64, 64, 2),
	}

	for i, img := range images {
		q := qa.Assess(img)
		want := q.OverallQuality >= DefaultQualityConfig().QualityThreshold
		if q.SuitableForAnalysis != want {
			t.Errorf("image %d: suitable=%v but overall=%f threshold=%f",
				i, q.SuitableForAnalysis, q.OverallQuality, DefaultQualityConfig().QualityThreshold)
		}
	}
}

func TestAssessResolutionFlags(t *testing.T) {
	qa := NewQualityAssessor()

	small := qa.Assess(createTestImage(40, 40, color.RGBA{128, 128, 128, 255}))
	if small.MeetsMinResolution {
		t.Error("40x40 image should not meet the minimum resolution")
	}
	if !small.WithinMaxDimension {
		t.Error("40x40 image should be within the maximum dimension")
	}

	ok := qa.Assess(createTestImage(512, 512, color.RGBA{128, 128, 128, 255}))
	if !ok.MeetsMinResolution {
		t.Error("512x512 image should meet the minimum resolution")
	}
	if !ok.AspectRatioOk {
		t.Error("square image should pass the aspect ratio check")
	}

	wide := qa.Assess(createTestImage(800, 100, color.RGBA{128, 128, 128, 255}))
	if wide.AspectRatioOk {
		t.Error("8:1 image should fail the aspect ratio check")
	}
}

func TestLaplacianVarianceOrdersSharpness(t *testing.T) {
	qa := NewQualityAssessor()

	uniform := qa.LaplacianVariance(createTestImage(256, 256, color.RGBA{100, 100, 100, 255}))
	sharp := qa.LaplacianVariance(createCheckerboard(256, 256, 2))

	if uniform != 0 {
		t.Errorf("uniform image should have zero Laplacian variance, got %f", uniform)
	}
	if sharp <= uniform {
		t.Errorf("checkerboard (%f) should score sharper than uniform (%f)", sharp, uniform)
	}
}

func TestLaplacianVarianceTinyImage(t *testing.T) {
	qa := NewQualityAssessor()
	if v := qa.LaplacianVariance(createTestImage(2, 2, color.RGBA{0, 0, 0, 255})); v != 0 {
		t.Errorf("expected 0 for sub-3px image, got %f", v)
	}
}
