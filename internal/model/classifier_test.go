package model

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func testImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// classificationCheckpoint builds a head whose logits equal its bias vector,
// so prediction order is fully controlled by the test.
func classificationCheckpoint(labels []string, bias []float64) *Checkpoint {
	weights := make([][]float64, len(labels))
	for i := range weights {
		weights[i] = make([]float64, FeatureDim)
	}
	return &Checkpoint{
		Task:       TaskClassification,
		FeatureDim: FeatureDim,
		Labels:     labels,
		Weights:    weights,
		Bias:       bias,
	}
}

func TestClassifyOrdersByConfidence(t *testing.T) {
	c := NewClassifier(classificationCheckpoint(
		[]string{"acne", "eczema", "rash", "normal"},
		[]float64{1.0, 4.0, 2.0, 3.0},
	))

	res := c.Classify(testImage(64, 64, color.RGBA{150, 100, 90, 255}))

	if len(res.Predictions) != TopK {
		t.Fatalf("got %d predictions, want %d", len(res.Predictions), TopK)
	}
	wantOrder := []string{"eczema", "normal", "rash"}
	for i, want := range wantOrder {
		if res.Predictions[i].Label != want {
			t.Errorf("prediction %d = %q, want %q", i, res.Predictions[i].Label, want)
		}
	}
	for i := 1; i < len(res.Predictions); i++ {
		if res.Predictions[i].Confidence > res.Predictions[i-1].Confidence {
			t.Errorf("predictions not in non-increasing order at %d", i)
		}
	}
	if res.Top != res.Predictions[0] {
		t.Error("top prediction does not match the first ranked prediction")
	}
}

func TestClassifyProbabilitiesAreDistribution(t *testing.T) {
	c := NewClassifier(classificationCheckpoint(
		[]string{"a", "b", "c"},
		[]float64{0.3, -1.2, 2.5},
	))

	res := c.Classify(testImage(32, 32, color.RGBA{200, 180, 170, 255}))

	sum := 0.0
	for _, p := range res.Predictions {
		if p.Confidence < 0 || p.Confidence > 1 {
			t.Errorf("confidence %f out of [0,1]", p.Confidence)
		}
		sum += p.Confidence
	}
	// All three classes are in the top-K here, so they must sum to one.
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("probabilities sum to %f, want 1.0", sum)
	}
}

func TestClassifyTieBreaksByClassIndex(t *testing.T) {
	c := NewClassifier(classificationCheckpoint(
		[]string{"first", "second", "third"},
		[]float64{0, 0, 0},
	))

	res := c.Classify(testImage(32, 32, color.RGBA{128, 128, 128, 255}))

	wantOrder := []string{"first", "second", "third"}
	for i, want := range wantOrder {
		if res.Predictions[i].Label != want {
			t.Errorf("tied prediction %d = %q, want checkpoint order %q", i, res.Predictions[i].Label, want)
		}
	}
}

func TestClassifyFewerClassesThanTopK(t *testing.T) {
	c := NewClassifier(classificationCheckpoint(
		[]string{"yes", "no"},
		[]float64{1, 0},
	))

	res := c.Classify(testImage(32, 32, color.RGBA{90, 90, 90, 255}))
	if len(res.Predictions) != 2 {
		t.Errorf("got %d predictions for a 2-class head, want 2", len(res.Predictions))
	}
}

func TestRegressorAppliesCalibration(t *testing.T) {
	scale, shift := 2.0, 10.0
	ckpt := &Checkpoint{
		Task:        TaskRegression,
		FeatureDim:  FeatureDim,
		Weights:     [][]float64{make([]float64, FeatureDim)},
		Bias:        []float64{16.0},
		ScaleFactor: &scale,
		ShiftFactor: &shift,
	}

	r := NewRegressor(ckpt)
	// Zero weights make the raw output equal the bias; calibration is then
	// raw*scale + shift.
	got := r.Predict(testImage(32, 32, color.RGBA{100, 100, 100, 255}))
	if math.Abs(got-42.0) > 1e-9 {
		t.Errorf("calibrated prediction = %f, want 42.0", got)
	}
}

func TestRegressorDefaultCalibration(t *testing.T) {
	ckpt := &Checkpoint{
		Task:       TaskRegression,
		FeatureDim: FeatureDim,
		Weights:    [][]float64{make([]float64, FeatureDim)},
		Bias:       []float64{0},
	}

	r := NewRegressor(ckpt)
	scale, shift := r.Calibration()
	if scale != defaultScaleFactor || shift != defaultShiftFactor {
		t.Errorf("calibration = (%f, %f), want defaults (%f, %f)",
			scale, shift, defaultScaleFactor, defaultShiftFactor)
	}
}

func TestExtractFeaturesShapeAndDeterminism(t *testing.T) {
	img := testImage(100, 80, color.RGBA{180, 60, 40, 255})

	a := ExtractFeatures(img)
	if len(a) != FeatureDim {
		t.Fatalf("feature length %d, want %d", len(a), FeatureDim)
	}
	for i, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("feature %d is not finite: %f", i, v)
		}
	}

	b := ExtractFeatures(img)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("extraction not deterministic at feature %d", i)
		}
	}

	// The trailing histogram is a distribution.
	sum := 0.0
	for _, v := range a[len(a)-histBins:] {
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("histogram sums to %f, want 1.0", sum)
	}
}
