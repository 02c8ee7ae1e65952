package model

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/luna-health/triage-go/pkg/models"
)

// TopK is the number of ranked predictions a classification returns.
const TopK = 3

// Classifier is a frozen-backbone image classifier: the deterministic
// feature extractor plus a fine-tuned linear head loaded from a checkpoint.
type Classifier struct {
	weights *mat.Dense
	bias    *mat.VecDense
	labels  []string
}

// NewClassifier builds a classifier from a classification checkpoint.
func NewClassifier(ckpt *Checkpoint) *Classifier {
	rows := len(ckpt.Weights)
	flat := make([]float64, 0, rows*ckpt.FeatureDim)
	for _, row := range ckpt.Weights {
		flat = append(flat, row...)
	}
	return &Classifier{
		weights: mat.NewDense(rows, ckpt.FeatureDim, flat),
		bias:    mat.NewVecDense(rows, append([]float64(nil), ckpt.Bias...)),
		labels:  append([]string(nil), ckpt.Labels...),
	}
}

// Labels returns the fixed class-label list in checkpoint order.
func (c *Classifier) Labels() []string {
	return c.labels
}

// Classify runs the image through the backbone and head and returns the
// top-K predictions ordered by strictly non-increasing confidence, ties
// broken by ascending class index.
func (c *Classifier) Classify(img image.Image) models.ClassificationResult {
	logits := c.logits(img)
	probs := softmax(logits)

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	k := TopK
	if k > len(idx) {
		k = len(idx)
	}
	preds := make([]models.Prediction, 0, k)
	for _, i := range idx[:k] {
		preds = append(preds, models.Prediction{
			Label:      c.labels[i],
			Confidence: probs[i],
		})
	}

	return models.ClassificationResult{
		Predictions: preds,
		Top:         preds[0],
	}
}

func (c *Classifier) logits(img image.Image) []float64 {
	features := mat.NewVecDense(FeatureDim, ExtractFeatures(img))
	rows, _ := c.weights.Dims()
	out := mat.NewVecDense(rows, nil)
	out.MulVec(c.weights, features)
	out.AddVec(out, c.bias)
	return out.RawVector().Data
}

// softmax converts logits to a probability distribution, shifted by the max
// logit for numerical stability.
func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Regressor is the hemoglobin head: a single-output linear model whose raw
// output undergoes the persisted scale/shift calibration. The calibration
// corrects systematic bias found against ground truth and is never
// recomputed at inference time.
type Regressor struct {
	weights *mat.VecDense
	bias    float64
	scale   float64
	shift   float64
}

// NewRegressor builds a regressor from a regression checkpoint.
func NewRegressor(ckpt *Checkpoint) *Regressor {
	scale, shift := ckpt.Calibration()
	return &Regressor{
		weights: mat.NewVecDense(ckpt.FeatureDim, append([]float64(nil), ckpt.Weights[0]...)),
		bias:    ckpt.Bias[0],
		scale:   scale,
		shift:   shift,
	}
}

// Predict returns the calibrated scalar estimate (g/L) for one region crop.
func (r *Regressor) Predict(img image.Image) float64 {
	features := mat.NewVecDense(FeatureDim, ExtractFeatures(img))
	raw := mat.Dot(r.weights, features) + r.bias
	return raw*r.scale + r.shift
}

// Calibration exposes the affine constants, handy for diagnostics.
func (r *Regressor) Calibration() (scale, shift float64) {
	return r.scale, r.shift
}
