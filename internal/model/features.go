package model

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// The frozen backbone: a deterministic feature extractor over a fixed
// 224x224 input. Images are pooled over a 4x4 grid; each cell contributes
// channel means, luminance spread and mean gradient magnitude, and a global
// 16-bin luminance histogram is appended. Only the head on top of these
// features is trained.
const (
	inputSize    = 224
	gridCells    = 4
	cellFeatures = 5 // meanR, meanG, meanB, stddev(luma), mean gradient
	histBins     = 16

	// FeatureDim is the backbone output dimension every checkpoint head
	// must match.
	FeatureDim = gridCells*gridCells*cellFeatures + histBins
)

// ExtractFeatures resizes the image to the model input shape and computes
// the backbone feature vector. The extraction is pure: the same pixels
// always produce the same features.
func ExtractFeatures(img image.Image) []float64 {
	resized := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	// Luminance plane for spread, gradients and the histogram.
	luma := make([]float64, inputSize*inputSize)
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			i := resized.PixOffset(x, y)
			r := float64(resized.Pix[i])
			g := float64(resized.Pix[i+1])
			b := float64(resized.Pix[i+2])
			luma[y*inputSize+x] = 0.299*r + 0.587*g + 0.114*b
		}
	}

	features := make([]float64, 0, FeatureDim)
	cellSize := inputSize / gridCells

	for cy := 0; cy < gridCells; cy++ {
		for cx := 0; cx < gridCells; cx++ {
			x0, y0 := cx*cellSize, cy*cellSize
			x1, y1 := x0+cellSize, y0+cellSize

			n := float64(cellSize * cellSize)
			var sumR, sumG, sumB, sumGrad float64
			lumas := make([]float64, 0, cellSize*cellSize)

			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					i := resized.PixOffset(x, y)
					sumR += float64(resized.Pix[i])
					sumG += float64(resized.Pix[i+1])
					sumB += float64(resized.Pix[i+2])
					lumas = append(lumas, luma[y*inputSize+x])

					if x+1 < inputSize && y+1 < inputSize {
						gx := luma[y*inputSize+x+1] - luma[y*inputSize+x]
						gy := luma[(y+1)*inputSize+x] - luma[y*inputSize+x]
						sumGrad += math.Hypot(gx, gy)
					}
				}
			}

			features = append(features,
				sumR/n/255.0,
				sumG/n/255.0,
				sumB/n/255.0,
				stat.StdDev(lumas, nil)/255.0,
				sumGrad/n/255.0,
			)
		}
	}

	// Global luminance histogram, normalized to sum to 1.
	hist := make([]float64, histBins)
	for _, v := range luma {
		bin := int(v) * histBins / 256
		if bin >= histBins {
			bin = histBins - 1
		}
		hist[bin]++
	}
	total := float64(len(luma))
	for i := range hist {
		hist[i] /= total
	}
	features = append(features, hist...)

	return features
}
