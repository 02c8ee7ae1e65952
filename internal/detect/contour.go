package detect

import (
	"context"
	"image"
	"image/draw"
	"math"

	"github.com/luna-health/triage-go/pkg/models"
)

// ContourConfig holds the classical detector parameters.
type ContourConfig struct {
	Threshold     uint8   // binarization cutoff on the blurred grayscale
	MinArea       int     // component pixel-count bounds
	MaxArea       int
	ExpandRatio   float64 // box padding so patterns are not clipped
	MergeDistance float64 // center distance below which boxes merge
	Label         models.RegionLabel
}

// DefaultContourConfig returns parameters tuned for bright droplet patterns
// on a dark background.
func DefaultContourConfig() ContourConfig {
	return ContourConfig{
		Threshold:     30,
		MinArea:       50,
		MaxArea:       5000,
		ExpandRatio:   0.4,
		MergeDistance: 30,
		Label:         models.RegionPattern,
	}
}

// ContourDetector is the classical computer-vision strategy: blur, threshold,
// morphological cleanup, connected components, then box padding and merging.
// It needs no model artifacts and never fails.
type ContourDetector struct {
	cfg ContourConfig
}

// NewContourDetector creates the classical detector.
func NewContourDetector(cfg ContourConfig) *ContourDetector {
	return &ContourDetector{cfg: cfg}
}

func (d *ContourDetector) Name() string { return "contour" }

// DetectRegions finds bright connected blobs and returns their padded,
// merged bounding boxes. Proposals carry no learned score, so confidence is
// reported as 1; the downstream classifier supplies the real confidence.
func (d *ContourDetector) DetectRegions(ctx context.Context, img image.Image) ([]models.Detection, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, 0, nil
	}

	gray := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)

	blurred := gaussianBlur5(gray)
	binary := thresholdBinary(blurred, d.cfg.Threshold)
	binary = morphClose(binary, ellipseKernel(7))
	binary = morphOpen(binary, ellipseKernel(3))

	boxes := connectedComponentBoxes(binary, d.cfg.MinArea, d.cfg.MaxArea)
	raw := len(boxes)

	for i := range boxes {
		boxes[i] = expandBox(boxes[i], d.cfg.ExpandRatio, width, height)
	}
	boxes = mergeNearbyBoxes(boxes, d.cfg.MergeDistance)

	detections := make([]models.Detection, 0, len(boxes))
	for _, b := range boxes {
		clamped, ok := clampBox(b, bounds)
		if !ok {
			continue
		}
		detections = append(detections, models.Detection{
			Box:        clamped,
			Confidence: 1,
			Label:      d.cfg.Label,
		})
	}
	return detections, raw, nil
}

// gaussianBlur5 applies a 5x5 Gaussian by two passes of the separable
// kernel [1 4 6 4 1]/16.
func gaussianBlur5(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	kernel := [5]int{1, 4, 6, 4, 1}

	tmp := image.NewGray(src.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				xx := clamp(x+k, 0, w-1)
				sum += kernel[k+2] * int(src.Pix[y*src.Stride+xx])
			}
			tmp.Pix[y*tmp.Stride+x] = uint8(sum / 16)
		}
	}

	dst := image.NewGray(src.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				yy := clamp(y+k, 0, h-1)
				sum += kernel[k+2] * int(tmp.Pix[yy*tmp.Stride+x])
			}
			dst.Pix[y*dst.Stride+x] = uint8(sum / 16)
		}
	}
	return dst
}

func thresholdBinary(src *image.Gray, cutoff uint8) *image.Gray {
	dst := image.NewGray(src.Bounds())
	for i, v := range src.Pix {
		if v > cutoff {
			dst.Pix[i] = 255
		}
	}
	return dst
}

// ellipseKernel builds a filled-circle structuring element of the given
// odd size.
func ellipseKernel(size int) [][]bool {
	k := make([][]bool, size)
	r := float64(size) / 2.0
	c := float64(size-1) / 2.0
	for y := 0; y < size; y++ {
		k[y] = make([]bool, size)
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			k[y][x] = dx*dx+dy*dy <= r*r
		}
	}
	return k
}

func dilate(src *image.Gray, kernel [][]bool) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	kr := len(kernel) / 2
	dst := image.NewGray(src.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if src.Pix[y*src.Stride+x] == 0 {
				continue
			}
			for ky := range kernel {
				for kx := range kernel[ky] {
					if !kernel[ky][kx] {
						continue
					}
					ny, nx := y+ky-kr, x+kx-kr
					if ny >= 0 && ny < h && nx >= 0 && nx < w {
						dst.Pix[ny*dst.Stride+nx] = 255
					}
				}
			}
		}
	}
	return dst
}

func erode(src *image.Gray, kernel [][]bool) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	kr := len(kernel) / 2
	dst := image.NewGray(src.Bounds())
	for y := 0; y < h; y++ {
	pixel:
		for x := 0; x < w; x++ {
			for ky := range kernel {
				for kx := range kernel[ky] {
					if !kernel[ky][kx] {
						continue
					}
					ny, nx := y+ky-kr, x+kx-kr
					if ny < 0 || ny >= h || nx < 0 || nx >= w || src.Pix[ny*src.Stride+nx] == 0 {
						continue pixel
					}
				}
			}
			dst.Pix[y*dst.Stride+x] = 255
		}
	}
	return dst
}

func morphClose(src *image.Gray, kernel [][]bool) *image.Gray {
	return erode(dilate(src, kernel), kernel)
}

func morphOpen(src *image.Gray, kernel [][]bool) *image.Gray {
	return dilate(erode(src, kernel), kernel)
}

// connectedComponentBoxes labels 8-connected foreground components and
// returns the bounding boxes of those whose pixel count lies in
// [minArea, maxArea].
func connectedComponentBoxes(binary *image.Gray, minArea, maxArea int) []models.BoundingBox {
	w, h := binary.Bounds().Dx(), binary.Bounds().Dy()
	visited := make([]bool, w*h)
	var boxes []models.BoundingBox

	var stack []int
	for start := 0; start < w*h; start++ {
		if visited[start] || binary.Pix[(start/w)*binary.Stride+start%w] == 0 {
			continue
		}
		minX, minY, maxX, maxY := w, h, -1, -1
		area := 0
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w
			area++
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if !visited[nidx] && binary.Pix[ny*binary.Stride+nx] != 0 {
						visited[nidx] = true
						stack = append(stack, nidx)
					}
				}
			}
		}
		if area >= minArea && area <= maxArea {
			boxes = append(boxes, models.BoundingBox{
				X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1,
			})
		}
	}
	return boxes
}

func expandBox(b models.BoundingBox, ratio float64, width, height int) models.BoundingBox {
	padW := int(float64(b.Width) * ratio)
	padH := int(float64(b.Height) * ratio)
	x := clamp(b.X-padW, 0, width)
	y := clamp(b.Y-padH, 0, height)
	w := min(width-x, b.Width+2*padW)
	h := min(height-y, b.Height+2*padH)
	return models.BoundingBox{X: x, Y: y, Width: w, Height: h}
}

// mergeNearbyBoxes groups boxes whose centers lie within the distance
// threshold and replaces each group with its tight enclosing rectangle.
func mergeNearbyBoxes(boxes []models.BoundingBox, distance float64) []models.BoundingBox {
	if len(boxes) <= 1 {
		return boxes
	}

	merged := make([]models.BoundingBox, 0, len(boxes))
	used := make([]bool, len(boxes))

	for i, b1 := range boxes {
		if used[i] {
			continue
		}
		cx1 := float64(b1.X) + float64(b1.Width)/2
		cy1 := float64(b1.Y) + float64(b1.Height)/2
		group := []models.BoundingBox{b1}
		used[i] = true

		for j, b2 := range boxes {
			if used[j] {
				continue
			}
			cx2 := float64(b2.X) + float64(b2.Width)/2
			cy2 := float64(b2.Y) + float64(b2.Height)/2
			if math.Hypot(cx1-cx2, cy1-cy2) < distance {
				group = append(group, b2)
				used[j] = true
			}
		}

		if len(group) == 1 {
			merged = append(merged, b1)
			continue
		}
		minX, minY := group[0].X, group[0].Y
		maxX, maxY := group[0].X+group[0].Width, group[0].Y+group[0].Height
		for _, g := range group[1:] {
			if g.X < minX {
				minX = g.X
			}
			if g.Y < minY {
				minY = g.Y
			}
			if g.X+g.Width > maxX {
				maxX = g.X + g.Width
			}
			if g.Y+g.Height > maxY {
				maxY = g.Y + g.Height
			}
		}
		merged = append(merged, models.BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY})
	}
	return merged
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
