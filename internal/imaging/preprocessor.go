package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// PreprocessConfig holds the fixed enhancement parameters. The defaults are
// calibrated for handheld phone photos under uneven indoor lighting.
type PreprocessConfig struct {
	TileGridSize    int     // CLAHE tile grid (NxN)
	ClipLimit       float64 // CLAHE histogram clip factor
	BilateralRadius int     // bilateral filter window radius
	SigmaSpace      float64 // bilateral spatial falloff
	SigmaColor      float64 // bilateral range falloff (intensity units)
	ContrastGain    float64 // final affine gain
	BrightnessBias  float64 // final affine offset
}

// DefaultPreprocessConfig returns the standard enhancement parameters.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		TileGridSize:    8,
		ClipLimit:       2.0,
		BilateralRadius: 2,
		SigmaSpace:      2.0,
		SigmaColor:      25.0,
		ContrastGain:    1.15,
		BrightnessBias:  10.0,
	}
}

// Preprocessor normalizes uploads into enhanced 3-channel color images.
// Every stage returns a new image; inputs are never mutated.
type Preprocessor struct {
	cfg PreprocessConfig
}

// NewPreprocessor creates a preprocessor with default parameters.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{cfg: DefaultPreprocessConfig()}
}

// NewPreprocessorWithConfig creates a preprocessor with custom parameters.
func NewPreprocessorWithConfig(cfg PreprocessConfig) *Preprocessor {
	return &Preprocessor{cfg: cfg}
}

// Preprocess runs the full enhancement chain: alpha compositing onto white,
// adaptive luminance equalization, edge-preserving smoothing, and a final
// global contrast lift. Output dimensions equal input dimensions.
func (p *Preprocessor) Preprocess(img image.Image) *image.RGBA {
	rgba := flattenToWhite(img)
	rgba = p.equalizeLuminance(rgba)
	rgba = p.bilateralFilter(rgba)
	rgba = p.adjustContrast(rgba)
	return rgba
}

// flattenToWhite composites any alpha channel onto an opaque white
// background. White is chosen over black so translucent edges of phone
// screenshots do not read as dark lesions downstream.
func flattenToWhite(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}

// equalizeLuminance applies contrast-limited adaptive histogram equalization
// to the luminance channel only, leaving chroma untouched.
func (p *Preprocessor) equalizeLuminance(src *image.RGBA) *image.RGBA {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return src
	}

	grid := p.cfg.TileGridSize
	if grid < 1 {
		grid = 1
	}
	if grid > width {
		grid = width
	}
	if grid > height {
		grid = height
	}
	tileW := (width + grid - 1) / grid
	tileH := (height + grid - 1) / grid

	// Luminance plane.
	luma := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := src.PixOffset(x, y)
			yy, _, _ := color.RGBToYCbCr(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			luma[y*width+x] = yy
		}
	}

	// Per-tile clipped-histogram lookup tables.
	luts := make([][256]uint8, grid*grid)
	for ty := 0; ty < grid; ty++ {
		for tx := 0; tx < grid; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, width), min(y0+tileH, height)
			luts[ty*grid+tx] = buildClippedLUT(luma, width, x0, y0, x1, y1, p.cfg.ClipLimit)
		}
	}

	// Bilinear interpolation between the four surrounding tile mappings.
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := int(math.Floor(fy))
		wy := fy - float64(ty0)
		ty1 := clampInt(ty0+1, 0, grid-1)
		ty0 = clampInt(ty0, 0, grid-1)

		for x := 0; x < width; x++ {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := int(math.Floor(fx))
			wx := fx - float64(tx0)
			tx1 := clampInt(tx0+1, 0, grid-1)
			tx0 = clampInt(tx0, 0, grid-1)

			v := luma[y*width+x]
			top := (1-wx)*float64(luts[ty0*grid+tx0][v]) + wx*float64(luts[ty0*grid+tx1][v])
			bot := (1-wx)*float64(luts[ty1*grid+tx0][v]) + wx*float64(luts[ty1*grid+tx1][v])
			newY := uint8(clampFloat((1-wy)*top+wy*bot, 0, 255))

			i := src.PixOffset(x, y)
			_, cb, cr := color.RGBToYCbCr(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			r, g, b := color.YCbCrToRGB(newY, cb, cr)
			j := dst.PixOffset(x, y)
			dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2], dst.Pix[j+3] = r, g, b, 255
		}
	}
	return dst
}

// buildClippedLUT computes a contrast-limited equalization table for one tile.
func buildClippedLUT(luma []uint8, stride, x0, y0, x1, y1 int, clipFactor float64) [256]uint8 {
	var hist [256]int
	total := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[luma[y*stride+x]]++
			total++
		}
	}

	var lut [256]uint8
	if total == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	// Clip histogram peaks and spread the excess uniformly.
	clip := int(clipFactor * float64(total) / 256.0)
	if clip < 1 {
		clip = 1
	}
	excess := 0
	for i := range hist {
		if hist[i] > clip {
			excess += hist[i] - clip
			hist[i] = clip
		}
	}
	share := excess / 256
	rem := excess % 256
	for i := range hist {
		hist[i] += share
		if i < rem {
			hist[i]++
		}
	}

	cum := 0
	for i := range hist {
		cum += hist[i]
		lut[i] = uint8(clampFloat(float64(cum)*255.0/float64(total), 0, 255))
	}
	return lut
}

// bilateralFilter smooths sensor noise while keeping lesion and pattern
// edges sharp. The range weight is computed on luminance so color edges
// survive as well as brightness edges.
func (p *Preprocessor) bilateralFilter(src *image.RGBA) *image.RGBA {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	radius := p.cfg.BilateralRadius
	if radius < 1 || width == 0 || height == 0 {
		return src
	}

	// Spatial kernel is fixed per offset; precompute it.
	size := 2*radius + 1
	spatial := make([]float64, size*size)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			spatial[(dy+radius)*size+(dx+radius)] = math.Exp(-d2 / (2 * p.cfg.SigmaSpace * p.cfg.SigmaSpace))
		}
	}

	luma := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := src.PixOffset(x, y)
			yy, _, _ := color.RGBToYCbCr(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			luma[y*width+x] = float64(yy)
		}
	}

	twoSigmaColor2 := 2 * p.cfg.SigmaColor * p.cfg.SigmaColor
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			center := luma[y*width+x]
			var sumR, sumG, sumB, sumW float64
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width {
						continue
					}
					diff := luma[ny*width+nx] - center
					w := spatial[(dy+radius)*size+(dx+radius)] * math.Exp(-diff*diff/twoSigmaColor2)
					i := src.PixOffset(nx, ny)
					sumR += w * float64(src.Pix[i])
					sumG += w * float64(src.Pix[i+1])
					sumB += w * float64(src.Pix[i+2])
					sumW += w
				}
			}
			j := dst.PixOffset(x, y)
			dst.Pix[j] = uint8(clampFloat(sumR/sumW, 0, 255))
			dst.Pix[j+1] = uint8(clampFloat(sumG/sumW, 0, 255))
			dst.Pix[j+2] = uint8(clampFloat(sumB/sumW, 0, 255))
			dst.Pix[j+3] = 255
		}
	}
	return dst
}

// adjustContrast applies the final global affine lift: v' = v*gain + bias.
func (p *Preprocessor) adjustContrast(src *image.RGBA) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for i := 0; i+3 < len(src.Pix); i += 4 {
		dst.Pix[i] = uint8(clampFloat(float64(src.Pix[i])*p.cfg.ContrastGain+p.cfg.BrightnessBias, 0, 255))
		dst.Pix[i+1] = uint8(clampFloat(float64(src.Pix[i+1])*p.cfg.ContrastGain+p.cfg.BrightnessBias, 0, 255))
		dst.Pix[i+2] = uint8(clampFloat(float64(src.Pix[i+2])*p.cfg.ContrastGain+p.cfg.BrightnessBias, 0, 255))
		dst.Pix[i+3] = 255
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
