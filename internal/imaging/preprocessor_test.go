package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestPreprocessPreservesDimensions(t *testing.T) {
	p := NewPreprocessor()

	sizes := []struct{ w, h int }{
		{64, 64},
		{100, 50},
		{33, 97},
	}
	for _, s := range sizes {
		out := p.Preprocess(createTestImage(s.w, s.h, color.RGBA{100, 120, 140, 255}))
		if out.Bounds().Dx() != s.w || out.Bounds().Dy() != s.h {
			t.Errorf("preprocess %dx%d: got %v", s.w, s.h, out.Bounds())
		}
	}
}

func TestPreprocessFlattensAlpha(t *testing.T) {
	p := NewPreprocessor()

	// Half-transparent red over implicit white background.
	src := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			src.Set(x, y, color.NRGBA{255, 0, 0, 128})
		}
	}

	out := p.Preprocess(src)
	for y := 0; y < 32; y += 8 {
		for x := 0; x < 32; x += 8 {
			_, _, _, a := out.At(x, y).RGBA()
			if a != 0xFFFF {
				t.Fatalf("pixel (%d,%d) not opaque after flattening: alpha=%d", x, y, a)
			}
		}
	}

	// Blending onto white must lift the green and blue channels above zero.
	r, g, b, _ := out.At(16, 16).RGBA()
	if g == 0 || b == 0 {
		t.Errorf("expected white blended into (r=%d g=%d b=%d)", r>>8, g>>8, b>>8)
	}
}

func TestPreprocessIsDeterministic(t *testing.T) {
	p := NewPreprocessor()
	src := createCheckerboard(64, 64, 4)

	a := p.Preprocess(src)
	b := p.Preprocess(src)

	if len(a.Pix) != len(b.Pix) {
		t.Fatalf("pixel buffer lengths differ: %d vs %d", len(a.Pix), len(b.Pix))
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("outputs differ at byte %d", i)
		}
	}
}

func TestPreprocessEqualizesContrast(t *testing.T) {
	p := NewPreprocessor()

	// A low-contrast gradient should gain dynamic range.
	src := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(100 + x/4)
			src.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}

	out := p.Preprocess(src)
	minV, maxV := 255, 0
	for y := 0; y < 64; y += 4 {
		for x := 0; x < 64; x += 4 {
			r, _, _, _ := out.At(x, y).RGBA()
			v := int(r >> 8)
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}

	if maxV-minV <= 16 {
		t.Errorf("expected equalization to widen the 16-level input range, got [%d,%d]", minV, maxV)
	}
}
