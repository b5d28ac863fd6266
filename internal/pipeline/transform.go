package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Background is composited under transparent and palette pixels.
var Background = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Transform flattens src onto Background and, when its longer side exceeds
// maxResolution, downsizes it with Lanczos3 so the longer side equals
// maxResolution. It returns the image together with the quality to encode at.
func Transform(src image.Image, maxResolution, quality int) (image.Image, int, error) {
	params := domain.TransformParams{MaxResolution: maxResolution, Quality: quality}
	if err := params.Validate(); err != nil {
		return nil, 0, err
	}

	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, 0, fmt.Errorf("%w: source image has invalid dimensions %dx%d", domain.ErrDecode, b.Dx(), b.Dy())
	}

	flat := flatten(src)
	w, h := TargetSize(b.Dx(), b.Dy(), maxResolution)
	if w == b.Dx() && h == b.Dy() {
		return flat, quality, nil
	}

	return resize.Resize(uint(w), uint(h), flat, resize.Lanczos3), quality, nil
}

// TargetSize returns the output dimensions for a w x h image bounded by
// maxResolution. The longer side lands exactly on maxResolution and the
// shorter side is truncated, never below one pixel.
func TargetSize(w, h, maxResolution int) (int, int) {
	longer := max(w, h)
	if longer <= maxResolution {
		return w, h
	}

	if w >= h {
		return maxResolution, max(1, h*maxResolution/w)
	}
	return max(1, w*maxResolution/h), maxResolution
}

// flatten always returns a fresh opaque RGBA with a zero origin.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
