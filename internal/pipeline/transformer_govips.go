//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/webopt/internal/domain"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, params domain.TransformParams) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	if err := params.Validate(); err != nil {
		return Output{}, err
	}

	format, err := govipsFormat(vips.DetermineImageType(input))
	if err != nil {
		return Output{}, err
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	defer img.Close()

	origW, origH := img.Width(), img.Height()
	if origW <= 0 || origH <= 0 {
		return Output{}, fmt.Errorf("%w: source image has invalid dimensions %dx%d", domain.ErrDecode, origW, origH)
	}

	if err := flattenGovips(img); err != nil {
		return Output{}, err
	}

	w, h := TargetSize(origW, origH, params.MaxResolution)
	if w != origW || h != origH {
		hscale := float64(w) / float64(origW)
		vscale := float64(h) / float64(origH)
		if err := img.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
			return Output{}, fmt.Errorf("%w: resize: %v", domain.ErrEncode, err)
		}
	}

	data, err := exportGovipsImage(img, format, params.Quality)
	if err != nil {
		return Output{}, err
	}

	return Output{
		Data:       data,
		Format:     format,
		OrigWidth:  origW,
		OrigHeight: origH,
		Width:      img.Width(),
		Height:     img.Height(),
	}, nil
}

func govipsFormat(t vips.ImageType) (string, error) {
	switch t {
	case vips.ImageTypeJPEG:
		return FormatJPEG, nil
	case vips.ImageTypePNG:
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: unsupported container", domain.ErrDecode)
	}
}

func flattenGovips(img *vips.ImageRef) error {
	if err := img.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return fmt.Errorf("%w: convert to srgb: %v", domain.ErrDecode, err)
	}
	if !img.HasAlpha() {
		return nil
	}

	bg := &vips.Color{R: Background.R, G: Background.G, B: Background.B}
	if err := img.Flatten(bg); err != nil {
		return fmt.Errorf("%w: flatten alpha: %v", domain.ErrDecode, err)
	}
	return nil
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	switch format {
	case FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", domain.ErrEncode, err)
		}
		return data, nil
	case FormatPNG:
		params := vips.NewPngExportParams()
		params.Compression = 9
		params.StripMetadata = true
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("%w: png: %v", domain.ErrEncode, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported output format %q", domain.ErrEncode, format)
	}
}
