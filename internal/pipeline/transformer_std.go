package pipeline

import (
	"context"

	"github.com/dunamismax/webopt/internal/domain"
)

type stdlibTransformer struct{}

func (t stdlibTransformer) Transform(ctx context.Context, input []byte, params domain.TransformParams) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	if err := params.Validate(); err != nil {
		return Output{}, err
	}

	src, format, err := Decode(input)
	if err != nil {
		return Output{}, err
	}

	out, quality, err := Transform(src, params.MaxResolution, params.Quality)
	if err != nil {
		return Output{}, err
	}

	data, err := Encode(out, format, quality)
	if err != nil {
		return Output{}, err
	}

	srcBounds := src.Bounds()
	outBounds := out.Bounds()
	return Output{
		Data:       data,
		Format:     format,
		OrigWidth:  srcBounds.Dx(),
		OrigHeight: srcBounds.Dy(),
		Width:      outBounds.Dx(),
		Height:     outBounds.Dy(),
	}, nil
}
