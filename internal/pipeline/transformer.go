package pipeline

import (
	"context"

	"github.com/dunamismax/webopt/internal/domain"
)

// Transformer turns an encoded source image into an encoded, resized image in
// the same container.
type Transformer interface {
	Transform(ctx context.Context, input []byte, params domain.TransformParams) (Output, error)
}

// Output is an encoded image plus the dimensions before and after transform.
type Output struct {
	Data       []byte
	Format     string
	OrigWidth  int
	OrigHeight int
	Width      int
	Height     int
}
