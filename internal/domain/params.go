package domain

import "fmt"

const (
	DefaultMaxResolution = 1080
	DefaultQuality       = 85
)

// TransformParams is fixed for a whole batch run.
type TransformParams struct {
	MaxResolution int `json:"max_resolution"`
	Quality       int `json:"quality"`
}

func DefaultTransformParams() TransformParams {
	return TransformParams{
		MaxResolution: DefaultMaxResolution,
		Quality:       DefaultQuality,
	}
}

func (p TransformParams) Validate() error {
	if p.MaxResolution <= 0 {
		return fmt.Errorf("%w: max_resolution must be positive, got %d", ErrInvalidParameter, p.MaxResolution)
	}
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("%w: quality must be within [1,100], got %d", ErrInvalidParameter, p.Quality)
	}
	return nil
}
