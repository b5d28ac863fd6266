package store

import (
	"context"

	"github.com/dunamismax/webopt/internal/domain"
)

// ResultStore persists per-file outcomes keyed by run id.
type ResultStore interface {
	SaveResult(ctx context.Context, runID string, result domain.FileResult) error
	ListResults(ctx context.Context, runID string) ([]domain.FileResult, error)
}
