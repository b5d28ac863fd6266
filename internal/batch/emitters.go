package batch

import (
	"fmt"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/dunamismax/webopt/internal/pipeline"
	"github.com/dunamismax/webopt/internal/storage"
)

// EmitterFactory builds the sink a batch writes to.
type EmitterFactory func(target pipeline.Target) (pipeline.Emitter, error)

// LocalEmitters only accepts local directory targets.
func LocalEmitters(target pipeline.Target) (pipeline.Emitter, error) {
	if target.IsObjectStore() {
		return nil, fmt.Errorf("%w: object storage output %s is not configured", domain.ErrInvalidParameter, target)
	}
	return pipeline.LocalFileEmitter{OutputDir: target.Dir}, nil
}

// StorageEmitters writes s3:// targets through a MinIO client built from cfg
// with the target's bucket; local targets fall through to LocalEmitters.
func StorageEmitters(cfg storage.Config) EmitterFactory {
	return func(target pipeline.Target) (pipeline.Emitter, error) {
		if !target.IsObjectStore() {
			return LocalEmitters(target)
		}

		cfg := cfg
		cfg.Bucket = target.Bucket
		client, err := storage.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize storage client: %w", err)
		}
		return pipeline.ObjectStoreEmitter{Storage: client, Prefix: target.Prefix}, nil
	}
}
