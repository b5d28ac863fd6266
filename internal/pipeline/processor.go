package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/webopt/internal/domain"
)

// Request identifies one source file.
type Request struct {
	Name       string
	SourcePath string
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Emitter writes transformed images. Prepare runs once before the first Emit
// and must create the output root.
type Emitter interface {
	Prepare(ctx context.Context) error
	Emit(ctx context.Context, req Request, out Output) (string, error)
}

type Processor struct {
	fetcher     Fetcher
	transformer Transformer
	emitter     Emitter
	params      domain.TransformParams
	now         func() time.Time
}

func NewProcessor(emitter Emitter, params domain.TransformParams) (*Processor, error) {
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}

	return &Processor{
		fetcher:     LocalFileFetcher{},
		transformer: transformer,
		emitter:     emitter,
		params:      params,
		now:         time.Now,
	}, nil
}

func NewLocalProcessor(outputDir string, params domain.TransformParams) (*Processor, error) {
	return NewProcessor(LocalFileEmitter{OutputDir: outputDir}, params)
}

func (p *Processor) Prepare(ctx context.Context) error {
	return p.emitter.Prepare(ctx)
}

// Process runs fetch, transform and emit for one file. The returned result is
// always populated; err is the same failure the result is tagged with.
func (p *Processor) Process(ctx context.Context, req Request) (domain.FileResult, error) {
	startedAt := p.now()
	result, err := p.process(ctx, req)
	if err != nil {
		result = domain.Failed(req.Name, req.SourcePath, err)
	}
	result.Duration = p.now().Sub(startedAt)
	result.ProcessedAt = startedAt.UTC()
	return result, err
}

func (p *Processor) process(ctx context.Context, req Request) (domain.FileResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return domain.FileResult{}, fmt.Errorf("%w: file name is required", domain.ErrIO)
	}

	source, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return domain.FileResult{}, fmt.Errorf("fetch stage: %w", err)
	}

	out, err := p.transformer.Transform(ctx, source, p.params)
	if err != nil {
		return domain.FileResult{}, fmt.Errorf("transform stage: %w", err)
	}

	written, err := p.emitter.Emit(ctx, req, out)
	if err != nil {
		return domain.FileResult{}, fmt.Errorf("emit stage: %w", err)
	}

	result := domain.Succeeded(req.Name, req.SourcePath)
	result.OutputPath = written
	result.Format = out.Format
	result.OrigWidth = out.OrigWidth
	result.OrigHeight = out.OrigHeight
	result.Width = out.Width
	result.Height = out.Height
	result.SourceBytes = len(source)
	result.OutputBytes = len(out.Data)
	return result, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read input file %s: %v", domain.ErrIO, req.SourcePath, err)
	}
	return data, nil
}

// LocalFileEmitter writes each output under OutputDir with the source's
// file name.
type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Prepare(_ context.Context) error {
	if strings.TrimSpace(e.OutputDir) == "" {
		return fmt.Errorf("%w: output directory is required", domain.ErrIO)
	}
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", domain.ErrIO, err)
	}
	return nil
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, out Output) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", fmt.Errorf("%w: output directory is required", domain.ErrIO)
	}

	fullPath := filepath.Join(e.OutputDir, filepath.Base(req.Name))
	if err := os.WriteFile(fullPath, out.Data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write output file: %v", domain.ErrIO, err)
	}
	return fullPath, nil
}
