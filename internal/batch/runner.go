// Package batch runs the optimizer over a folder of images.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/dunamismax/webopt/internal/id"
	"github.com/dunamismax/webopt/internal/metrics"
	"github.com/dunamismax/webopt/internal/pipeline"
	"github.com/dunamismax/webopt/internal/store"
	"github.com/dunamismax/webopt/internal/telemetry"
	"github.com/dunamismax/webopt/internal/walker"
	"github.com/dunamismax/webopt/internal/webhook"
)

const defaultDebounce = 500 * time.Millisecond

// Params describes one batch.
type Params struct {
	InputDir  string
	Output    string
	Transform domain.TransformParams
	Workers   int
	// WebhookURL receives batch.completed when set.
	WebhookURL string
	// Since makes Watch also process files already in InputDir that were
	// modified at or after it, such as files added during an initial Run.
	Since time.Time
}

// Reporter receives every per-file result as soon as it is known.
type Reporter interface {
	FileDone(r domain.FileResult)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Options struct {
	Logger   *zap.Logger
	Metrics  *metrics.Recorder
	Ledger   store.ResultStore
	Webhook  webhookSender
	Reporter Reporter
	Emitters EmitterFactory
	// Debounce applies to watch mode only.
	Debounce time.Duration
}

type Runner struct {
	logger   *zap.Logger
	metrics  *metrics.Recorder
	ledger   store.ResultStore
	webhook  webhookSender
	reporter Reporter
	emitters EmitterFactory
	debounce time.Duration
	tracer   trace.Tracer
	now      func() time.Time
}

func NewRunner(opts Options) *Runner {
	r := &Runner{
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		ledger:   opts.Ledger,
		webhook:  opts.Webhook,
		reporter: opts.Reporter,
		emitters: opts.Emitters,
		debounce: opts.Debounce,
		tracer:   telemetry.Tracer("batch"),
		now:      time.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("batch")
	if r.emitters == nil {
		r.emitters = LocalEmitters
	}
	if r.debounce <= 0 {
		r.debounce = defaultDebounce
	}
	return r
}

// Run processes every candidate in p.InputDir. Per-file failures are recorded
// in the summary; the returned error is reserved for failures that stop the
// whole batch: invalid parameters, an unusable output root, an unreadable
// input folder or cancellation of ctx. Files already started when ctx is
// cancelled finish; the partial summary is returned with the error and no
// completion webhook is sent.
func (r *Runner) Run(ctx context.Context, p Params) (domain.Summary, error) {
	processor, err := r.prepare(ctx, p)
	if err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{RunID: id.New(), StartedAt: r.now().UTC()}

	ctx, span := r.tracer.Start(ctx, "batch.run")
	span.SetAttributes(
		attribute.String("batch.run_id", summary.RunID),
		attribute.String("batch.input_dir", p.InputDir),
		attribute.String("batch.output", p.Output),
		attribute.Int("batch.max_resolution", p.Transform.MaxResolution),
		attribute.Int("batch.quality", p.Transform.Quality),
	)
	defer span.End()

	r.logger.Info("batch started",
		zap.String("run_id", summary.RunID),
		zap.String("input_dir", p.InputDir),
		zap.String("output", p.Output),
		zap.Int("max_resolution", p.Transform.MaxResolution),
		zap.Int("quality", p.Transform.Quality),
		zap.Int("workers", max(1, p.Workers)),
	)

	runID := summary.RunID
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(1, p.Workers))

	var walkErr error
	for candidate, err := range walker.Candidates(p.InputDir) {
		if err != nil {
			walkErr = fmt.Errorf("%w: enumerate %s: %v", domain.ErrIO, p.InputDir, err)
			break
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			// g.Go may block for a free slot; a cancel during that wait
			// means this file never started.
			if ctx.Err() != nil {
				return nil
			}
			result := r.processOne(context.WithoutCancel(ctx), processor, runID, candidate)
			mu.Lock()
			summary.Add(result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = r.now().Sub(summary.StartedAt)
	span.SetAttributes(
		attribute.Int("batch.attempted", summary.Attempted),
		attribute.Int("batch.failed", summary.Failed),
	)

	if walkErr != nil {
		span.RecordError(walkErr)
		span.SetStatus(codes.Error, "enumeration failed")
		r.logger.Error("batch aborted", zap.String("run_id", summary.RunID), zap.Error(walkErr))
		return summary, walkErr
	}

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		r.logger.Warn("batch cancelled",
			zap.String("run_id", summary.RunID),
			zap.Int("attempted", summary.Attempted),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		return summary, fmt.Errorf("batch cancelled: %w", err)
	}

	r.logger.Info("batch finished",
		zap.String("run_id", summary.RunID),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	r.notify(ctx, p.WebhookURL, summary)

	if summary.Failed > 0 {
		span.SetStatus(codes.Error, "some files failed")
	} else {
		span.SetStatus(codes.Ok, "optimized")
	}
	return summary, nil
}

// prepare validates p and creates the output root before any file is read.
func (r *Runner) prepare(ctx context.Context, p Params) (*pipeline.Processor, error) {
	if err := p.Transform.Validate(); err != nil {
		return nil, err
	}
	if p.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be positive, got %d", domain.ErrInvalidParameter, p.Workers)
	}
	if strings.TrimSpace(p.InputDir) == "" {
		return nil, fmt.Errorf("%w: input directory is required", domain.ErrInvalidParameter)
	}

	target, err := pipeline.ParseTarget(p.Output)
	if err != nil {
		return nil, err
	}
	emitter, err := r.emitters(target)
	if err != nil {
		return nil, err
	}
	processor, err := pipeline.NewProcessor(emitter, p.Transform)
	if err != nil {
		return nil, err
	}

	if err := processor.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("prepare output %s: %w", target, err)
	}
	return processor, nil
}

func (r *Runner) processOne(ctx context.Context, processor *pipeline.Processor, runID string, candidate walker.Candidate) domain.FileResult {
	ctx, span := r.tracer.Start(ctx, "batch.process_file")
	span.SetAttributes(attribute.String("file.name", candidate.Name))
	defer span.End()

	var done func()
	if r.metrics != nil {
		done = r.metrics.Begin()
	}

	result, err := processor.Process(ctx, pipeline.Request{Name: candidate.Name, SourcePath: candidate.Path})

	if done != nil {
		done()
		r.metrics.Observe(result)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result.Reason)
		r.logger.Warn("file failed",
			zap.String("run_id", runID),
			zap.String("file", candidate.Name),
			zap.String("reason", result.Reason),
			zap.Error(err),
		)
	} else {
		span.SetAttributes(
			attribute.Int("image.width", result.Width),
			attribute.Int("image.height", result.Height),
		)
		r.logger.Debug("file optimized",
			zap.String("run_id", runID),
			zap.String("file", candidate.Name),
			zap.String("output", result.OutputPath),
			zap.Int("orig_width", result.OrigWidth),
			zap.Int("orig_height", result.OrigHeight),
			zap.Int("width", result.Width),
			zap.Int("height", result.Height),
			zap.Duration("duration", result.Duration),
		)
	}

	if r.ledger != nil {
		if err := r.ledger.SaveResult(ctx, runID, result); err != nil {
			r.logger.Warn("ledger write failed", zap.String("run_id", runID), zap.String("file", candidate.Name), zap.Error(err))
		}
	}
	if r.reporter != nil {
		r.reporter.FileDone(result)
	}
	return result
}

// CompletionEvent is the body of a batch.completed webhook.
type CompletionEvent struct {
	RunID       string              `json:"run_id"`
	Attempted   int                 `json:"attempted"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Failures    []domain.FileResult `json:"failures,omitempty"`
	CompletedAt time.Time           `json:"completed_at"`
}

func (r *Runner) notify(ctx context.Context, endpoint string, summary domain.Summary) {
	if r.webhook == nil || strings.TrimSpace(endpoint) == "" {
		return
	}

	event := CompletionEvent{
		RunID:       summary.RunID,
		Attempted:   summary.Attempted,
		Succeeded:   summary.Succeeded,
		Failed:      summary.Failed,
		Failures:    summary.Failures(),
		CompletedAt: r.now().UTC(),
	}
	if err := r.webhook.Send(ctx, endpoint, webhook.EventBatchCompleted, event); err != nil {
		r.logger.Warn("webhook delivery failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}
