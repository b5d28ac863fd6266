// Package worker consumes image:optimize tasks from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/webopt/internal/batch"
	"github.com/dunamismax/webopt/internal/config"
	"github.com/dunamismax/webopt/internal/domain"
	"github.com/dunamismax/webopt/internal/metrics"
	"github.com/dunamismax/webopt/internal/pipeline"
	"github.com/dunamismax/webopt/internal/progress"
	"github.com/dunamismax/webopt/internal/queue"
	"github.com/dunamismax/webopt/internal/store"
	"github.com/dunamismax/webopt/internal/telemetry"
	"github.com/dunamismax/webopt/internal/webhook"
)

type Server struct {
	logger   *zap.Logger
	server   *asynq.Server
	emitters batch.EmitterFactory
	metrics  *metrics.Recorder
	progress progressRecorder
	ledger   store.ResultStore
	webhook  webhookSender
	tracer   trace.Tracer

	mu       sync.Mutex
	prepared map[string]pipeline.Emitter
}

type progressRecorder interface {
	Record(ctx context.Context, batchID string, r domain.FileResult) (progress.Snapshot, bool, error)
	Snapshot(ctx context.Context, batchID string) (progress.Snapshot, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Deps struct {
	Emitters batch.EmitterFactory
	Metrics  *metrics.Recorder
	Progress progressRecorder
	Ledger   store.ResultStore
	Webhook  webhookSender
}

func NewServer(logger *zap.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) *Server {
	logger = logger.Named("worker")

	s := &Server{
		logger:   logger,
		emitters: deps.Emitters,
		metrics:  deps.Metrics,
		progress: deps.Progress,
		ledger:   deps.Ledger,
		webhook:  deps.Webhook,
		tracer:   telemetry.Tracer("worker"),
		prepared: make(map[string]pipeline.Emitter),
	}
	if s.emitters == nil {
		s.emitters = batch.LocalEmitters
	}
	if s.metrics == nil {
		s.metrics = metrics.New(true)
	}

	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.WarnLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("task failed",
					zap.String("type", task.Type()),
					zap.Int("retry", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)
	return s
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeOptimizeImage, s.handleOptimizeImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleOptimizeImage(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseOptimizeImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.optimize_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("batch.id", payload.BatchID),
		attribute.String("file.name", payload.Name),
		attribute.String("batch.output", payload.Output),
	)
	defer span.End()

	done := s.metrics.Begin()
	result, err := s.process(ctx, payload)
	done()

	if err == nil {
		s.metrics.Observe(result)
		s.logger.Info("optimized",
			zap.String("batch_id", payload.BatchID),
			zap.String("file", payload.Name),
			zap.Int("orig_width", result.OrigWidth),
			zap.Int("orig_height", result.OrigHeight),
			zap.Int("width", result.Width),
			zap.Int("height", result.Height),
		)
		s.finish(ctx, payload, result)
		span.SetStatus(codes.Ok, "optimized")
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, result.Reason)

	retryable := isRetryable(err)
	if retryable && !finalAttempt(ctx) {
		s.logger.Warn("file failed, will retry",
			zap.String("batch_id", payload.BatchID),
			zap.String("file", payload.Name),
			zap.Error(err),
		)
		return fmt.Errorf("optimize %s: %w", payload.Name, err)
	}

	s.metrics.Observe(result)
	s.logger.Warn("file failed",
		zap.String("batch_id", payload.BatchID),
		zap.String("file", payload.Name),
		zap.String("reason", result.Reason),
		zap.Error(err),
	)
	s.finish(ctx, payload, result)

	if !retryable {
		return fmt.Errorf("optimize %s: %v: %w", payload.Name, err, asynq.SkipRetry)
	}
	return fmt.Errorf("optimize %s: %w", payload.Name, err)
}

func (s *Server) process(ctx context.Context, payload queue.OptimizeImagePayload) (domain.FileResult, error) {
	req := pipeline.Request{Name: payload.Name, SourcePath: payload.InputPath}
	fail := func(err error) (domain.FileResult, error) {
		result := domain.Failed(req.Name, req.SourcePath, err)
		result.ProcessedAt = time.Now().UTC()
		return result, err
	}

	emitter, err := s.emitterFor(ctx, payload.Output)
	if err != nil {
		return fail(err)
	}
	processor, err := pipeline.NewProcessor(emitter, payload.Params())
	if err != nil {
		return fail(err)
	}
	return processor.Process(ctx, req)
}

// emitterFor prepares each output target once per worker process.
func (s *Server) emitterFor(ctx context.Context, output string) (pipeline.Emitter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if emitter, ok := s.prepared[output]; ok {
		return emitter, nil
	}

	target, err := pipeline.ParseTarget(output)
	if err != nil {
		return nil, err
	}
	emitter, err := s.emitters(target)
	if err != nil {
		return nil, err
	}
	if err := emitter.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("prepare output %s: %w", target, err)
	}

	s.prepared[output] = emitter
	return emitter, nil
}

// finish records a final outcome and, for the task that completes its batch,
// delivers the completion webhook.
func (s *Server) finish(ctx context.Context, payload queue.OptimizeImagePayload, result domain.FileResult) {
	if s.ledger != nil {
		if err := s.ledger.SaveResult(ctx, payload.BatchID, result); err != nil {
			s.logger.Warn("ledger write failed", zap.String("batch_id", payload.BatchID), zap.Error(err))
		}
	}

	if s.progress == nil {
		return
	}
	snap, completed, err := s.progress.Record(ctx, payload.BatchID, result)
	if err != nil {
		s.logger.Warn("progress update failed", zap.String("batch_id", payload.BatchID), zap.Error(err))
		return
	}
	if !completed {
		return
	}

	s.logger.Info("batch completed",
		zap.String("batch_id", payload.BatchID),
		zap.Int64("total", snap.Total),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("failed", snap.Failed),
	)

	if payload.WebhookURL == "" || s.webhook == nil {
		return
	}
	full, err := s.progress.Snapshot(ctx, payload.BatchID)
	if err != nil {
		s.logger.Warn("progress read failed", zap.String("batch_id", payload.BatchID), zap.Error(err))
		full = snap
	}
	if err := s.webhook.Send(ctx, payload.WebhookURL, webhook.EventBatchCompleted, full); err != nil {
		s.logger.Warn("webhook delivery failed", zap.String("batch_id", payload.BatchID), zap.Error(err))
	}
}

// isRetryable reports whether another attempt could succeed. Bad input and
// bad parameters fail the same way every time.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrDecode),
		errors.Is(err, domain.ErrEncode),
		errors.Is(err, domain.ErrInvalidParameter):
		return false
	default:
		return true
	}
}

func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
