package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dunamismax/webopt/internal/batch"
	"github.com/dunamismax/webopt/internal/metrics"
	"github.com/dunamismax/webopt/internal/pipeline"
	"github.com/dunamismax/webopt/internal/progress"
	"github.com/dunamismax/webopt/internal/telemetry"
	"github.com/dunamismax/webopt/internal/worker"
)

func newWorkerCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued images until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorker(cmd.Context())
		},
	}
	cmd.Flags().Int("concurrency", 0, "tasks processed concurrently (default from config)")
	cmd.Flags().String("metrics-addr", "", "address serving /metrics (default from config)")
	return cmd
}

func (a *app) runWorker(ctx context.Context) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, a.traceConfig(), a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	if err := pipeline.Startup(a.cfg.Worker.Concurrency); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	ledger, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	rdb := a.redisClient()
	defer rdb.Close()
	tracker, err := progress.NewTracker(rdb, "", progressTTL)
	if err != nil {
		return err
	}

	recorder := metrics.New(true)
	srv := worker.NewServer(a.logger, a.cfg.Queue, a.cfg.Worker, worker.Deps{
		Emitters: batch.StorageEmitters(a.storageConfig()),
		Metrics:  recorder,
		Progress: tracker,
		Ledger:   ledger,
		Webhook:  a.webhookClient(),
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", srv.MetricsHandler())
	metricsServer := &http.Server{
		Addr:              a.cfg.Worker.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	a.logger.Info("starting worker",
		zap.Int("concurrency", a.cfg.Worker.Concurrency),
		zap.String("queue", a.cfg.Queue.Name),
		zap.String("redis", a.cfg.Queue.RedisAddr),
		zap.String("metrics_addr", a.cfg.Worker.MetricsAddr),
		zap.String("engine", pipeline.Engine),
	)

	// asynq handles SIGINT and SIGTERM itself and returns once drained.
	return srv.Run()
}
