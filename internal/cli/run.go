package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dunamismax/webopt/internal/batch"
	"github.com/dunamismax/webopt/internal/domain"
	"github.com/dunamismax/webopt/internal/metrics"
	"github.com/dunamismax/webopt/internal/pipeline"
	"github.com/dunamismax/webopt/internal/telemetry"
)

func addOptimizeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("input", "i", "input", "folder to read images from")
	flags.StringP("output", "o", "output", "output folder or s3://bucket/prefix")
	flags.Int("max-resolution", domain.DefaultMaxResolution, "cap for the longer side in pixels")
	flags.Int("quality", domain.DefaultQuality, "JPEG quality, 1 to 100")
	flags.String("webhook-url", "", "endpoint notified with batch.completed")
}

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Optimize every image in a folder",
		Long: `Optimize every .jpg, .jpeg and .png file directly inside the input folder.

A file that cannot be read, decoded or written is reported and skipped; the
command only fails when the batch as a whole cannot run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runBatch(ctx)
		},
	}

	addOptimizeFlags(cmd)
	cmd.Flags().Int("workers", 1, "files processed concurrently")
	cmd.Flags().Bool("watch", false, "keep watching the input folder after the first pass")
	cmd.Flags().String("metrics-file", "", "write Prometheus textfile metrics here when done")
	return cmd
}

func (a *app) runBatch(ctx context.Context) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, a.traceConfig(), a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	if err := pipeline.Startup(a.cfg.Optimize.Workers); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	ledger, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	recorder := metrics.New(false)
	runner := batch.NewRunner(batch.Options{
		Logger:   a.logger,
		Metrics:  recorder,
		Ledger:   ledger,
		Webhook:  a.webhookClient(),
		Reporter: a.printer,
		Emitters: batch.StorageEmitters(a.storageConfig()),
	})

	params := a.batchParams()
	a.printer.Info("Optimizing %s -> %s (max %dpx, quality %d, engine %s)",
		params.InputDir, params.Output, params.Transform.MaxResolution, params.Transform.Quality, pipeline.Engine)

	started := time.Now()
	summary, err := runner.Run(ctx, params)
	if errors.Is(err, context.Canceled) {
		a.printer.Summary(summary)
		return err
	}
	if err != nil {
		return err
	}
	a.printer.Summary(summary)
	if ledger != nil {
		a.printer.Info("Run id: %s", summary.RunID)
	}

	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			a.logger.Warn("metrics textfile write failed", zap.String("path", path), zap.Error(err))
		}
	}

	if !a.cfg.Optimize.Watch {
		return nil
	}
	a.printer.Info("Watching %s for new images (Ctrl+C to stop)", params.InputDir)
	params.Since = started
	return runner.Watch(ctx, params)
}
