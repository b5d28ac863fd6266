package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/dunamismax/webopt/internal/id"
	"github.com/dunamismax/webopt/internal/pipeline"
	"github.com/dunamismax/webopt/internal/progress"
	"github.com/dunamismax/webopt/internal/queue"
	"github.com/dunamismax/webopt/internal/walker"
)

const progressTTL = 7 * 24 * time.Hour

func newEnqueueCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue every image in a folder for the workers",
		Long: `Queue one image:optimize task per candidate file. Workers must be able to
read the input paths and write the output target.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.enqueue(cmd.Context())
		},
	}
	addOptimizeFlags(cmd)
	return cmd
}

func (a *app) enqueue(ctx context.Context) error {
	params := a.batchParams()
	if err := params.Transform.Validate(); err != nil {
		return err
	}

	target, err := pipeline.ParseTarget(params.Output)
	if err != nil {
		return err
	}
	output := target.String()
	if !target.IsObjectStore() {
		if output, err = filepath.Abs(target.Dir); err != nil {
			return fmt.Errorf("resolve output dir: %w", err)
		}
	}

	inputDir, err := filepath.Abs(params.InputDir)
	if err != nil {
		return fmt.Errorf("resolve input dir: %w", err)
	}

	// Collect first so the total is known before any worker can finish a file.
	candidates, err := walker.Collect(inputDir)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	rdb := a.redisClient()
	defer rdb.Close()

	tracker, err := progress.NewTracker(rdb, "", progressTTL)
	if err != nil {
		return err
	}

	batchID := id.New()
	if err := tracker.Start(ctx, batchID, len(candidates)); err != nil {
		return err
	}

	client := queue.NewClient(a.cfg.Queue.RedisClientOpt(), a.cfg.Queue.Name, a.cfg.Queue.MaxRetry)
	defer client.Close()

	requestedAt := time.Now().UTC()
	enqueued := 0
	for _, c := range candidates {
		info, err := client.EnqueueOptimizeImage(ctx, queue.OptimizeImagePayload{
			BatchID:       batchID,
			Name:          c.Name,
			InputPath:     c.Path,
			Output:        output,
			MaxResolution: params.Transform.MaxResolution,
			Quality:       params.Transform.Quality,
			WebhookURL:    params.WebhookURL,
			RequestedAt:   requestedAt,
		})
		if err != nil {
			// Count it as failed so the batch can still complete.
			result := domain.Failed(c.Name, c.Path, fmt.Errorf("%w: enqueue: %v", domain.ErrIO, err))
			if _, _, recErr := tracker.Record(ctx, batchID, result); recErr != nil {
				a.logger.Warn("progress update failed", zap.String("batch_id", batchID), zap.Error(recErr))
			}
			a.printer.FileDone(result)
			continue
		}
		enqueued++
		a.logger.Debug("task enqueued", zap.String("batch_id", batchID), zap.String("file", c.Name), zap.String("task_id", info.ID))
	}

	a.printer.Success("Enqueued %d of %d file(s) as batch %s", enqueued, len(candidates), batchID)
	a.printer.Info("Track it with: webopt status %s", batchID)
	return nil
}
