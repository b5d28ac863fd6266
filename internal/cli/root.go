// Package cli contains the webopt commands.
package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dunamismax/webopt/internal/batch"
	"github.com/dunamismax/webopt/internal/config"
	"github.com/dunamismax/webopt/internal/logging"
	"github.com/dunamismax/webopt/internal/output"
	"github.com/dunamismax/webopt/internal/storage"
	"github.com/dunamismax/webopt/internal/store"
	"github.com/dunamismax/webopt/internal/telemetry"
	"github.com/dunamismax/webopt/internal/webhook"
)

// BuildInfo is stamped in at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// flagKeys maps command flags onto config keys. Only the flags of the command
// being executed are bound.
var flagKeys = map[string]string{
	"input":          "optimize.input_dir",
	"output":         "optimize.output",
	"max-resolution": "optimize.max_resolution",
	"quality":        "optimize.quality",
	"workers":        "optimize.workers",
	"watch":          "optimize.watch",
	"webhook-url":    "webhook.url",
	"metrics-file":   "metrics.textfile_path",
	"concurrency":    "worker.concurrency",
	"metrics-addr":   "worker.metrics_addr",
}

type app struct {
	build   BuildInfo
	v       *viper.Viper
	cfgFile string
	verbose bool
	noColor bool

	cfg     *config.Config
	logger  *zap.Logger
	printer *output.Printer
}

func NewRootCommand(build BuildInfo) *cobra.Command {
	a := &app{build: build, v: config.New()}

	root := &cobra.Command{
		Use:   "webopt",
		Short: "Batch image optimizer for the web",
		Long: `webopt resizes and re-encodes a folder of JPEG and PNG images for web
publication. The longer side of every image is capped at --max-resolution,
transparency is flattened onto white and each file keeps its container.

Example usage:
  webopt run                                   # input/ -> output/ at 1080px, quality 85
  webopt run -i photos -o s3://assets/web      # write to object storage
  webopt run --watch                           # keep optimizing new arrivals
  webopt enqueue -i /srv/photos -o /srv/web    # distribute across workers
  webopt worker                                # process queued files`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is .webopt.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRunCommand(a),
		newEnqueueCommand(a),
		newWorkerCommand(a),
		newStatusCommand(a),
		newReportCommand(a),
		newVersionCommand(a),
	)
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context, build BuildInfo) error {
	return NewRootCommand(build).ExecuteContext(ctx)
}

func (a *app) init(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	a.logger = logger
	a.printer = output.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Output.Colors && !a.noColor)

	logger.Debug("configuration loaded",
		zap.String("config_file", a.v.ConfigFileUsed()),
		zap.String("input_dir", cfg.Optimize.InputDir),
		zap.String("output", cfg.Optimize.Output),
		zap.Int("max_resolution", cfg.Optimize.MaxResolution),
		zap.Int("quality", cfg.Optimize.Quality),
	)
	return nil
}

func (a *app) batchParams() batch.Params {
	return batch.Params{
		InputDir:   a.cfg.Optimize.InputDir,
		Output:     a.cfg.Optimize.Output,
		Transform:  a.cfg.Optimize.Params(),
		Workers:    a.cfg.Optimize.Workers,
		WebhookURL: a.cfg.Webhook.URL,
	}
}

func (a *app) storageConfig() storage.Config {
	return storage.Config{
		Endpoint:     a.cfg.Storage.Endpoint,
		Access:       a.cfg.Storage.AccessKey,
		Secret:       a.cfg.Storage.SecretKey,
		Region:       a.cfg.Storage.Region,
		UseSSL:       a.cfg.Storage.UseSSL,
		CacheControl: a.cfg.Storage.CacheControl,
	}
}

func (a *app) traceConfig() telemetry.TraceConfig {
	return telemetry.TraceConfig{
		ServiceName:  "webopt",
		Exporter:     a.cfg.Telemetry.Exporter,
		OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: a.cfg.Telemetry.OTLPInsecure,
	}
}

func (a *app) webhookClient() *webhook.Client {
	return webhook.NewClient(webhook.Config{
		SigningSecret: a.cfg.Webhook.SigningSecret,
		MaxAttempts:   a.cfg.Webhook.MaxAttempts,
		Logger:        a.logger,
	})
}

func (a *app) redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     a.cfg.Queue.RedisAddr,
		Password: a.cfg.Queue.RedisPassword,
		DB:       a.cfg.Queue.RedisDB,
	})
}

// openLedger returns a nil store when no DSN is configured.
func (a *app) openLedger(ctx context.Context) (store.ResultStore, func(), error) {
	if a.cfg.Ledger.DSN == "" {
		return nil, func() {}, nil
	}
	pg, err := store.NewPostgresResultStore(ctx, a.cfg.Ledger.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("opening result ledger: %w", err)
	}
	return pg, func() { _ = pg.Close() }, nil
}
