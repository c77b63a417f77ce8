package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/butterfly-api/internal/config"
	"github.com/Brownie44l1/butterfly-api/internal/logutil"
	"github.com/Brownie44l1/butterfly-api/internal/model"
	"github.com/Brownie44l1/butterfly-api/internal/pipeline"
	"github.com/Brownie44l1/butterfly-api/internal/species"
	"github.com/Brownie44l1/butterfly-api/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "butterfly",
		Short:        "Butterfly species classifier",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("model", "", "model artifact (.onnx or .tflite); overrides BUTTERFLY_MODEL_PATH")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newClassifyCmd(),
		newCheckCmd(),
		newHistoryCmd(),
		newUserCmd(),
		newBotCmd(),
	)
	return root
}

// env is the configuration and logger shared by every command.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("model") {
		p, _ := cmd.Flags().GetString("model")
		cfg.ModelPath = cfg.Resolve(p)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}

	logger := logutil.NewLogger(os.Stderr, logutil.Level(cfg.Debug))
	slog.SetDefault(logger)
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) modelOptions() model.Options {
	return model.Options{
		Path:          e.cfg.ModelPath,
		SharedLibrary: e.cfg.ORTLibrary,
		Threads:       e.cfg.Threads,
		Logger:        e.logger,
	}
}

// openPipeline loads Workers model instances. A failure here is fatal for
// every command that classifies.
func (e *env) openPipeline() (*pipeline.Pipeline, *model.Pool, error) {
	e.logger.Info("loading model", "path", e.cfg.ModelPath, "workers", e.cfg.Workers)
	pool, err := model.OpenPool(e.cfg.Workers, e.modelOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize model: %w", err)
	}
	return pipeline.New(pool, e.logger), pool, nil
}

func (e *env) catalog() (*species.Catalog, error) {
	c := species.Default()
	if e.cfg.DetailsPath != "" {
		extra, err := species.LoadFile(e.cfg.DetailsPath)
		if err != nil {
			return nil, fmt.Errorf("load species details: %w", err)
		}
		c = c.Merge(extra)
	}
	if unknown := c.UnknownLabels(); len(unknown) > 0 {
		e.logger.Warn("species details name unknown labels", "labels", unknown)
	}
	return c, nil
}

func (e *env) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, e.cfg.DBDriver, e.cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", e.cfg.DBDriver, err)
	}
	return st, nil
}
