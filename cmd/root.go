// Package cmd defines and implements the CLI commands for the trendwatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/clock/system"
	"github.com/mediatechlab/trendwatch/internal/config"
	"github.com/mediatechlab/trendwatch/internal/dataset"
	"github.com/mediatechlab/trendwatch/internal/id/uuid"
	"github.com/mediatechlab/trendwatch/internal/logging"
	"github.com/mediatechlab/trendwatch/internal/normalize"
	"github.com/mediatechlab/trendwatch/internal/pipeline"
	"github.com/mediatechlab/trendwatch/internal/runstore/memory"
	"github.com/mediatechlab/trendwatch/internal/runstore/postgres"
	"github.com/mediatechlab/trendwatch/internal/serpapi"
	"github.com/mediatechlab/trendwatch/internal/trends"
	"github.com/mediatechlab/trendwatch/internal/validate"
)

var cfgFile string

// runtimeKeyType is the key for storing the runtime in the command context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime bundles the configuration and logger every subcommand needs.
type runtime struct {
	cfg config.Config
	log *zap.Logger
}

// newRuntime is a variable so tests can swap in a stub factory.
var newRuntime = func() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(log)
	return &runtime{cfg: cfg, log: log}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trendwatch",
		Short: "Daily search-interest ingestion for consumer security terms.",
		Long: `trendwatch fetches Google Trends interest for a configured set of
search terms via SerpApi, validates each day's batch, and merges it into a
deduplicated CSV dataset. Run bookkeeping is kept in memory or Postgres.`,
		SilenceUsage: true,

		// Build the runtime after flags are parsed but before the
		// subcommand runs, and hand it down via the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
				_ = rt.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; TRENDWATCH_* env vars override)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// buildService wires the ingestion pipeline from configuration. The cleanup
// function releases the run store; callers defer it.
func buildService(ctx context.Context, rt *runtime) (*pipeline.Service, func(), error) {
	cfg := rt.cfg

	client := serpapi.NewClient(serpapi.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Geo:     cfg.Trends.Geo,
		Timeout: cfg.ProviderTimeout(),
	}, rt.log.Named("serpapi"))
	policy := trends.NewExponentialRetryPolicy(
		cfg.Retry.MaxAttempts,
		cfg.RetryBaseDelay(),
		cfg.RetryMaxDelay(),
		serpapi.IsTransient,
	)
	fetcher := serpapi.NewRetryingFetcher(client, policy, cfg.Provider.RateLimitRPS, rt.log.Named("fetch"))

	clk := system.New()
	runner := pipeline.NewRunner(pipeline.Config{
		Terms:        cfg.Trends.Terms,
		Geo:          cfg.Trends.Geo,
		LookbackDays: cfg.Trends.LookbackDays,
		FailFast:     cfg.Trends.FailFast,
	}, pipeline.Deps{
		Fetcher:    fetcher,
		Normalizer: normalize.New(cfg.Trends.Geo, clk),
		Validator:  validate.New(cfg.Trends.Geo, cfg.Validation.NullDensityThreshold),
		Writer:     dataset.NewStore(cfg.Dataset.Path, rt.log.Named("dataset")),
		Log:        rt.log.Named("pipeline"),
	})

	var (
		runStore trends.RunStore
		cleanup  = func() {}
	)
	switch cfg.RunStore.Provider {
	case "postgres":
		pgStore, err := postgres.NewStore(ctx, postgres.Config{
			DSN:      cfg.RunStore.DSN,
			Table:    cfg.RunStore.Table,
			MaxConns: int32(cfg.RunStore.MaxConns),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres run store: %w", err)
		}
		runStore = pgStore
		cleanup = pgStore.Close
	default:
		runStore = memory.NewStore()
	}

	svc := pipeline.NewService(runner, runStore, uuid.New(), clk, rt.log.Named("runs"))
	return svc, cleanup, nil
}
