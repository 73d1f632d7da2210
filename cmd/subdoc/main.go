// Command subdoc runs sub-document lookup and mutation batches against a
// configured document store.
//
//	subdoc --config subdoc.yaml set user:1 '{"name":"ada","visits":0}'
//	subdoc --config subdoc.yaml mutate user:1 -f batch.json
//	subdoc --config subdoc.yaml lookup user:1 user:2 -f batch.json
//	subdoc apply doc.json -f batch.json > new.json
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentflare-ai/subdoc"
	"github.com/agentflare-ai/subdoc/config"
	"github.com/agentflare-ai/subdoc/metrics"
)

var (
	configPath  string
	showMetrics bool

	// Populated by the root command's PersistentPreRunE. store and service
	// stay nil for commands annotated with noStore.
	cfg      config.Config
	logger   *slog.Logger
	engine   *subdoc.Engine
	store    config.Store
	service  *subdoc.Service
	registry *prometheus.Registry
)

// noStore marks commands that only run the engine.
const noStore = "subdoc/no-store"

var rootCmd = &cobra.Command{
	Use:           "subdoc",
	Short:         "Read and modify parts of stored JSON documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if !showMetrics {
			return nil
		}
		return dumpMetrics(cmd.ErrOrStderr(), registry)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration (default: in-memory store)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "print engine metrics to stderr on exit")
	rootCmd.AddCommand(setCmd, getCmd, lookupCmd, mutateCmd, applyCmd)
}

func setup(cmd *cobra.Command) error {
	cfg = config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	registry = prometheus.NewRegistry()
	obs, err := metrics.NewPrometheusObserver(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	opts.Observer = obs
	engine = subdoc.NewEngine(opts)

	if _, ok := cmd.Annotations[noStore]; ok {
		logger.Debug("subdoc ready without store", "max_paths", opts.MaxPaths, "counter_policy", opts.CounterPolicy)
		return nil
	}
	if store, err = cfg.OpenStore(logger); err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	service = subdoc.NewService(engine, store, subdoc.WithLogger(logger))
	logger.Debug("subdoc ready",
		"backend", cfg.Store.Backend, "max_paths", opts.MaxPaths, "counter_policy", opts.CounterPolicy)
	return nil
}

func main() {
	err := rootCmd.Execute()
	if store != nil {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "subdoc:", err)
		os.Exit(1)
	}
}
