// Package main provides the mdpredict CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/config"
	"github.com/orneryd/mdpredict/pkg/logging"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// app is built once per invocation by the root command's pre-run hook and
// shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "mdpredict",
		Short: "mdpredict - min-degree predictor experiments on evolving graphs",
		Long: `mdpredict sizes, maintains and evaluates a bounded predictor of the
highest-degree nodes of a graph observed as a sequence of snapshots.

Features:
  • Predictor sizing (n̄) from pairwise min-degree scores
  • Fixed, increased-budget and split memory policies
  • Fixed, previous-snapshot and summary-updated predictor drift
  • Recall@k and rank-biased overlap against ground truth
  • Resumable runs backed by an append-only ledger
  • Sweeps over datasets and multipliers in parallel worker processes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("MDPREDICT_CONFIG"), "YAML configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mdpredict v%s (%s)\n", version, commit)
		},
	})
	rootCmd.AddCommand(
		newNBarCmd(a),
		newTruncateCmd(a),
		newRunCmd(a),
		newUSSCmd(a),
		newSimilarityCmd(a),
		newSweepCmd(a),
	)
	return rootCmd
}

func (a *app) init() error {
	cfg, err := config.LoadFromEnvOrFile(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	logger.Debug("configuration loaded", zap.Stringer("config", cfg))
	return nil
}
