package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/artifact"
	"github.com/orneryd/mdpredict/pkg/budget"
	"github.com/orneryd/mdpredict/pkg/engine"
	"github.com/orneryd/mdpredict/pkg/eval"
	"github.com/orneryd/mdpredict/pkg/graph"
	"github.com/orneryd/mdpredict/pkg/ledger"
	"github.com/orneryd/mdpredict/pkg/nbar"
	"github.com/orneryd/mdpredict/pkg/oracle"
	"github.com/orneryd/mdpredict/pkg/runner"
)

// newRunner validates the configuration, builds the engine and opens the
// ledger of experiment. The caller closes the ledger.
func (a *app) newRunner(cmd *cobra.Command, experiment string) (*runner.Runner, *ledger.Ledger, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(a.cfg.Engine, a.logger)
	if err != nil {
		return nil, nil, err
	}

	layout := artifact.NewLayout(a.cfg.Output.Root, experiment)
	opts := ledger.Options{Dir: layout.LedgerDir(), InMemory: a.cfg.Output.LedgerInMemory}
	led, err := ledger.Open(opts, a.logger)
	if err != nil {
		return nil, nil, err
	}

	r := runner.New(eng, led, runner.Options{
		Root:       a.cfg.Output.Root,
		Experiment: a.cfg.Experiment,
		Reporter:   eval.NewReporter(cmd.OutOrStdout()),
		Logger:     a.logger,
	})
	return r, led, nil
}

func listOrFail(dir, what string) ([]string, error) {
	files, err := artifact.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("%s folder: %w", what, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s folder %s is empty", what, dir)
	}
	return files, nil
}

func newRunCmd(a *app) *cobra.Command {
	var (
		datasetDir, oracleDir, nbarFile, initial, name string
		policy, drift, truthFormat, initialFormat      string
		c, trials                                      int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the predictor-backed core algorithm over a snapshot sequence",
		Long: `Run the core algorithm on every snapshot of --dataset with a min-degree
predictor, for --trials seeds, and score each output against the matching
ground-truth predictor of --oracles.

--policy chooses how the memory budget grows (fixed, increased-budget, split)
and --drift how the predictor follows the graph (fixed, previous-snapshot,
uss-updated). Re-running with the same arguments resumes an interrupted run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := budget.ParsePolicy(policy)
			if err != nil {
				return err
			}
			d, err := oracle.ParseDrift(drift)
			if err != nil {
				return err
			}
			tf, err := graph.ParseFormat(truthFormat)
			if err != nil {
				return err
			}
			inf, err := graph.ParseFormat(initialFormat)
			if err != nil {
				return err
			}
			snapshots, err := listOrFail(datasetDir, "dataset")
			if err != nil {
				return err
			}
			truth, err := listOrFail(oracleDir, "oracle")
			if err != nil {
				return err
			}
			values, err := nbar.ReadValues(nbarFile)
			if err != nil {
				return err
			}
			if initial == "" {
				if p == budget.Split {
					return fmt.Errorf("--initial is required with --policy %s: pass the full node-degree list of the first snapshot so the predictor can grow past n̄", budget.Split)
				}
				initial = truth[0]
			}

			r, led, err := a.newRunner(cmd, name)
			if err != nil {
				return err
			}
			defer led.Close()

			results, err := r.Run(cmd.Context(), runner.TrialInputs{
				Experiment:       name,
				Snapshots:        snapshots,
				GroundTruth:      truth,
				TruthFormat:      tf,
				NBar:             values,
				InitialPredictor: initial,
				InitialFormat:    inf,
				C:                c,
				Trials:           trials,
				Policy:           p,
				Drift:            d,
			})
			if err != nil {
				return err
			}
			a.logger.Info("experiment complete", zap.String("experiment", name), zap.Int("trials_run", len(results)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&datasetDir, "dataset", "d", "", "Folder of snapshot edge lists")
	cmd.Flags().StringVarP(&oracleDir, "oracles", "o", "", "Folder of per-snapshot ground-truth predictors")
	cmd.Flags().StringVarP(&nbarFile, "nbar", "b", "", "File with one n̄ value per snapshot")
	cmd.Flags().StringVar(&initial, "initial", "", "Initial predictor (default: first file of --oracles; required with --policy split)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Experiment name")
	cmd.Flags().IntVarP(&c, "c", "c", 0, "Summary capacity multiplier")
	cmd.Flags().IntVarP(&trials, "trials", "t", 0, "Trials (seeds) per snapshot")
	cmd.Flags().StringVar(&policy, "policy", "", "Budget policy: fixed, increased-budget, split")
	cmd.Flags().StringVar(&drift, "drift", "", "Predictor drift: fixed, previous-snapshot, uss-updated")
	cmd.Flags().StringVar(&truthFormat, "truth-format", string(graph.FormatDegreeText), "Ground-truth format: txt or csv")
	cmd.Flags().StringVar(&initialFormat, "initial-format", string(graph.FormatDegreeText), "Initial predictor format: txt or csv")
	for _, f := range []string{"dataset", "oracles", "nbar", "name", "c", "trials", "policy", "drift"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newUSSCmd(a *app) *cobra.Command {
	var (
		datasetDir, oracleDir, name, truthFormat string
		c, trials                                int
	)
	cmd := &cobra.Command{
		Use:   "uss",
		Short: "Evaluate the summary sketch alone against each snapshot's ground truth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := graph.ParseFormat(truthFormat)
			if err != nil {
				return err
			}
			snapshots, err := listOrFail(datasetDir, "dataset")
			if err != nil {
				return err
			}
			truth, err := listOrFail(oracleDir, "oracle")
			if err != nil {
				return err
			}

			r, led, err := a.newRunner(cmd, name)
			if err != nil {
				return err
			}
			defer led.Close()

			_, err = r.RunSummaryBaseline(cmd.Context(), runner.BaselineInputs{
				Experiment:  name,
				Snapshots:   snapshots,
				GroundTruth: truth,
				TruthFormat: tf,
				C:           c,
				Trials:      trials,
			})
			return err
		},
	}
	cmd.Flags().StringVarP(&datasetDir, "dataset", "d", "", "Folder of snapshot edge lists")
	cmd.Flags().StringVarP(&oracleDir, "oracles", "o", "", "Folder of per-snapshot ground-truth predictors")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Experiment name")
	cmd.Flags().IntVarP(&c, "c", "c", 0, "Summary capacity multiplier")
	cmd.Flags().IntVarP(&trials, "trials", "t", 0, "Trials (seeds) per snapshot")
	cmd.Flags().StringVar(&truthFormat, "truth-format", string(graph.FormatDegreeText), "Ground-truth format: txt or csv")
	for _, f := range []string{"dataset", "oracles", "name", "c", "trials"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newSimilarityCmd(a *app) *cobra.Command {
	var oracleDir, name, format string
	cmd := &cobra.Command{
		Use:   "similarity",
		Short: "Compare each snapshot's predictor with the first and with the previous one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := graph.ParseFormat(format)
			if err != nil {
				return err
			}
			preds, err := listOrFail(oracleDir, "oracle")
			if err != nil {
				return err
			}
			// Similarity needs no engine or ledger.
			r := runner.New(nil, nil, runner.Options{
				Root:       a.cfg.Output.Root,
				Experiment: a.cfg.Experiment,
				Reporter:   eval.NewReporter(cmd.OutOrStdout()),
				Logger:     a.logger,
			})
			_, err = r.RunSimilarity(runner.SimilarityInputs{Experiment: name, Predictors: preds, Format: f})
			return err
		},
	}
	cmd.Flags().StringVarP(&oracleDir, "oracles", "o", "", "Folder of per-snapshot predictors")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Experiment name")
	cmd.Flags().StringVar(&format, "format", string(graph.FormatDegreeText), "Predictor format: txt or csv")
	_ = cmd.MarkFlagRequired("oracles")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
