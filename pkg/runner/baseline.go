package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/artifact"
	"github.com/orneryd/mdpredict/pkg/eval"
	"github.com/orneryd/mdpredict/pkg/graph"
	"github.com/orneryd/mdpredict/pkg/ledger"
	"github.com/orneryd/mdpredict/pkg/summary"
)

// AlgoSummary labels rows of the summary-only baseline.
const AlgoSummary = "USS"

// BaselineInputs describes a summary-only experiment: the sketch alone,
// sized from each snapshot's ground truth, with no predictor.
type BaselineInputs struct {
	Experiment  string
	Snapshots   []string
	GroundTruth []string
	TruthFormat graph.Format
	C           int
	Trials      int
}

// Validate checks the inputs.
func (in BaselineInputs) Validate() error {
	if in.Experiment == "" {
		return fmt.Errorf("%w: experiment name is empty", ErrInvalidInputs)
	}
	if len(in.Snapshots) == 0 {
		return fmt.Errorf("%w: no snapshots", ErrInvalidInputs)
	}
	if len(in.GroundTruth) != len(in.Snapshots) {
		return fmt.Errorf("%w: %d snapshots, %d ground-truth files",
			ErrConfigMismatch, len(in.Snapshots), len(in.GroundTruth))
	}
	if in.Trials <= 0 {
		return fmt.Errorf("%w: trials must be positive, got %d", ErrInvalidInputs, in.Trials)
	}
	if in.C < 1 {
		return fmt.Errorf("%w: multiplier must be at least 1, got %d", ErrInvalidInputs, in.C)
	}
	return nil
}

// RunSummaryBaseline summarizes every snapshot with c·n̄ tracked nodes,
// where n̄ is the length of that snapshot's ground truth, and scores the top
// n̄ against it.
func (r *Runner) RunSummaryBaseline(ctx context.Context, in BaselineInputs) ([]eval.TrialResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	truth, err := readRankedFiles(in.GroundTruth, in.TruthFormat)
	if err != nil {
		return nil, err
	}

	parts := append([]string{"summary", fmt.Sprint(in.C), fmt.Sprint(r.exp.SeedBase)}, in.Snapshots...)
	if err := r.ledger.CheckFingerprint(in.Experiment, ledger.Fingerprint(append(parts, in.GroundTruth...)...)); err != nil {
		return nil, err
	}

	layout := r.Layout(in.Experiment)
	adapter := summary.NewAdapter(r.engine)

	var results []eval.TrialResult
	for i, path := range in.Snapshots {
		snap := &graph.Snapshot{Index: i, Path: path}
		nbar := len(truth[i])
		capacity := in.C * nbar

		for t := 0; t < in.Trials; t++ {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			seed := r.Seed(t)
			top, err := r.summaryTop(ctx, adapter, layout, snap, capacity, nbar, seed)
			if err != nil {
				return results, err
			}
			scores, err := eval.Evaluate(truth[i], top)
			if err != nil {
				return results, fmt.Errorf("runner: snapshot %d: %w", i, err)
			}
			res, err := r.record(eval.TrialResult{
				Experiment: in.Experiment,
				Algo:       AlgoSummary,
				C:          in.C,
				Snapshot:   i,
				Seed:       seed,
				Recall:     scores.Recall,
				RBO:        scores.RBO,
				Metrics:    map[string]float64{"capacity": float64(capacity), "nbar": float64(nbar)},
			})
			if err != nil {
				return results, err
			}
			results = append(results, res)
		}
		r.logger.Info("summary baseline snapshot done",
			zap.String("experiment", in.Experiment), zap.Int("snapshot", i),
			zap.Int("nbar", nbar), zap.Int("capacity", capacity))
	}

	if err := r.Export(in.Experiment); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) summaryTop(ctx context.Context, adapter *summary.Adapter, layout artifact.Layout, snap *graph.Snapshot, capacity, size int, seed int64) (graph.RankedList, error) {
	path := layout.TopNodesPath(snap.Index, seed)
	done, err := artifact.Exists(path)
	if err != nil {
		return nil, err
	}
	if done {
		return graph.ReadRankedFile(path, graph.FormatRankedCSV)
	}

	top, err := adapter.Refresh(ctx, snap, capacity, size, seed)
	if err != nil {
		return nil, fmt.Errorf("runner: summary of snapshot %d seed %d: %w", snap.Index, seed, err)
	}
	if err := artifact.WriteRanked(path, top, graph.FormatRankedCSV); err != nil {
		return nil, err
	}
	return top, nil
}
