package runner

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/eval"
	"github.com/orneryd/mdpredict/pkg/graph"
)

// Similarity suite names. They double as the Algo column of the suite CSV.
const (
	SuiteFirstSnapshot    = "First Snapshot MDP"
	SuitePreviousSnapshot = "Previous Snapshot MDP"
)

// SimilarityInputs lists the per-snapshot predictors of one dataset.
type SimilarityInputs struct {
	Experiment string
	Predictors []string
	Format     graph.Format
}

type suiteSpec struct {
	name string
	dir  string
	// pair returns the predictor compared against snapshot i, or -1 to skip.
	pair func(i int) int
}

var similaritySuites = []suiteSpec{
	{name: SuiteFirstSnapshot, dir: "first-snapshot", pair: func(int) int { return 0 }},
	{name: SuitePreviousSnapshot, dir: "previous-snapshot", pair: func(i int) int { return i - 1 }},
}

// RunSimilarity measures how far each snapshot's predictor drifts from the
// first one and from its predecessor. Each suite writes results.csv plus
// recall.txt and rbo.txt keyed by snapshot index under the suite directory.
// A suite with no comparisons (a single predictor has no predecessor) is
// skipped.
func (r *Runner) RunSimilarity(in SimilarityInputs) ([]*eval.SuiteResult, error) {
	if in.Experiment == "" {
		return nil, fmt.Errorf("%w: experiment name is empty", ErrInvalidInputs)
	}
	if len(in.Predictors) == 0 {
		return nil, fmt.Errorf("%w: no predictor files", ErrInvalidInputs)
	}
	lists, err := readRankedFiles(in.Predictors, in.Format)
	if err != nil {
		return nil, err
	}
	layout := r.Layout(in.Experiment)

	var out []*eval.SuiteResult
	for _, suite := range similaritySuites {
		h := eval.NewHarness(suite.name)
		for i := range lists {
			j := suite.pair(i)
			if j < 0 {
				continue
			}
			h.Add(eval.Comparison{Name: suite.name, Index: i, Truth: lists[i], Predicted: lists[j]})
		}
		if h.Len() == 0 {
			r.logger.Info("similarity suite has no comparisons", zap.String("suite", suite.name))
			continue
		}

		res, err := h.Run()
		if err != nil {
			return out, err
		}
		dir := layout.SuiteDir(suite.dir)
		if err := r.reporter.WriteSimilarityCSV(filepath.Join(dir, "results.csv"), res); err != nil {
			return out, err
		}
		for _, metric := range []string{eval.MetricRecall, eval.MetricRBO} {
			if err := r.reporter.WriteMetricLog(filepath.Join(dir, metric+".txt"), eval.SuitePoints(res, metric)); err != nil {
				return out, err
			}
		}
		if res.Failed > 0 {
			r.logger.Warn("similarity comparisons failed", zap.String("suite", suite.name), zap.Int("failed", res.Failed))
		}
		r.reporter.PrintSuite(res)
		out = append(out, res)
	}
	return out, nil
}
