package runner

import (
	"slices"

	"github.com/orneryd/mdpredict/pkg/eval"
)

// Export rebuilds the summary CSV, per-seed metric logs and the aggregate
// CSV of experiment from the ledger and prints the console summary.
func (r *Runner) Export(experiment string) error {
	results, err := r.ledger.Results(experiment)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	layout := r.Layout(experiment)

	if err := r.reporter.WriteSummaryCSV(layout.SummaryPath(), results); err != nil {
		return err
	}
	for _, seed := range seedsOf(results) {
		for _, metric := range []string{eval.MetricRecall, eval.MetricRBO} {
			points := eval.MetricPoints(results, seed, metric)
			if err := r.reporter.WriteMetricLog(layout.MetricLogPath(seed, metric), points); err != nil {
				return err
			}
		}
	}

	aggs := eval.AggregateBySnapshot(results)
	if err := r.reporter.WriteAggregateCSV(layout.AggregatePath(), aggs); err != nil {
		return err
	}
	r.reporter.PrintSummary(experiment, aggs)
	return nil
}

func seedsOf(results []eval.TrialResult) []int64 {
	seeds := make([]int64, 0, len(results))
	for _, res := range results {
		seeds = append(seeds, res.Seed)
	}
	slices.Sort(seeds)
	return slices.Compact(seeds)
}
