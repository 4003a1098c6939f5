package eval

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/orneryd/mdpredict/pkg/artifact"
)

// Column headers of the CSV outputs.
var (
	SummaryHeader    = []string{"Snapshot", "Algo", "c", "RBO", "Recall"}
	SimilarityHeader = []string{"Algo", "RBO", "Recall"}
	AggregateHeader  = []string{"Algo", "c", "Snapshot", "Trials", "RecallMean", "RecallStdDev", "RBOMean", "RBOStdDev"}
)

// Metric names used for per-metric logs.
const (
	MetricRecall = "recall"
	MetricRBO    = "rbo"
)

// Reporter formats and outputs evaluation results. Files are always written
// atomically.
type Reporter struct {
	writer io.Writer
}

// NewReporter creates a new reporter that writes to the given writer.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &Reporter{writer: w}
}

func f6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

// WriteSummaryCSV writes one row per (snapshot, trial). Snapshots are
// numbered from 1 in this file.
func (r *Reporter) WriteSummaryCSV(path string, results []TrialResult) error {
	return artifact.WriteAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(SummaryHeader); err != nil {
			return err
		}
		for _, res := range results {
			row := []string{strconv.Itoa(res.Snapshot + 1), res.Algo, strconv.Itoa(res.C), f6(res.RBO), f6(res.Recall)}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// MetricPoint is one line of a per-metric log.
type MetricPoint struct {
	Index int
	Value float64
}

// MetricPoints extracts the given metric of one seed, ordered by snapshot.
func MetricPoints(results []TrialResult, seed int64, metric string) []MetricPoint {
	var points []MetricPoint
	for _, res := range results {
		if res.Seed != seed {
			continue
		}
		p := MetricPoint{Index: res.Snapshot}
		switch metric {
		case MetricRecall:
			p.Value = res.Recall
		case MetricRBO:
			p.Value = res.RBO
		default:
			p.Value = res.Metrics[metric]
		}
		points = append(points, p)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Index < points[j].Index })
	return points
}

// WriteMetricLog writes "<index> <value>" lines with six decimals.
func (r *Reporter) WriteMetricLog(path string, points []MetricPoint) error {
	return artifact.WriteAtomic(path, func(w io.Writer) error {
		for _, p := range points {
			if _, err := fmt.Fprintf(w, "%d %.6f\n", p.Index, p.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteAggregateCSV writes per-snapshot means and standard deviations.
func (r *Reporter) WriteAggregateCSV(path string, aggs []SnapshotAggregate) error {
	return artifact.WriteAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(AggregateHeader); err != nil {
			return err
		}
		for _, a := range aggs {
			row := []string{
				a.Algo, strconv.Itoa(a.C), strconv.Itoa(a.Snapshot + 1), strconv.Itoa(a.Count),
				f6(a.RecallMean), f6(a.RecallStdDev), f6(a.RBOMean), f6(a.RBOStdDev),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteSimilarityCSV writes one row per successful comparison.
func (r *Reporter) WriteSimilarityCSV(path string, res *SuiteResult) error {
	return artifact.WriteAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(SimilarityHeader); err != nil {
			return err
		}
		for _, cr := range res.Results {
			if cr.Error != "" {
				continue
			}
			if err := cw.Write([]string{cr.Comparison.Name, f6(cr.Scores.RBO), f6(cr.Scores.Recall)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// SuitePoints extracts a metric from a suite, keyed by comparison index.
func SuitePoints(res *SuiteResult, metric string) []MetricPoint {
	points := make([]MetricPoint, 0, len(res.Results))
	for _, cr := range res.Results {
		if cr.Error != "" {
			continue
		}
		v := cr.Scores.Recall
		if metric == MetricRBO {
			v = cr.Scores.RBO
		}
		points = append(points, MetricPoint{Index: cr.Comparison.Index, Value: v})
	}
	return points
}

// PrintSummary prints a human-readable per-snapshot summary.
func (r *Reporter) PrintSummary(experiment string, aggs []SnapshotAggregate) {
	w := r.writer

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║           Predictor Evaluation Results                         ║")
	fmt.Fprintln(w, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "📊 Experiment: %s\n", experiment)
	fmt.Fprintf(w, "📅 Time:       %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "┌─────────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│ Snapshot  Algo              c   Recall              RBO         │")
	fmt.Fprintln(w, "├─────────────────────────────────────────────────────────────────┤")
	for _, a := range aggs {
		fmt.Fprintf(w, "│ %-8d  %-16s %3d  %s %.3f  %.3f±%.3f\n",
			a.Snapshot+1, truncate(a.Algo, 16), a.C,
			progressBar(a.RecallMean, 10), a.RecallMean, a.RBOMean, a.RBOStdDev)
	}
	fmt.Fprintln(w, "└─────────────────────────────────────────────────────────────────┘")
	fmt.Fprintln(w)
}

// PrintSuite prints a similarity suite.
func (r *Reporter) PrintSuite(res *SuiteResult) {
	w := r.writer
	fmt.Fprintf(w, "📊 Suite: %s (%d comparisons, %v)\n", res.Name, len(res.Results), res.Duration.Round(time.Millisecond))
	for _, cr := range res.Results {
		if cr.Error != "" {
			fmt.Fprintf(w, "   ❌ %d %s: %s\n", cr.Comparison.Index, cr.Comparison.Name, cr.Error)
			continue
		}
		fmt.Fprintf(w, "   %d %s: RBO=%.6f Recall=%.6f\n",
			cr.Comparison.Index, cr.Comparison.Name, cr.Scores.RBO, cr.Scores.Recall)
	}
	fmt.Fprintf(w, "   mean RBO=%.6f Recall=%.6f\n", res.Aggregate.RBOMean, res.Aggregate.RecallMean)
}

// PrintCompact prints a one-line summary.
func (r *Reporter) PrintCompact(experiment string, results []TrialResult) {
	var recall, rbo float64
	for _, res := range results {
		recall += res.Recall
		rbo += res.RBO
	}
	n := float64(len(results))
	if n > 0 {
		recall /= n
		rbo /= n
	}
	fmt.Fprintf(r.writer, "[%s] %d trials | Recall=%.4f RBO=%.4f\n", experiment, len(results), recall, rbo)
}

// PrintJSON outputs v as indented JSON.
func (r *Reporter) PrintJSON(v any) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func progressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
