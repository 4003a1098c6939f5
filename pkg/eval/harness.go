package eval

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/orneryd/mdpredict/pkg/graph"
)

// TrialResult is one (snapshot, trial) evaluation. Rows are immutable once
// recorded.
type TrialResult struct {
	Experiment string  `json:"experiment"`
	Algo       string  `json:"algo"`
	C          int     `json:"c"`
	Snapshot   int     `json:"snapshot"`
	Seed       int64   `json:"seed"`
	Recall     float64 `json:"recall"`
	RBO        float64 `json:"rbo"`
	// Metrics carries whatever the core engine reported.
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Comparison is one (ground truth, prediction) pair to score.
type Comparison struct {
	// Name labels the predictor being compared, e.g. "First Snapshot MDP".
	Name      string
	Index     int
	Truth     graph.RankedList
	Predicted graph.RankedList
}

// ComparisonResult holds the scores of one comparison.
type ComparisonResult struct {
	Comparison Comparison
	Scores     Scores
	Error      string
}

// SuiteResult contains the scores of every comparison plus their aggregate.
type SuiteResult struct {
	Name      string
	Timestamp time.Time
	Duration  time.Duration
	Results   []ComparisonResult
	Aggregate Aggregate
	Failed    int
}

// Aggregate summarizes a set of scores.
type Aggregate struct {
	Count        int     `json:"count"`
	RecallMean   float64 `json:"recall_mean"`
	RecallStdDev float64 `json:"recall_stddev"`
	RBOMean      float64 `json:"rbo_mean"`
	RBOStdDev    float64 `json:"rbo_stddev"`
}

// Harness collects comparisons and scores them in insertion order.
type Harness struct {
	name        string
	comparisons []Comparison
	mu          sync.RWMutex
}

// NewHarness creates an empty harness.
func NewHarness(name string) *Harness {
	return &Harness{name: name}
}

// Add appends a comparison.
func (h *Harness) Add(c Comparison) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.comparisons = append(h.comparisons, c)
}

// Len returns the number of queued comparisons.
func (h *Harness) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.comparisons)
}

// Run scores every comparison. A comparison that fails (empty ground truth)
// is kept with its error and excluded from the aggregate.
func (h *Harness) Run() (*SuiteResult, error) {
	h.mu.RLock()
	cases := make([]Comparison, len(h.comparisons))
	copy(cases, h.comparisons)
	h.mu.RUnlock()

	if len(cases) == 0 {
		return nil, fmt.Errorf("eval: no comparisons defined")
	}

	start := time.Now()
	res := &SuiteResult{Name: h.name, Timestamp: start, Results: make([]ComparisonResult, 0, len(cases))}
	var ok []Scores
	for _, c := range cases {
		s, err := Evaluate(c.Truth, c.Predicted)
		cr := ComparisonResult{Comparison: c, Scores: s}
		if err != nil {
			cr.Error = err.Error()
			res.Failed++
		} else {
			ok = append(ok, s)
		}
		res.Results = append(res.Results, cr)
	}
	res.Aggregate = aggregateScores(ok)
	res.Duration = time.Since(start)
	return res, nil
}

func aggregateScores(scores []Scores) Aggregate {
	if len(scores) == 0 {
		return Aggregate{}
	}
	recall := make([]float64, len(scores))
	rbo := make([]float64, len(scores))
	for i, s := range scores {
		recall[i] = s.Recall
		rbo[i] = s.RBO
	}
	agg := Aggregate{Count: len(scores)}
	agg.RecallMean, agg.RecallStdDev = meanStdDev(recall)
	agg.RBOMean, agg.RBOStdDev = meanStdDev(rbo)
	return agg
}

// meanStdDev returns the mean and the sample standard deviation; a single
// value has zero spread.
func meanStdDev(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

// SnapshotAggregate is the per-snapshot summary over trials.
type SnapshotAggregate struct {
	Algo     string
	C        int
	Snapshot int
	Aggregate
}

// AggregateBySnapshot groups results by (algo, c, snapshot) and summarizes
// each group, ordered by algo, c and then snapshot.
func AggregateBySnapshot(results []TrialResult) []SnapshotAggregate {
	type key struct {
		algo     string
		c        int
		snapshot int
	}
	groups := make(map[key][]Scores)
	for _, r := range results {
		k := key{r.Algo, r.C, r.Snapshot}
		groups[k] = append(groups[k], Scores{Recall: r.Recall, RBO: r.RBO})
	}

	out := make([]SnapshotAggregate, 0, len(groups))
	for k, scores := range groups {
		out = append(out, SnapshotAggregate{
			Algo:      k.algo,
			C:         k.c,
			Snapshot:  k.snapshot,
			Aggregate: aggregateScores(scores),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Algo != out[j].Algo {
			return out[i].Algo < out[j].Algo
		}
		if out[i].C != out[j].C {
			return out[i].C < out[j].C
		}
		return out[i].Snapshot < out[j].Snapshot
	})
	return out
}
