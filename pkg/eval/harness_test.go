package eval

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/mdpredict/pkg/graph"
)

// =============================================================================
// Metric Calculation Tests
// =============================================================================

func ids(v ...int64) []graph.NodeID {
	out := make([]graph.NodeID, len(v))
	for i, x := range v {
		out[i] = graph.NodeID(x)
	}
	return out
}

func ranked(v ...int64) graph.RankedList {
	out := make(graph.RankedList, len(v))
	for i, x := range v {
		out[i] = graph.DegreeRecord{Node: graph.NodeID(x), Degree: int64(len(v) - i)}
	}
	return out
}

func TestRecallAtK(t *testing.T) {
	t.Run("scenario_b", func(t *testing.T) {
		truth := graph.RankedList{{Node: 1, Degree: 50}, {Node: 2, Degree: 40}, {Node: 3, Degree: 30}}
		pred := graph.RankedList{{Node: 1, Degree: 45}, {Node: 3, Degree: 20}, {Node: 4, Degree: 10}}
		r, err := RecallAtK(truth, pred)
		require.NoError(t, err)
		assert.InDelta(t, 0.666667, r, 1e-6)
	})

	t.Run("identical_is_one", func(t *testing.T) {
		x := ranked(5, 6, 7, 8)
		r, err := RecallAtK(x, x)
		require.NoError(t, err)
		assert.Equal(t, 1.0, r)
	})

	t.Run("empty_prediction_is_zero", func(t *testing.T) {
		r, err := RecallAtK(ranked(1, 2), nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, r)
	})

	t.Run("empty_truth_fails", func(t *testing.T) {
		_, err := RecallAtK(nil, ranked(1))
		assert.ErrorIs(t, err, ErrEmptyGroundTruth)
	})
}

func TestRBO(t *testing.T) {
	t.Run("identical_is_one", func(t *testing.T) {
		v, err := RBO(ids(1, 2, 3, 4, 5), ids(1, 2, 3, 4, 5), 1)
		require.NoError(t, err)
		assert.Equal(t, 1.0, v)
	})

	t.Run("disjoint_is_zero", func(t *testing.T) {
		v, err := RBO(ids(1, 2, 3), ids(4, 5, 6), 1)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	})

	t.Run("swap_at_tail", func(t *testing.T) {
		// A = 1, 1/2, 1
		v, err := RBO(ids(1, 2, 3), ids(1, 3, 2), 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.833333, v, 1e-6)
	})

	t.Run("reversed", func(t *testing.T) {
		// A = 0, 0, 1
		v, err := RBO(ids(1, 2, 3), ids(3, 2, 1), 1)
		require.NoError(t, err)
		assert.InDelta(t, 1.0/3.0, v, 1e-12)
	})

	t.Run("uneven_truncates_to_shorter", func(t *testing.T) {
		v, err := RBO(ids(1, 2, 3, 4), ids(1, 2), 1)
		require.NoError(t, err)
		assert.Equal(t, 1.0, v)
	})

	t.Run("empty_lists", func(t *testing.T) {
		v, err := RBO(nil, nil, 1)
		require.NoError(t, err)
		assert.Equal(t, 1.0, v)

		v, err = RBO(ids(1), nil, 1)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	})

	t.Run("geometric_weights", func(t *testing.T) {
		// (1-p)(A1 + p·A2 + p²·A3) with p = 0.5 and A = 1, 1/2, 1.
		v, err := RBO(ids(1, 2, 3), ids(1, 3, 2), 0.5)
		require.NoError(t, err)
		assert.InDelta(t, 0.5*(1+0.25+0.25), v, 1e-12)
	})

	t.Run("invalid_p", func(t *testing.T) {
		_, err := RBO(ids(1), ids(1), 0)
		assert.ErrorIs(t, err, ErrInvalidP)
		_, err = RBO(ids(1), ids(1), 1.5)
		assert.ErrorIs(t, err, ErrInvalidP)
	})
}

func TestRBOExtrapolated(t *testing.T) {
	t.Run("limit_is_last_agreement", func(t *testing.T) {
		v, err := RBOExtrapolated(ids(1, 2, 3), ids(1, 3, 4), 1)
		require.NoError(t, err)
		// Depth 3 overlap {1,3} -> 2/3.
		assert.InDelta(t, 2.0/3.0, v, 1e-12)
	})

	t.Run("approaches_limit", func(t *testing.T) {
		s, tt := ids(1, 2, 3), ids(1, 3, 4)
		near, err := RBOExtrapolated(s, tt, 0.999999)
		require.NoError(t, err)
		limit, err := RBOExtrapolated(s, tt, 1)
		require.NoError(t, err)
		assert.InDelta(t, limit, near, 1e-4)
	})

	t.Run("identical_is_one", func(t *testing.T) {
		v, err := RBOExtrapolated(ids(4, 5, 6), ids(4, 5, 6), 0.9)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, v, 1e-12)
	})

	t.Run("disjoint_is_zero", func(t *testing.T) {
		v, err := RBOExtrapolated(ids(1, 2), ids(3, 4), 0.9)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	})
}

func TestEvaluate(t *testing.T) {
	s, err := Evaluate(ranked(1, 2, 3), ranked(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, Scores{Recall: 1, RBO: 1}, s)

	_, err = Evaluate(nil, ranked(1))
	assert.ErrorIs(t, err, ErrEmptyGroundTruth)
}

// =============================================================================
// Harness and Aggregation Tests
// =============================================================================

func TestHarness(t *testing.T) {
	h := NewHarness("similarity")
	_, err := h.Run()
	assert.Error(t, err, "empty harness")

	h.Add(Comparison{Name: "First Snapshot MDP", Index: 0, Truth: ranked(1, 2), Predicted: ranked(1, 2)})
	h.Add(Comparison{Name: "First Snapshot MDP", Index: 1, Truth: ranked(1, 2), Predicted: ranked(3, 4)})
	h.Add(Comparison{Name: "First Snapshot MDP", Index: 2, Truth: nil, Predicted: ranked(3)})
	assert.Equal(t, 3, h.Len())

	res, err := h.Run()
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.Equal(t, 1, res.Failed)
	assert.NotEmpty(t, res.Results[2].Error)

	assert.Equal(t, 2, res.Aggregate.Count)
	assert.InDelta(t, 0.5, res.Aggregate.RecallMean, 1e-12)
	assert.InDelta(t, 0.707107, res.Aggregate.RecallStdDev, 1e-6)
}

func TestAggregateBySnapshot(t *testing.T) {
	results := []TrialResult{
		{Algo: "MDP", C: 2, Snapshot: 1, Seed: 4177, Recall: 0.5, RBO: 0.4},
		{Algo: "MDP", C: 2, Snapshot: 0, Seed: 4177, Recall: 1.0, RBO: 1.0},
		{Algo: "MDP", C: 2, Snapshot: 1, Seed: 4178, Recall: 0.7, RBO: 0.6},
	}
	aggs := AggregateBySnapshot(results)
	require.Len(t, aggs, 2)

	assert.Equal(t, 0, aggs[0].Snapshot)
	assert.Equal(t, 1, aggs[0].Count)
	assert.Equal(t, 0.0, aggs[0].RecallStdDev)

	assert.Equal(t, 1, aggs[1].Snapshot)
	assert.InDelta(t, 0.6, aggs[1].RecallMean, 1e-12)
	assert.InDelta(t, 0.5, aggs[1].RBOMean, 1e-12)
}

// =============================================================================
// Reporter Tests
// =============================================================================

func TestReporterFiles(t *testing.T) {
	dir := t.TempDir()
	rep := NewReporter(&bytes.Buffer{})
	results := []TrialResult{
		{Algo: "MDUpdated", C: 3, Snapshot: 0, Seed: 4177, Recall: 2.0 / 3.0, RBO: 0.5},
		{Algo: "MDUpdated", C: 3, Snapshot: 1, Seed: 4177, Recall: 1, RBO: 1, Metrics: map[string]float64{"oracle_hits": 4}},
		{Algo: "MDUpdated", C: 3, Snapshot: 0, Seed: 4178, Recall: 0, RBO: 0},
	}

	t.Run("summary_csv", func(t *testing.T) {
		path := filepath.Join(dir, "summary.csv")
		require.NoError(t, rep.WriteSummaryCSV(path, results))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t,
			"Snapshot,Algo,c,RBO,Recall\n"+
				"1,MDUpdated,3,0.500000,0.666667\n"+
				"2,MDUpdated,3,1.000000,1.000000\n"+
				"1,MDUpdated,3,0.000000,0.000000\n",
			string(data))
	})

	t.Run("metric_log", func(t *testing.T) {
		path := filepath.Join(dir, "seed4177", "recall.txt")
		require.NoError(t, rep.WriteMetricLog(path, MetricPoints(results, 4177, MetricRecall)))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "0 0.666667\n1 1.000000\n", string(data))

		hits := MetricPoints(results, 4177, "oracle_hits")
		assert.Equal(t, []MetricPoint{{Index: 0, Value: 0}, {Index: 1, Value: 4}}, hits)
	})

	t.Run("aggregate_csv", func(t *testing.T) {
		path := filepath.Join(dir, "aggregate.csv")
		require.NoError(t, rep.WriteAggregateCSV(path, AggregateBySnapshot(results)))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Algo,c,Snapshot,Trials,RecallMean,RecallStdDev,RBOMean,RBOStdDev\n")
		assert.Contains(t, string(data), "MDUpdated,3,2,1,1.000000,0.000000,1.000000,0.000000\n")
	})
}

func TestReporterSimilarity(t *testing.T) {
	h := NewHarness("previous")
	h.Add(Comparison{Name: "Previous Snapshot MDP", Index: 1, Truth: ranked(1, 2, 3), Predicted: ranked(1, 3, 2)})
	res, err := h.Run()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sim.csv")
	rep := NewReporter(&bytes.Buffer{})
	require.NoError(t, rep.WriteSimilarityCSV(path, res))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Algo,RBO,Recall\nPrevious Snapshot MDP,0.833333,1.000000\n", string(data))

	assert.Equal(t, []MetricPoint{{Index: 1, Value: 1}}, SuitePoints(res, MetricRecall))
}

func TestReporterConsole(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReporter(&buf)
	results := []TrialResult{{Algo: "USS", C: 1, Snapshot: 0, Recall: 0.5, RBO: 0.25}}

	rep.PrintSummary("exp", AggregateBySnapshot(results))
	assert.Contains(t, buf.String(), "Experiment: exp")

	buf.Reset()
	rep.PrintCompact("exp", results)
	assert.Equal(t, "[exp] 1 trials | Recall=0.5000 RBO=0.2500\n", buf.String())

	buf.Reset()
	require.NoError(t, rep.PrintJSON(results[0]))
	assert.Contains(t, buf.String(), `"algo": "USS"`)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[█████░░░░░]", progressBar(0.5, 10))
	assert.Equal(t, "[░░░░░░░░░░]", progressBar(-1, 10))
	assert.Equal(t, "[██████████]", progressBar(2, 10))
}
