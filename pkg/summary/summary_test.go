package summary

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/mdpredict/pkg/graph"
)

func starStream(leaves int, repeats int) []graph.Edge {
	var edges []graph.Edge
	for r := 0; r < repeats; r++ {
		for i := 1; i <= leaves; i++ {
			edges = append(edges, graph.Edge{U: 0, V: graph.NodeID(i)})
		}
	}
	return edges
}

func TestSketchExactWhenCapacitySuffices(t *testing.T) {
	sk := NewSketch(10, 1)
	for _, e := range starStream(3, 2) {
		sk.UpdateEdge(e)
	}
	assert.Equal(t, graph.RankedList{
		{Node: 0, Degree: 6},
		{Node: 1, Degree: 2},
		{Node: 2, Degree: 2},
		{Node: 3, Degree: 2},
	}, sk.Top(10))
	assert.Equal(t, int64(6), sk.Estimate(0))
	assert.Equal(t, int64(0), sk.Estimate(99))
}

func TestSketchSelfLoopCountsOnce(t *testing.T) {
	sk := NewSketch(10, 1)
	sk.UpdateEdge(graph.Edge{U: 5, V: 5})
	sk.UpdateEdge(graph.Edge{U: 5, V: 6})
	assert.Equal(t, int64(2), sk.Estimate(5))
	assert.Equal(t, int64(1), sk.Estimate(6))
}

func TestSketchBoundedState(t *testing.T) {
	sk := NewSketch(5, 7)
	for _, e := range starStream(200, 3) {
		sk.UpdateEdge(e)
	}
	assert.Equal(t, 5, sk.Len())
	assert.Len(t, sk.Top(100), 5)

	var total int64
	for _, r := range sk.Top(5) {
		total += r.Degree
	}
	assert.Equal(t, int64(2*200*3), total, "counts must sum to the number of updates")
}

func TestSketchHeavyHitterSurvives(t *testing.T) {
	sk := NewSketch(4, 42)
	for _, e := range starStream(500, 2) {
		sk.UpdateEdge(e)
	}
	top := sk.Top(1)
	require.Len(t, top, 1)
	assert.Equal(t, graph.NodeID(0), top[0].Node)
}

func TestSketchDeterministic(t *testing.T) {
	run := func(seed int64) graph.RankedList {
		sk := NewSketch(8, seed)
		for _, e := range starStream(100, 2) {
			sk.UpdateEdge(e)
		}
		return sk.Top(8)
	}
	assert.Equal(t, run(4177), run(4177))
}

func TestSketchFrequentNodeNeverEvicted(t *testing.T) {
	// The hub takes part in every update pair, so it always stays above the
	// minimum slot and its count is exact for every seed.
	for seed := int64(0); seed < 50; seed++ {
		sk := NewSketch(3, seed)
		for _, e := range starStream(300, 1) {
			sk.UpdateEdge(e)
		}
		require.Equal(t, int64(300), sk.Estimate(0), "seed %d", seed)
	}
}

func TestSketchZeroCapacity(t *testing.T) {
	sk := NewSketch(0, 1)
	sk.Update(1)
	assert.Equal(t, 0, sk.Len())
	assert.Empty(t, sk.Top(3))
}

type fixedSummarizer struct {
	list graph.RankedList
	err  error
}

func (f fixedSummarizer) Summarize(context.Context, *graph.Snapshot, int, int64) (graph.RankedList, error) {
	return f.list, f.err
}

func TestAdapterRefresh(t *testing.T) {
	ctx := context.Background()
	snap := &graph.Snapshot{Stream: starStream(3, 1)}

	t.Run("in_process_truncates_to_size", func(t *testing.T) {
		list, err := NewAdapter(nil).Refresh(ctx, snap, 10, 2, 4177)
		require.NoError(t, err)
		assert.Equal(t, []graph.NodeID{0, 1}, list.IDs())
	})

	t.Run("zero_size_is_empty", func(t *testing.T) {
		list, err := NewAdapter(nil).Refresh(ctx, snap, 0, 0, 1)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("capacity_below_size", func(t *testing.T) {
		_, err := NewAdapter(nil).Refresh(ctx, snap, 1, 2, 1)
		assert.ErrorIs(t, err, ErrCapacityTooSmall)
	})

	t.Run("rejects_duplicates", func(t *testing.T) {
		a := NewAdapter(fixedSummarizer{list: graph.RankedList{{Node: 1, Degree: 2}, {Node: 1, Degree: 1}}})
		_, err := a.Refresh(ctx, snap, 5, 2, 1)
		assert.ErrorIs(t, err, ErrInvalidOutput)
	})

	t.Run("propagates_source_error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := NewAdapter(fixedSummarizer{err: boom}).Refresh(ctx, snap, 5, 2, 1)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("honours_cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewAdapter(nil).Refresh(cctx, snap, 5, 2, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
