package nbar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/mdpredict/pkg/graph"
)

func records(pairs ...int64) []graph.DegreeRecord {
	out := make([]graph.DegreeRecord, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, graph.DegreeRecord{Node: graph.NodeID(pairs[i]), Degree: pairs[i+1]})
	}
	return out
}

func TestComputeNBar(t *testing.T) {
	degrees := records(1, 10, 2, 8, 3, 8, 4, 3)

	t.Run("scenario_a_too_few_edges", func(t *testing.T) {
		n, err := ComputeNBar(degrees, 5)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("no_edges", func(t *testing.T) {
		n, err := ComputeNBar(degrees, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("one_pair", func(t *testing.T) {
		// Pairs by score: (1,2)=8 (1,3)=8 (2,3)=8 (1,4)=3 (2,4)=3 (3,4)=3.
		n, err := ComputeNBar(degrees, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestComputeNBarCoverage(t *testing.T) {
	degrees := records(1, 10, 2, 8, 3, 8, 4, 3)
	cases := []struct {
		edges int
		want  int
	}{
		{edges: 10, want: 2},  // (1,2)
		{edges: 20, want: 3},  // (1,2) (1,3)
		{edges: 30, want: 3},  // + (2,3)
		{edges: 40, want: 4},  // + (1,4)
		{edges: 600, want: 4}, // all pairs
	}
	for _, tc := range cases {
		n, err := ComputeNBar(degrees, tc.edges)
		require.NoError(t, err)
		assert.Equal(t, tc.want, n, "edges=%d", tc.edges)
	}
}

func TestComputeNBarDeterministic(t *testing.T) {
	degrees := records(5, 1, 6, 1, 7, 1, 8, 1, 9, 1)
	first, err := ComputeNBar(degrees, 20)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ComputeNBar(degrees, 20)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// All scores tie, so the first two pairs (5,6) (5,7) decide.
	assert.Equal(t, 3, first)
}

func TestComputeNBarDuplicateNode(t *testing.T) {
	// Node 1 is re-listed with degree 1; it keeps its first position.
	degrees := records(1, 10, 2, 8, 3, 8, 1, 1)
	n, err := ComputeNBar(degrees, 10)
	require.NoError(t, err)
	// Scores: (1,2)=1 (1,3)=1 (2,3)=8 -> top pair is (2,3).
	assert.Equal(t, 2, n)
}

func TestComputeNBarLimit(t *testing.T) {
	s := NewSizer(0, nil)
	s.MaxPairs = 2
	_, err := s.Compute(records(1, 1, 2, 1, 3, 1), 100)
	assert.ErrorIs(t, err, ErrTooManyPairs)
}

func TestComputeForSnapshot(t *testing.T) {
	s := NewSizer(0.5, nil)
	edges := graph.NewEdgeSet([]graph.Edge{{U: 1, V: 2}, {U: 2, V: 1}, {U: 2, V: 3}})
	n, err := s.ComputeForSnapshot(records(1, 1, 2, 2, 3, 1), edges)
	require.NoError(t, err)
	// 2 distinct edges -> top=1 -> pair (1,2).
	assert.Equal(t, 2, n)
}

func TestValuesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nbar", "values.txt")
	require.NoError(t, WriteValues(path, []int{3, 0, 12}))

	got, err := ReadValues(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 12}, got)

	_, err = parseValues(strings.NewReader("1\n\nx\n"), "bad")
	assert.ErrorIs(t, err, graph.ErrMalformedLine)
}

func TestProcessFolders(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	degrees := filepath.Join(root, "degrees")
	require.NoError(t, os.MkdirAll(dataset, 0755))
	require.NoError(t, os.MkdirAll(degrees, 0755))

	var edgeLines strings.Builder
	for i := 0; i < 10; i++ {
		edgeLines.WriteString("1 " + string(rune('2'+i%3)) + " 0\n")
	}
	// Distinct edges: {1,2} {1,3} {1,4}.
	require.NoError(t, os.WriteFile(filepath.Join(dataset, "s0.txt"), []byte(edgeLines.String()), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(degrees, "d0.txt"), []byte("1 3\n2 1\n3 1\n4 1\n"), 0644))

	out := filepath.Join(root, "out", "nbar.txt")
	s := NewSizer(1.0, nil)
	values, err := s.ProcessFolders(dataset, degrees, out)
	require.NoError(t, err)
	// top=3 -> (1,2) (1,3) (1,4) all score 1 -> 4 nodes.
	assert.Equal(t, []int{4}, values)

	got, err := ReadValues(out)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	t.Run("count_mismatch", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(degrees, "d1.txt"), []byte("1 1\n"), 0644))
		_, err := s.ProcessFolders(dataset, degrees, out)
		assert.ErrorIs(t, err, ErrConfigMismatch)
	})
}
