// Package nbar computes n̄, the number of nodes a min-degree predictor tracks
// for a snapshot.
//
// Every unordered pair of known nodes is scored by the smaller of the two
// degrees. The pairs are ranked descending by that score and the first
// floor(fraction·m) pairs are kept, where m is the observed edge count. n̄ is
// the number of distinct nodes touched by the kept pairs.
//
// The enumeration is quadratic in the number of nodes. Sizer.MaxPairs caps
// it; snapshots beyond the cap fail with ErrTooManyPairs instead of
// exhausting memory.
package nbar

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/graph"
)

// DefaultEdgeFraction is the share of observed edges whose pairs are kept.
const DefaultEdgeFraction = 0.1

// DefaultMaxPairs bounds the pair enumeration (roughly 8k distinct nodes).
const DefaultMaxPairs = 1 << 25

var (
	ErrTooManyPairs   = errors.New("nbar: too many node pairs")
	ErrConfigMismatch = errors.New("nbar: paired input count mismatch")
)

// Sizer computes n̄ values.
type Sizer struct {
	EdgeFraction float64
	MaxPairs     int
	Logger       *zap.Logger
}

// NewSizer returns a Sizer using fraction (DefaultEdgeFraction if <= 0).
func NewSizer(fraction float64, logger *zap.Logger) *Sizer {
	if fraction <= 0 {
		fraction = DefaultEdgeFraction
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sizer{EdgeFraction: fraction, MaxPairs: DefaultMaxPairs, Logger: logger}
}

// ComputeNBar runs the default Sizer.
func ComputeNBar(degrees []graph.DegreeRecord, edgeCount int) (int, error) {
	return NewSizer(DefaultEdgeFraction, nil).Compute(degrees, edgeCount)
}

type scoredPair struct {
	i, j  int32
	score int64
}

// Compute returns n̄ for degrees given in file order. A node listed twice
// takes its last degree but keeps its first position, which fixes the pair
// order used to break ties.
func (s *Sizer) Compute(degrees []graph.DegreeRecord, edgeCount int) (int, error) {
	top := int(s.EdgeFraction * float64(edgeCount))
	if top <= 0 {
		return 0, nil
	}

	nodes := dedupe(degrees)
	n := len(nodes)
	pairs := n * (n - 1) / 2
	if pairs == 0 {
		return 0, nil
	}
	if s.MaxPairs > 0 && pairs > s.MaxPairs {
		return 0, fmt.Errorf("%w: %d nodes give %d pairs (limit %d)", ErrTooManyPairs, n, pairs, s.MaxPairs)
	}

	scored := make([]scoredPair, 0, pairs)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			scored = append(scored, scoredPair{
				i:     int32(i),
				j:     int32(j),
				score: min(nodes[i].Degree, nodes[j].Degree),
			})
		}
	}
	slices.SortStableFunc(scored, func(a, b scoredPair) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	if top > len(scored) {
		top = len(scored)
	}
	covered := make(map[int32]struct{})
	for _, p := range scored[:top] {
		covered[p.i] = struct{}{}
		covered[p.j] = struct{}{}
	}
	return len(covered), nil
}

// ComputeForSnapshot uses the distinct edge count of edges.
func (s *Sizer) ComputeForSnapshot(degrees []graph.DegreeRecord, edges graph.EdgeSet) (int, error) {
	return s.Compute(degrees, edges.Len())
}

func dedupe(records []graph.DegreeRecord) []graph.DegreeRecord {
	index := make(map[graph.NodeID]int, len(records))
	out := make([]graph.DegreeRecord, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.Node]; ok {
			out[i].Degree = r.Degree
			continue
		}
		index[r.Node] = len(out)
		out = append(out, r)
	}
	return out
}
