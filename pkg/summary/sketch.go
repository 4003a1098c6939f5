// Package summary provides a bounded-memory degree summary of an edge
// stream and the adapter the runner uses to refresh predictors from it.
//
// Sketch implements Unbiased Space Saving. It tracks at most k nodes. A node
// already tracked has its count incremented. An unseen node fills a free slot
// if there is one; otherwise the current minimum slot is incremented to
// min+1 and, with probability 1/(min+1), relabelled to the unseen node. The
// sum of counts always equals the number of updates, and each reported count
// is an unbiased estimate of the node's true occurrence count.
//
// State is O(k): a map from node to count plus a B-tree ordered by
// (count, node) so the minimum is found in O(log k).
package summary

import (
	"math/rand/v2"

	"github.com/google/btree"

	"github.com/orneryd/mdpredict/pkg/graph"
)

const btreeDegree = 32

type slot struct {
	count int64
	node  graph.NodeID
}

// lessSlot orders by count ascending, then node descending, so that a
// descending walk lists equal counts by increasing node id.
func lessSlot(a, b slot) bool {
	if a.count != b.count {
		return a.count < b.count
	}
	return a.node > b.node
}

// Sketch is an Unbiased Space Saving summary. It is not safe for concurrent
// use.
type Sketch struct {
	capacity int
	counts   map[graph.NodeID]int64
	order    *btree.BTreeG[slot]
	rng      *rand.Rand
}

// NewSketch returns an empty sketch tracking at most capacity nodes. The
// seed fully determines replacement decisions.
func NewSketch(capacity int, seed int64) *Sketch {
	if capacity < 0 {
		capacity = 0
	}
	return &Sketch{
		capacity: capacity,
		counts:   make(map[graph.NodeID]int64, capacity),
		order:    btree.NewG[slot](btreeDegree, lessSlot),
		rng:      rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}
}

// Capacity returns k.
func (s *Sketch) Capacity() int { return s.capacity }

// Len returns the number of tracked nodes.
func (s *Sketch) Len() int { return len(s.counts) }

// Update records one occurrence of node.
func (s *Sketch) Update(node graph.NodeID) {
	if s.capacity == 0 {
		return
	}
	if c, ok := s.counts[node]; ok {
		s.order.Delete(slot{count: c, node: node})
		s.set(node, c+1)
		return
	}
	if len(s.counts) < s.capacity {
		s.set(node, 1)
		return
	}

	victim, _ := s.order.Min()
	s.order.Delete(victim)
	next := victim.count + 1
	if s.rng.Float64() < 1.0/float64(next) {
		delete(s.counts, victim.node)
		s.set(node, next)
		return
	}
	s.set(victim.node, next)
}

func (s *Sketch) set(node graph.NodeID, count int64) {
	s.counts[node] = count
	s.order.ReplaceOrInsert(slot{count: count, node: node})
}

// UpdateEdge records both endpoints of e. A self-loop counts once, as in
// Snapshot.Degrees.
func (s *Sketch) UpdateEdge(e graph.Edge) {
	s.Update(e.U)
	if e.V != e.U {
		s.Update(e.V)
	}
}

// Estimate returns the tracked count of node, or 0 if untracked.
func (s *Sketch) Estimate(node graph.NodeID) int64 {
	return s.counts[node]
}

// Top returns up to n tracked nodes, highest count first. Equal counts are
// listed by increasing node id.
func (s *Sketch) Top(n int) graph.RankedList {
	if n > len(s.counts) {
		n = len(s.counts)
	}
	if n <= 0 {
		return graph.RankedList{}
	}
	out := make(graph.RankedList, 0, n)
	s.order.Descend(func(it slot) bool {
		out = append(out, graph.DegreeRecord{Node: it.node, Degree: it.count})
		return len(out) < n
	})
	return out
}
