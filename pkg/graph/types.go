// Package graph holds the value types shared by every mdpredict component:
// node/degree records, ranked lists of them, and snapshot edge sets.
//
// A RankedList is the common currency between the predictor sizer, the
// oracle store, the summary adapter and the evaluator. It is always ordered
// descending by degree, with ties kept in the order the records were first
// seen, and never holds the same node twice.
//
// Example:
//
//	list := graph.NewRankedList([]graph.DegreeRecord{
//		{Node: 3, Degree: 8},
//		{Node: 1, Degree: 10},
//	})
//	fmt.Println(list.IDs()) // [1 3]
package graph

import (
	"errors"
	"fmt"
	"slices"
)

// NodeID identifies a node in a snapshot.
type NodeID int64

// Errors returned by the graph package.
var (
	ErrDuplicateNode = errors.New("graph: duplicate node id")
	ErrMalformedLine = errors.New("graph: malformed line")
	ErrUnknownFormat = errors.New("graph: unknown format")
)

// DegreeRecord is a (node, degree) pair. Degree may be an exact count or an
// estimate produced by a summary engine.
type DegreeRecord struct {
	Node   NodeID
	Degree int64
}

// RankedList is an ordered sequence of DegreeRecord, descending by degree.
type RankedList []DegreeRecord

// NewRankedList sorts records descending by degree. The sort is stable, so
// records with equal degree keep their input order. Later duplicates of a
// node id are dropped; use Merge for last-write-wins semantics.
func NewRankedList(records []DegreeRecord) RankedList {
	seen := make(map[NodeID]struct{}, len(records))
	out := make(RankedList, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Node]; ok {
			continue
		}
		seen[r.Node] = struct{}{}
		out = append(out, r)
	}
	out.sortStable()
	return out
}

// Merge folds records into a map keyed by node id where the last write for
// a node wins, then ranks the result. A node keeps the position of its first
// appearance for tie-breaking, which is how a map serialized in insertion
// order behaves.
func Merge(records []DegreeRecord) RankedList {
	index := make(map[NodeID]int, len(records))
	out := make(RankedList, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.Node]; ok {
			out[i].Degree = r.Degree
			continue
		}
		index[r.Node] = len(out)
		out = append(out, r)
	}
	out.sortStable()
	return out
}

func (l RankedList) sortStable() {
	slices.SortStableFunc(l, func(a, b DegreeRecord) int {
		switch {
		case a.Degree > b.Degree:
			return -1
		case a.Degree < b.Degree:
			return 1
		}
		return 0
	})
}

// Len returns the number of records.
func (l RankedList) Len() int { return len(l) }

// Top returns the first n records. n larger than the list returns the whole
// list; negative n returns an empty list.
func (l RankedList) Top(n int) RankedList {
	if n < 0 {
		n = 0
	}
	if n > len(l) {
		n = len(l)
	}
	out := make(RankedList, n)
	copy(out, l[:n])
	return out
}

// IDs returns node ids in rank order.
func (l RankedList) IDs() []NodeID {
	ids := make([]NodeID, len(l))
	for i, r := range l {
		ids[i] = r.Node
	}
	return ids
}

// IDSet returns the set of node ids in the list.
func (l RankedList) IDSet() map[NodeID]struct{} {
	set := make(map[NodeID]struct{}, len(l))
	for _, r := range l {
		set[r.Node] = struct{}{}
	}
	return set
}

// Validate reports ErrDuplicateNode if a node id appears more than once.
func (l RankedList) Validate() error {
	seen := make(map[NodeID]struct{}, len(l))
	for i, r := range l {
		if _, ok := seen[r.Node]; ok {
			return fmt.Errorf("%w: node %d at rank %d", ErrDuplicateNode, r.Node, i)
		}
		seen[r.Node] = struct{}{}
	}
	return nil
}

// Clone returns an independent copy.
func (l RankedList) Clone() RankedList {
	if l == nil {
		return nil
	}
	return slices.Clone(l)
}
