package graph

// Edge is one line of an edge-list snapshot. Timestamp is carried for
// ordering and filtering upstream; structural computations ignore it.
type Edge struct {
	U, V      NodeID
	Timestamp int64
}

// Key returns the unordered pair for this edge.
func (e Edge) Key() EdgeKey {
	if e.U <= e.V {
		return EdgeKey{A: e.U, B: e.V}
	}
	return EdgeKey{A: e.V, B: e.U}
}

// EdgeKey is an unordered node pair with A <= B.
type EdgeKey struct {
	A, B NodeID
}

// EdgeSet is a set of unordered node pairs.
type EdgeSet map[EdgeKey]struct{}

// NewEdgeSet collapses a stream into its distinct unordered pairs.
func NewEdgeSet(stream []Edge) EdgeSet {
	set := make(EdgeSet, len(stream))
	for _, e := range stream {
		set[e.Key()] = struct{}{}
	}
	return set
}

// Len returns the number of distinct pairs.
func (s EdgeSet) Len() int { return len(s) }

// Snapshot is one read-only graph snapshot in a sequence.
type Snapshot struct {
	// Index is the position of the snapshot in its sequence, starting at 0.
	Index int
	// Path is the edge-list file the snapshot was read from, if any.
	Path string
	// Stream holds the edges in file order, duplicates included.
	Stream []Edge
}

// Edges returns the distinct unordered edge set of the snapshot.
func (s *Snapshot) Edges() EdgeSet {
	return NewEdgeSet(s.Stream)
}

// EdgeCount returns m_t, the number of distinct unordered edges.
func (s *Snapshot) EdgeCount() int {
	return s.Edges().Len()
}

// DistinctEdges returns each unordered pair once, in order of first
// appearance in the stream.
func (s *Snapshot) DistinctEdges() []EdgeKey {
	seen := make(EdgeSet, len(s.Stream))
	out := make([]EdgeKey, 0, len(s.Stream))
	for _, e := range s.Stream {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Distinct returns a copy of the snapshot whose stream holds each unordered
// pair once, at its first appearance and with that line's timestamp.
func (s *Snapshot) Distinct() *Snapshot {
	seen := make(EdgeSet, len(s.Stream))
	stream := make([]Edge, 0, len(s.Stream))
	for _, e := range s.Stream {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		stream = append(stream, Edge{U: k.A, V: k.B, Timestamp: e.Timestamp})
	}
	return &Snapshot{Index: s.Index, Path: s.Path, Stream: stream}
}

// Endpoints returns the nodes of the pair; a self-loop yields one node.
func (k EdgeKey) Endpoints() []NodeID {
	if k.A == k.B {
		return []NodeID{k.A}
	}
	return []NodeID{k.A, k.B}
}

// Degrees computes exact node degrees over the distinct edge set, returned
// as a ranked list. Self-loops count once toward their node.
func (s *Snapshot) Degrees() RankedList {
	counts := make(map[NodeID]int64)
	order := make([]NodeID, 0)
	for _, k := range s.DistinctEdges() {
		for _, n := range k.Endpoints() {
			if _, ok := counts[n]; !ok {
				order = append(order, n)
			}
			counts[n]++
		}
	}
	records := make([]DegreeRecord, len(order))
	for i, n := range order {
		records[i] = DegreeRecord{Node: n, Degree: counts[n]}
	}
	return NewRankedList(records)
}
