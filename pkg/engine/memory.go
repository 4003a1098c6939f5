package engine

import (
	"context"
	"fmt"

	"github.com/orneryd/mdpredict/pkg/graph"
	"github.com/orneryd/mdpredict/pkg/summary"
)

// MemoryEngine is an in-process stand-in for the external binaries.
//
// RunCore counts oracle nodes exactly and spends what is left of the memory
// budget on a Sketch over the remaining nodes. The predicted list keeps as
// many nodes as the oracle has (or the sketch's top when the oracle is
// empty). Identical requests give identical results.
type MemoryEngine struct{}

// NewMemoryEngine returns a MemoryEngine.
func NewMemoryEngine() *MemoryEngine { return &MemoryEngine{} }

func loadStream(snap *graph.Snapshot) (*graph.Snapshot, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrInvalidRequest)
	}
	if snap.Stream != nil || snap.Path == "" {
		return snap, nil
	}
	return graph.ReadSnapshotFile(snap.Path, snap.Index)
}

// ExactCount returns the distinct edge count.
func (m *MemoryEngine) ExactCount(_ context.Context, snap *graph.Snapshot) (int, error) {
	s, err := loadStream(snap)
	if err != nil {
		return 0, err
	}
	return s.EdgeCount(), nil
}

// Summarize runs a Sketch over the stream.
func (m *MemoryEngine) Summarize(ctx context.Context, snap *graph.Snapshot, capacity int, seed int64) (graph.RankedList, error) {
	s, err := loadStream(snap)
	if err != nil {
		return nil, err
	}
	return summary.InProcess{}.Summarize(ctx, s, capacity, seed)
}

// RunCore simulates the core algorithm.
func (m *MemoryEngine) RunCore(ctx context.Context, req CoreRequest) (CoreResult, error) {
	if err := req.Validate(); err != nil {
		return CoreResult{}, err
	}
	s, err := loadStream(req.Snapshot)
	if err != nil {
		return CoreResult{}, err
	}

	oracle := req.Oracle.IDSet()
	exact := make(map[graph.NodeID]int64, len(oracle))
	remaining := req.MemoryBudget - len(oracle)
	if remaining < 0 {
		remaining = 0
	}
	sk := summary.NewSketch(remaining, req.Seed)

	hits := 0
	for i, e := range s.DistinctEdges() {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return CoreResult{}, err
			}
		}
		for _, n := range e.Endpoints() {
			if _, ok := oracle[n]; ok {
				if exact[n] == 0 {
					hits++
				}
				exact[n]++
				continue
			}
			sk.Update(n)
		}
	}

	records := make([]graph.DegreeRecord, 0, len(exact)+sk.Len())
	for _, r := range req.Oracle {
		if d, ok := exact[r.Node]; ok {
			records = append(records, graph.DegreeRecord{Node: r.Node, Degree: d})
		}
	}
	records = append(records, sk.Top(sk.Len())...)

	size := len(req.Oracle)
	if size == 0 {
		size = sk.Len()
	}
	res := CoreResult{
		TopNodes: graph.NewRankedList(records).Top(size),
		Metrics: map[string]float64{
			"memory_budget":  float64(req.MemoryBudget),
			"oracle_size":    float64(len(req.Oracle)),
			"oracle_hits":    float64(hits),
			"sketch_tracked": float64(sk.Len()),
		},
	}

	if req.UpdateSize > 0 {
		// Same distinct-edge scale as the exact counts above.
		fresh, err := summary.InProcess{}.Summarize(ctx, s.Distinct(), req.UpdateCapacity, req.Seed)
		if err != nil {
			return CoreResult{}, err
		}
		res.Fresh = fresh.Top(req.UpdateSize)
	}
	return res, nil
}
