package summary

import (
	"context"
	"errors"
	"fmt"

	"github.com/orneryd/mdpredict/pkg/graph"
)

var (
	ErrCapacityTooSmall = errors.New("summary: capacity smaller than requested size")
	ErrInvalidOutput    = errors.New("summary: invalid summarizer output")
)

// Summarizer produces a ranked degree summary of a snapshot's edge stream
// using at most capacity tracked nodes.
type Summarizer interface {
	Summarize(ctx context.Context, snap *graph.Snapshot, capacity int, seed int64) (graph.RankedList, error)
}

// InProcess summarizes with a Sketch in the calling goroutine.
type InProcess struct{}

// cancelCheckEvery is how many edges are fed between context checks.
const cancelCheckEvery = 4096

// Summarize feeds both endpoints of every edge in stream order.
func (InProcess) Summarize(ctx context.Context, snap *graph.Snapshot, capacity int, seed int64) (graph.RankedList, error) {
	sk := NewSketch(capacity, seed)
	for i, e := range snap.Stream {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sk.UpdateEdge(e)
	}
	return sk.Top(sk.Len()), nil
}

// Adapter turns a Summarizer into the predictor refresh operation.
type Adapter struct {
	src Summarizer
}

// NewAdapter wraps src. A nil src uses InProcess.
func NewAdapter(src Summarizer) *Adapter {
	if src == nil {
		src = InProcess{}
	}
	return &Adapter{src: src}
}

// Refresh summarizes snap with capacity tracked nodes and returns at most
// size records, ranked descending. capacity must be at least size.
func (a *Adapter) Refresh(ctx context.Context, snap *graph.Snapshot, capacity, size int, seed int64) (graph.RankedList, error) {
	if size <= 0 {
		return graph.RankedList{}, nil
	}
	if capacity < size {
		return nil, fmt.Errorf("%w: capacity %d, size %d", ErrCapacityTooSmall, capacity, size)
	}
	list, err := a.src.Summarize(ctx, snap, capacity, seed)
	if err != nil {
		return nil, err
	}
	if err := list.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if len(list) > capacity {
		return nil, fmt.Errorf("%w: %d records exceed capacity %d", ErrInvalidOutput, len(list), capacity)
	}
	return graph.NewRankedList(list).Top(size), nil
}
