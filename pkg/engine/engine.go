// Package engine is the boundary to the exact-count, summary and core
// algorithms.
//
// Engine has two implementations. ProcessEngine spawns the external binaries
// and talks to them through files (see exchange.go for the format).
// MemoryEngine computes everything in process and is deterministic for a
// given seed; it backs tests and dry runs of the orchestration logic.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/orneryd/mdpredict/pkg/graph"
)

var (
	// ErrExternalEngine marks a failed engine invocation. It is fatal for
	// the trial and is never retried.
	ErrExternalEngine = errors.New("engine: external engine failure")
	ErrExchange       = errors.New("engine: malformed exchange artifact")
	ErrInvalidRequest = errors.New("engine: invalid request")
	ErrUnknownBackend = errors.New("engine: unknown backend")
)

// CoreRequest is one core algorithm invocation.
type CoreRequest struct {
	Snapshot     *graph.Snapshot
	Oracle       graph.RankedList
	MemoryBudget int
	Seed         int64

	// UpdateSize > 0 asks the engine to also produce a fresh summary of
	// UpdateSize records tracked with UpdateCapacity slots.
	UpdateCapacity int
	UpdateSize     int

	// WorkDir is scratch space owned by this invocation.
	WorkDir string
}

// Validate checks the request before any work is started.
func (r CoreRequest) Validate() error {
	if r.Snapshot == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidRequest)
	}
	if r.MemoryBudget < 0 {
		return fmt.Errorf("%w: negative memory budget %d", ErrInvalidRequest, r.MemoryBudget)
	}
	if r.UpdateSize > 0 && r.UpdateCapacity < r.UpdateSize {
		return fmt.Errorf("%w: update capacity %d below size %d", ErrInvalidRequest, r.UpdateCapacity, r.UpdateSize)
	}
	return nil
}

// CoreResult is what the core algorithm reports.
type CoreResult struct {
	TopNodes graph.RankedList
	// Fresh is nil unless an update was requested.
	Fresh   graph.RankedList
	Metrics map[string]float64
}

// Engine is the capability set the runner depends on.
type Engine interface {
	ExactCount(ctx context.Context, snap *graph.Snapshot) (int, error)
	Summarize(ctx context.Context, snap *graph.Snapshot, capacity int, seed int64) (graph.RankedList, error)
	RunCore(ctx context.Context, req CoreRequest) (CoreResult, error)
}

// CommandError describes a failed engine process.
type CommandError struct {
	Path     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("engine: %s %s: exit %d", e.Path, strings.Join(e.Args, " "), e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is makes every CommandError match ErrExternalEngine.
func (e *CommandError) Is(target error) bool { return target == ErrExternalEngine }
