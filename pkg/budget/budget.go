// Package budget decides, per snapshot, the memory budget handed to the core
// algorithm and the number of nodes the predictor retains.
//
// Three policies exist:
//
//	fixed             budget = floor(f·m)            size = first n̄
//	increased-budget  budget = floor(f·m) + extra    size = first n̄
//	split             budget = floor(f·m) + ⌊extra/2⌋ size = first n̄ + ⌈extra/2⌉
//
// where extra = current n̄ + c·next n̄ − first n̄. extra may be negative and
// is never clamped. Split rounds the two halves differently, so size growth
// plus budget growth always equals extra exactly.
package budget

import (
	"errors"
	"fmt"
	"strings"
)

// Policy selects how additional entries are allocated.
type Policy string

const (
	Fixed           Policy = "fixed"
	IncreasedBudget Policy = "increased-budget"
	Split           Policy = "split"
)

// DefaultEdgeFraction is the share of observed edges used as base budget.
const DefaultEdgeFraction = 0.1

var (
	ErrUnknownPolicy  = errors.New("budget: unknown policy")
	ErrNegativeBudget = errors.New("budget: negative memory budget")
	ErrNegativeSize   = errors.New("budget: negative oracle size")
)

// ParsePolicy converts a policy tag. Underscores are accepted in place of
// dashes.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	switch p {
	case Fixed, IncreasedBudget, Split:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Inputs carries the per-snapshot quantities the policies consume.
type Inputs struct {
	Current      int
	Next         int
	First        int
	C            int
	TotalEdges   int
	EdgeFraction float64
}

// Decision is the allocation for one snapshot.
type Decision struct {
	Policy       Policy
	BaseBudget   int
	MemoryBudget int
	OracleSize   int
	// Extra is the raw additional-entry count before any split.
	Extra int
}

// Validate reports a negative budget or size. Allocate never clamps, so
// callers decide what to do with a shrinking allocation.
func (d Decision) Validate() error {
	if d.MemoryBudget < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeBudget, d.MemoryBudget)
	}
	if d.OracleSize < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSize, d.OracleSize)
	}
	return nil
}

// Extra returns current + c·next − first.
func (in Inputs) Extra() int {
	return in.Current + in.C*in.Next - in.First
}

// Base returns floor(f·m).
func (in Inputs) Base() int {
	f := in.EdgeFraction
	if f <= 0 {
		f = DefaultEdgeFraction
	}
	return int(f * float64(in.TotalEdges))
}

// Allocate applies p to in.
func Allocate(p Policy, in Inputs) (Decision, error) {
	d := Decision{Policy: p, BaseBudget: in.Base(), Extra: in.Extra()}
	switch p {
	case Fixed:
		d.MemoryBudget = d.BaseBudget
		d.OracleSize = in.First
		d.Extra = 0
	case IncreasedBudget:
		d.MemoryBudget = d.BaseBudget + d.Extra
		d.OracleSize = in.First
	case Split:
		d.MemoryBudget = d.BaseBudget + floorDiv(d.Extra, 2)
		d.OracleSize = in.First + ceilDiv(d.Extra, 2)
	default:
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, p)
	}
	return d, nil
}

// NextNBar returns values[idx+1], or 0 past the last snapshot.
func NextNBar(values []int, idx int) int {
	if idx+1 < len(values) && idx+1 >= 0 {
		return values[idx+1]
	}
	return 0
}

// floorDiv rounds toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	return -floorDiv(-a, b)
}
