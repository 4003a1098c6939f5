// Package oracle owns the predictor each trial runs with and its evolution
// across a snapshot sequence.
//
// The drift policy is fixed for a run:
//
//   - fixed: the initial predictor truncated to the requested size, always.
//   - previous-snapshot: the ground-truth predictor of the previous snapshot;
//     snapshot 0 falls back to the initial predictor.
//   - uss-updated: a per-seed artifact, seeded from the initial predictor and
//     rewritten after each snapshot from that seed's own summary refresh.
//
// Only uss-updated keeps state. Its artifact path always contains the
// experiment name and the seed, so trials never read each other's updates.
package oracle

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/artifact"
	"github.com/orneryd/mdpredict/pkg/graph"
)

// Drift selects how the predictor follows the graph.
type Drift string

const (
	Fixed            Drift = "fixed"
	PreviousSnapshot Drift = "previous-snapshot"
	USSUpdated       Drift = "uss-updated"
)

var (
	ErrUnknownDrift = errors.New("oracle: unknown drift policy")
	// ErrMissingUpdateArtifact is recoverable: the update is skipped and
	// the current predictor carries forward.
	ErrMissingUpdateArtifact = errors.New("oracle: missing update artifact")
	ErrNoGroundTruth         = errors.New("oracle: no ground truth for snapshot")
)

// ParseDrift converts a drift tag.
func ParseDrift(s string) (Drift, error) {
	d := Drift(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	switch d {
	case Fixed, PreviousSnapshot, USSUpdated:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDrift, s)
}

// ReadsInitial reports whether the predictor of snapshot is cut from the
// initial predictor: always under fixed drift, and at snapshot 0 otherwise.
func (d Drift) ReadsInitial(snapshot int) bool {
	return d == Fixed || snapshot == 0
}

// Oracle is the predictor handed to one trial.
type Oracle struct {
	List       graph.RankedList
	Provenance Drift
	// Path is the backing artifact for uss-updated, empty otherwise.
	Path string
}

// Size returns the number of nodes in the predictor.
func (o Oracle) Size() int { return len(o.List) }

// Store hands out predictors per (seed, snapshot).
type Store struct {
	drift   Drift
	layout  artifact.Layout
	initial graph.RankedList
	truth   []graph.RankedList
	logger  *zap.Logger
}

// NewStore returns a Store. truth is indexed by snapshot and is only read
// under previous-snapshot drift.
func NewStore(drift Drift, layout artifact.Layout, initial graph.RankedList, truth []graph.RankedList, logger *zap.Logger) (*Store, error) {
	if _, err := ParseDrift(string(drift)); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		drift:   drift,
		layout:  layout,
		initial: initial,
		truth:   truth,
		logger:  logger.Named("oracle"),
	}, nil
}

// Drift returns the policy of the store.
func (s *Store) Drift() Drift { return s.drift }

// Current returns the predictor trial seed uses at snapshot. size applies to
// fixed drift and to the first use of a uss-updated lineage.
func (s *Store) Current(seed int64, snapshot, size int) (Oracle, error) {
	switch s.drift {
	case Fixed:
		return Oracle{List: s.initial.Top(size), Provenance: Fixed}, nil

	case PreviousSnapshot:
		if snapshot == 0 {
			return Oracle{List: s.initial.Top(size), Provenance: PreviousSnapshot}, nil
		}
		if snapshot-1 >= len(s.truth) {
			return Oracle{}, fmt.Errorf("%w: %d", ErrNoGroundTruth, snapshot-1)
		}
		return Oracle{List: s.truth[snapshot-1].Clone(), Provenance: PreviousSnapshot}, nil

	case USSUpdated:
		path := s.layout.OraclePath(seed)
		ok, err := artifact.Exists(path)
		if err != nil {
			return Oracle{}, err
		}
		if !ok {
			if err := artifact.WriteRanked(path, s.initial.Top(size), graph.FormatDegreeText); err != nil {
				return Oracle{}, fmt.Errorf("oracle: seed lineage %d: %w", seed, err)
			}
			s.logger.Debug("seeded oracle lineage", zap.Int64("seed", seed), zap.Int("size", size))
		}
		list, err := graph.ReadRankedFile(path, graph.FormatDegreeText)
		if err != nil {
			return Oracle{}, err
		}
		return Oracle{List: list, Provenance: USSUpdated, Path: path}, nil
	}
	return Oracle{}, fmt.Errorf("%w: %q", ErrUnknownDrift, s.drift)
}

// MaybeUpdate rewrites the lineage of seed from fresh. It is a no-op unless
// drift is uss-updated and nextNBar > 0. A nil fresh list in that case
// returns ErrMissingUpdateArtifact. The rewrite replaces the whole
// predictor, so applying the same fresh list twice gives the same result.
func (s *Store) MaybeUpdate(seed int64, fresh graph.RankedList, nextNBar int) (bool, error) {
	if s.drift != USSUpdated || nextNBar <= 0 {
		return false, nil
	}
	if fresh == nil {
		return false, fmt.Errorf("%w: seed %d", ErrMissingUpdateArtifact, seed)
	}
	merged := graph.Merge(fresh)
	if err := artifact.WriteRanked(s.layout.OraclePath(seed), merged, graph.FormatDegreeText); err != nil {
		return false, err
	}
	s.logger.Debug("updated oracle lineage", zap.Int64("seed", seed), zap.Int("size", len(merged)))
	return true, nil
}
