// Package eval scores predicted node rankings against ground truth and
// reports the results of an experiment.
//
// Metrics computed:
//   - Recall@k: what fraction of the true top nodes appear in the prediction?
//   - RBO (Rank-Biased Overlap): how much do the two rankings agree, prefix
//     by prefix?
//
// RBO is evaluated at p = 1, where every prefix depth weighs the same and the
// score is the mean agreement over depths 1..k, with k the shorter list
// length. The geometric form (1-p)·Σ p^(d-1)·A_d is singular there and is
// never evaluated at p = 1.
//
// Example usage:
//
//	truth := graph.RankedList{{Node: 1, Degree: 50}, {Node: 2, Degree: 40}, {Node: 3, Degree: 30}}
//	pred := graph.RankedList{{Node: 1, Degree: 45}, {Node: 3, Degree: 20}, {Node: 4, Degree: 10}}
//
//	scores, err := eval.Evaluate(truth, pred)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Recall: %.6f RBO: %.6f\n", scores.Recall, scores.RBO) // Recall: 0.666667
//
// ELI12 (Explain Like I'm 12):
//
// Two friends each list their favourite songs in order. Recall asks how many
// of the first friend's songs made it onto the second list at all. RBO walks
// down both lists together and, at every step, checks how much the two "top
// so far" groups overlap, then averages those checks.
package eval

import (
	"errors"
	"fmt"
	"math"

	"github.com/orneryd/mdpredict/pkg/graph"
)

var (
	// ErrEmptyGroundTruth is a caller contract violation: recall is
	// undefined without true nodes.
	ErrEmptyGroundTruth = errors.New("eval: empty ground truth")
	ErrInvalidP         = errors.New("eval: rbo persistence must be in (0, 1]")
)

// Scores holds both metrics for one comparison.
type Scores struct {
	Recall float64 `json:"recall"`
	RBO    float64 `json:"rbo"`
}

// Evaluate computes Recall@k and RBO at p = 1.
func Evaluate(truth, predicted graph.RankedList) (Scores, error) {
	recall, err := RecallAtK(truth, predicted)
	if err != nil {
		return Scores{}, err
	}
	rbo, err := RBO(truth.IDs(), predicted.IDs(), 1.0)
	if err != nil {
		return Scores{}, err
	}
	return Scores{Recall: recall, RBO: rbo}, nil
}

// RecallAtK returns |ids(truth) ∩ ids(predicted)| / |ids(truth)|.
func RecallAtK(truth, predicted graph.RankedList) (float64, error) {
	want := truth.IDSet()
	if len(want) == 0 {
		return 0, ErrEmptyGroundTruth
	}
	got := predicted.IDSet()
	hits := 0
	for id := range want {
		if _, ok := got[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want)), nil
}

// agreements returns A_d = |S[:d] ∩ T[:d]| / d for d = 1..k, k being the
// shorter length.
func agreements(s, t []graph.NodeID) []float64 {
	k := min(len(s), len(t))
	out := make([]float64, k)
	seenS := make(map[graph.NodeID]struct{}, k)
	seenT := make(map[graph.NodeID]struct{}, k)
	overlap := 0
	for d := 0; d < k; d++ {
		if s[d] == t[d] {
			overlap++
		} else {
			if _, ok := seenT[s[d]]; ok {
				overlap++
			}
			if _, ok := seenS[t[d]]; ok {
				overlap++
			}
		}
		seenS[s[d]] = struct{}{}
		seenT[t[d]] = struct{}{}
		out[d] = float64(overlap) / float64(d+1)
	}
	return out
}

// RBO returns rank-biased overlap of s and t truncated at the shorter
// length. p = 1 averages the agreements; p < 1 weighs depth d by
// (1-p)·p^(d-1). Both empty gives 1, one empty gives 0. The result is
// clamped to [0, 1].
func RBO(s, t []graph.NodeID, p float64) (float64, error) {
	if p <= 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidP, p)
	}
	if len(s) == 0 && len(t) == 0 {
		return 1, nil
	}
	if len(s) == 0 || len(t) == 0 {
		return 0, nil
	}

	a := agreements(s, t)
	var sum float64
	if p == 1 {
		for _, v := range a {
			sum += v
		}
		return clamp(sum / float64(len(a))), nil
	}
	w := 1 - p
	for _, v := range a {
		sum += w * v
		w *= p
	}
	return clamp(sum), nil
}

// RBOExtrapolated returns the extrapolated form
//
//	RBO_ext = A_k·p^k + (1-p)·Σ_{d=1..k} A_d·p^(d-1)
//
// which assumes the agreement seen at depth k continues forever. Its limit
// as p → 1 is A_k, which is returned directly for p = 1.
func RBOExtrapolated(s, t []graph.NodeID, p float64) (float64, error) {
	if p <= 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidP, p)
	}
	if len(s) == 0 && len(t) == 0 {
		return 1, nil
	}
	if len(s) == 0 || len(t) == 0 {
		return 0, nil
	}

	a := agreements(s, t)
	k := len(a)
	if p == 1 {
		return clamp(a[k-1]), nil
	}
	var sum float64
	w := 1 - p
	for _, v := range a {
		sum += w * v
		w *= p
	}
	return clamp(sum + a[k-1]*math.Pow(p, float64(k))), nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
