// Package runner drives experiments over a sequence of graph snapshots.
//
// A Runner ties the other packages together: it sizes the memory budget for
// every snapshot, hands each trial its predictor, invokes the engine, keeps
// the predictor lineage up to date and scores the result. Every step leaves
// an artifact behind, so an interrupted experiment can be re-run with the
// same inputs and picks up where it stopped:
//
//   - exact edge counts are cached per snapshot
//   - a trial whose ranked output exists does not call the engine again
//   - the ledger never records the same (snapshot, seed) twice
//
// Example:
//
//	r := runner.New(eng, led, runner.Options{Root: "output", Experiment: cfg.Experiment, Logger: logger})
//	results, err := r.Run(ctx, runner.TrialInputs{
//		Experiment:       "wiki_c2",
//		Snapshots:        snapshots,
//		GroundTruth:      truths,
//		NBar:             nbar,
//		InitialPredictor: "oracles/wiki_s00.txt",
//		C:                2,
//		Trials:           5,
//		Policy:           budget.Split,
//		Drift:            oracle.Fixed,
//	})
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/artifact"
	"github.com/orneryd/mdpredict/pkg/budget"
	"github.com/orneryd/mdpredict/pkg/config"
	"github.com/orneryd/mdpredict/pkg/engine"
	"github.com/orneryd/mdpredict/pkg/eval"
	"github.com/orneryd/mdpredict/pkg/graph"
	"github.com/orneryd/mdpredict/pkg/ledger"
	"github.com/orneryd/mdpredict/pkg/oracle"
)

var (
	// ErrConfigMismatch reports input lists of different lengths.
	ErrConfigMismatch = errors.New("runner: configuration mismatch")
	ErrInvalidInputs  = errors.New("runner: invalid inputs")
)

// Options configures a Runner.
type Options struct {
	// Root is the output directory; each experiment gets Root/<name>.
	Root       string
	Experiment config.ExperimentConfig
	// Reporter receives the console summary. Nil prints to stdout.
	Reporter *eval.Reporter
	Logger   *zap.Logger
}

// Runner executes experiments. It is not safe for concurrent use; run one
// experiment per Runner at a time.
type Runner struct {
	engine   engine.Engine
	ledger   *ledger.Ledger
	root     string
	exp      config.ExperimentConfig
	reporter *eval.Reporter
	logger   *zap.Logger
}

// New returns a Runner using eng for all counting and led for results.
func New(eng engine.Engine, led *ledger.Ledger, opts Options) *Runner {
	if opts.Reporter == nil {
		opts.Reporter = eval.NewReporter(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Experiment.EdgeFraction <= 0 {
		opts.Experiment.EdgeFraction = budget.DefaultEdgeFraction
	}
	return &Runner{
		engine:   eng,
		ledger:   led,
		root:     opts.Root,
		exp:      opts.Experiment,
		reporter: opts.Reporter,
		logger:   opts.Logger.Named("runner"),
	}
}

// Layout returns the artifact layout of experiment.
func (r *Runner) Layout(experiment string) artifact.Layout {
	return artifact.NewLayout(r.root, experiment)
}

// Seed returns the seed of trial t.
func (r *Runner) Seed(t int) int64 {
	return r.exp.SeedBase + int64(t)
}

// TrialInputs describes one predictor experiment.
type TrialInputs struct {
	Experiment string
	// Algo labels the rows of the summary CSV. Empty derives a label from
	// Policy and Drift.
	Algo string
	// Snapshots are edge-list files in sequence order.
	Snapshots []string
	// GroundTruth holds the true top nodes of each snapshot.
	GroundTruth []string
	TruthFormat graph.Format
	NBar        []int
	// InitialPredictor is the predictor built from the first snapshot.
	InitialPredictor string
	InitialFormat    graph.Format
	C                int
	Trials           int
	Policy           budget.Policy
	Drift            oracle.Drift
}

// Validate checks the inputs before any artifact is touched.
func (in TrialInputs) Validate() error {
	if in.Experiment == "" {
		return fmt.Errorf("%w: experiment name is empty", ErrInvalidInputs)
	}
	if len(in.Snapshots) == 0 {
		return fmt.Errorf("%w: no snapshots", ErrInvalidInputs)
	}
	if len(in.GroundTruth) != len(in.Snapshots) || len(in.NBar) != len(in.Snapshots) {
		return fmt.Errorf("%w: %d snapshots, %d ground-truth files, %d n̄ values",
			ErrConfigMismatch, len(in.Snapshots), len(in.GroundTruth), len(in.NBar))
	}
	if in.Trials <= 0 {
		return fmt.Errorf("%w: trials must be positive, got %d", ErrInvalidInputs, in.Trials)
	}
	if in.C < 0 {
		return fmt.Errorf("%w: negative multiplier %d", ErrInvalidInputs, in.C)
	}
	if _, err := budget.ParsePolicy(string(in.Policy)); err != nil {
		return err
	}
	if _, err := oracle.ParseDrift(string(in.Drift)); err != nil {
		return err
	}
	return nil
}

func (in TrialInputs) label() string {
	if in.Algo != "" {
		return in.Algo
	}
	return fmt.Sprintf("MDP-%s-%s", in.Policy, in.Drift)
}

// fingerprint identifies everything that changes the meaning of a recorded
// row. The trial count is left out so a run can be extended with more seeds.
func (in TrialInputs) fingerprint(exp config.ExperimentConfig) []byte {
	parts := []string{
		"trial",
		string(in.Policy),
		string(in.Drift),
		strconv.Itoa(in.C),
		strconv.FormatInt(exp.SeedBase, 10),
		strconv.FormatFloat(exp.EdgeFraction, 'g', -1, 64),
		in.InitialPredictor,
	}
	for i := range in.Snapshots {
		parts = append(parts, in.Snapshots[i], in.GroundTruth[i], strconv.Itoa(in.NBar[i]))
	}
	return ledger.Fingerprint(parts...)
}

// snapshotPlan is everything the trials of one snapshot share.
type snapshotPlan struct {
	snap       *graph.Snapshot
	truth      graph.RankedList
	totalEdges int
	decision   budget.Decision
	next       int
}

// Run executes the experiment and returns the results of this invocation
// in (snapshot, seed) order. Exports are rebuilt from the ledger at the end.
func (r *Runner) Run(ctx context.Context, in TrialInputs) ([]eval.TrialResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	layout := r.Layout(in.Experiment)

	truth, err := readRankedFiles(in.GroundTruth, in.TruthFormat)
	if err != nil {
		return nil, err
	}
	initial, err := graph.ReadRankedFile(in.InitialPredictor, in.InitialFormat)
	if err != nil {
		return nil, fmt.Errorf("runner: initial predictor: %w", err)
	}
	if err := r.ledger.CheckFingerprint(in.Experiment, in.fingerprint(r.exp)); err != nil {
		return nil, err
	}
	store, err := oracle.NewStore(in.Drift, layout, initial, truth, r.logger)
	if err != nil {
		return nil, err
	}

	first := in.NBar[0]
	var results []eval.TrialResult
	for i, path := range in.Snapshots {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		plan := snapshotPlan{snap: &graph.Snapshot{Index: i, Path: path}, truth: truth[i]}

		plan.totalEdges, err = r.exactCount(ctx, layout, plan.snap)
		if err != nil {
			return results, err
		}
		plan.next = budget.NextNBar(in.NBar, i)
		plan.decision, err = budget.Allocate(in.Policy, budget.Inputs{
			Current:      in.NBar[i],
			Next:         plan.next,
			First:        first,
			C:            in.C,
			TotalEdges:   plan.totalEdges,
			EdgeFraction: r.exp.EdgeFraction,
		})
		if err != nil {
			return results, err
		}
		if err := plan.decision.Validate(); err != nil {
			return results, fmt.Errorf("runner: snapshot %d: %w", i, err)
		}

		if in.Drift.ReadsInitial(i) && plan.decision.OracleSize > initial.Len() {
			r.logger.Warn("initial predictor shorter than the planned oracle size; predictor capped",
				zap.String("experiment", in.Experiment),
				zap.Int("snapshot", i),
				zap.Int("planned", plan.decision.OracleSize),
				zap.Int("available", initial.Len()),
				zap.String("initial", in.InitialPredictor))
		}

		r.logger.Info("snapshot planned",
			zap.String("experiment", in.Experiment),
			zap.Int("snapshot", i),
			zap.Int("total_edges", plan.totalEdges),
			zap.Int("memory_budget", plan.decision.MemoryBudget),
			zap.Int("oracle_size", plan.decision.OracleSize),
			zap.Int("next_nbar", plan.next))

		for t := 0; t < in.Trials; t++ {
			res, err := r.runTrial(ctx, layout, store, in, plan, r.Seed(t))
			if err != nil {
				return results, err
			}
			results = append(results, res)
		}
	}

	if err := r.Export(in.Experiment); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) runTrial(ctx context.Context, layout artifact.Layout, store *oracle.Store, in TrialInputs, plan snapshotPlan, seed int64) (eval.TrialResult, error) {
	idx := plan.snap.Index
	log := r.logger.With(zap.Int("snapshot", idx), zap.Int64("seed", seed))

	o, err := store.Current(seed, idx, plan.decision.OracleSize)
	if err != nil {
		return eval.TrialResult{}, err
	}

	topPath := layout.TopNodesPath(idx, seed)
	freshPath := layout.FreshPath(idx, seed)
	done, err := artifact.Exists(topPath)
	if err != nil {
		return eval.TrialResult{}, err
	}

	var (
		top, fresh graph.RankedList
		metrics    map[string]float64
	)
	if done {
		log.Debug("trial output exists; engine skipped")
		if top, err = graph.ReadRankedFile(topPath, graph.FormatRankedCSV); err != nil {
			return eval.TrialResult{}, err
		}
		if fresh, err = readOptionalRanked(freshPath); err != nil {
			return eval.TrialResult{}, err
		}
	} else {
		req := engine.CoreRequest{
			Snapshot:     plan.snap,
			Oracle:       o.List,
			MemoryBudget: plan.decision.MemoryBudget,
			Seed:         seed,
			WorkDir:      layout.WorkDir(idx, seed),
		}
		if store.Drift() == oracle.USSUpdated && plan.next > 0 {
			req.UpdateCapacity = in.C * plan.next
			req.UpdateSize = plan.next
		}
		out, err := r.engine.RunCore(ctx, req)
		if err != nil {
			return eval.TrialResult{}, fmt.Errorf("runner: snapshot %d seed %d: %w", idx, seed, err)
		}
		top, fresh, metrics = out.TopNodes, out.Fresh, out.Metrics

		// The top-nodes file marks completion, so it goes last.
		if fresh != nil {
			if err := artifact.WriteRanked(freshPath, fresh, graph.FormatRankedCSV); err != nil {
				return eval.TrialResult{}, err
			}
		}
		if err := artifact.WriteRanked(topPath, top, graph.FormatRankedCSV); err != nil {
			return eval.TrialResult{}, err
		}
		if err := os.RemoveAll(req.WorkDir); err != nil {
			log.Warn("could not remove engine work dir", zap.Error(err))
		}
	}

	if _, err := store.MaybeUpdate(seed, fresh, plan.next); err != nil {
		if !errors.Is(err, oracle.ErrMissingUpdateArtifact) {
			return eval.TrialResult{}, err
		}
		log.Warn("no summary refresh available; predictor carried forward", zap.Error(err))
	}

	scores, err := eval.Evaluate(plan.truth, top)
	if err != nil {
		return eval.TrialResult{}, fmt.Errorf("runner: snapshot %d: %w", idx, err)
	}

	res := eval.TrialResult{
		Experiment: in.Experiment,
		Algo:       in.label(),
		C:          in.C,
		Snapshot:   idx,
		Seed:       seed,
		Recall:     scores.Recall,
		RBO:        scores.RBO,
		Metrics:    trialMetrics(metrics, plan, o.Size()),
	}
	return r.record(res)
}

// record appends res and returns the row the ledger holds, which is the
// earlier one when res was already recorded.
func (r *Runner) record(res eval.TrialResult) (eval.TrialResult, error) {
	inserted, err := r.ledger.Append(res)
	if err != nil {
		return eval.TrialResult{}, err
	}
	if inserted {
		return res, nil
	}
	prev, ok, err := r.ledger.Get(res.Experiment, res.Snapshot, res.Seed)
	if err != nil || !ok {
		return res, err
	}
	return prev, nil
}

func trialMetrics(engineMetrics map[string]float64, plan snapshotPlan, oracleSize int) map[string]float64 {
	out := make(map[string]float64, len(engineMetrics)+5)
	maps.Copy(out, engineMetrics)
	out["total_edges"] = float64(plan.totalEdges)
	out["memory_budget"] = float64(plan.decision.MemoryBudget)
	out["oracle_size"] = float64(oracleSize)
	out["planned_oracle_size"] = float64(plan.decision.OracleSize)
	out["budget_extra"] = float64(plan.decision.Extra)
	return out
}

// exactCount returns the cached edge count of snap, running the engine on a
// cache miss.
func (r *Runner) exactCount(ctx context.Context, layout artifact.Layout, snap *graph.Snapshot) (int, error) {
	path := layout.ExactPath(snap.Index)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		m, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && m >= 0 {
			return m, nil
		}
		r.logger.Warn("ignoring unreadable exact count cache", zap.String("path", path))
	case !errors.Is(err, fs.ErrNotExist):
		return 0, err
	}

	m, err := r.engine.ExactCount(ctx, snap)
	if err != nil {
		return 0, fmt.Errorf("runner: exact count of snapshot %d: %w", snap.Index, err)
	}
	if err := artifact.WriteFileAtomic(path, []byte(strconv.Itoa(m)+"\n")); err != nil {
		return 0, err
	}
	return m, nil
}

func readRankedFiles(paths []string, f graph.Format) ([]graph.RankedList, error) {
	out := make([]graph.RankedList, len(paths))
	for i, p := range paths {
		list, err := graph.ReadRankedFile(p, f)
		if err != nil {
			return nil, fmt.Errorf("runner: ground truth %d: %w", i, err)
		}
		out[i] = list
	}
	return out, nil
}

// readOptionalRanked returns nil when path does not exist.
func readOptionalRanked(path string) (graph.RankedList, error) {
	list, err := graph.ReadRankedFile(path, graph.FormatRankedCSV)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return list, err
}
