package artifact

import (
	"fmt"
	"path/filepath"
)

// Layout maps experiment artifacts to paths under Root/Experiment.
//
// Directory structure:
//
//	<root>/<experiment>/
//	  exact/s0000.txt                  edge count per snapshot
//	  oracles/oracle_<exp>_seed<r>.txt per-seed predictor lineage
//	  seed<r>/top_s0000.csv            core ranked top nodes
//	  seed<r>/fresh_s0000.csv          summary refresh for the next snapshot
//	  seed<r>/recall.txt, rbo.txt      per-metric logs
//	  work/seed<r>/s0000/              engine scratch space
//	  ledger/                          trial result ledger
//	  suites/<suite>/                  similarity suite results and metric logs
//	  summary.csv, aggregate.csv
type Layout struct {
	Root       string
	Experiment string
}

// NewLayout returns a Layout for experiment under root.
func NewLayout(root, experiment string) Layout {
	return Layout{Root: root, Experiment: experiment}
}

// Dir is the experiment directory.
func (l Layout) Dir() string {
	return filepath.Join(l.Root, l.Experiment)
}

// ExactPath holds the exact edge count of a snapshot.
func (l Layout) ExactPath(snapshot int) string {
	return filepath.Join(l.Dir(), "exact", fmt.Sprintf("s%04d.txt", snapshot))
}

// SeedDir groups everything owned by one trial seed.
func (l Layout) SeedDir(seed int64) string {
	return filepath.Join(l.Dir(), fmt.Sprintf("seed%d", seed))
}

// OraclePath is the per-seed oracle artifact. The file name carries both
// the experiment name and the seed so it stays unique even if copied out of
// its directory.
func (l Layout) OraclePath(seed int64) string {
	return filepath.Join(l.Dir(), "oracles", fmt.Sprintf("oracle_%s_seed%d.txt", l.Experiment, seed))
}

// TopNodesPath is the core algorithm's ranked output for (snapshot, seed).
// Its presence marks the trial as complete.
func (l Layout) TopNodesPath(snapshot int, seed int64) string {
	return filepath.Join(l.SeedDir(seed), fmt.Sprintf("top_s%04d.csv", snapshot))
}

// FreshPath is the summary refresh produced at (snapshot, seed).
func (l Layout) FreshPath(snapshot int, seed int64) string {
	return filepath.Join(l.SeedDir(seed), fmt.Sprintf("fresh_s%04d.csv", snapshot))
}

// MetricLogPath is the append-style log of one metric for one seed.
func (l Layout) MetricLogPath(seed int64, metric string) string {
	return filepath.Join(l.SeedDir(seed), metric+".txt")
}

// WorkDir is engine scratch space for one invocation.
func (l Layout) WorkDir(snapshot int, seed int64) string {
	return filepath.Join(l.Dir(), "work", fmt.Sprintf("seed%d", seed), fmt.Sprintf("s%04d", snapshot))
}

// LedgerDir holds the trial result ledger.
func (l Layout) LedgerDir() string {
	return filepath.Join(l.Dir(), "ledger")
}

// SummaryPath is the per-trial summary CSV.
func (l Layout) SummaryPath() string {
	return filepath.Join(l.Dir(), "summary.csv")
}

// AggregatePath is the per-snapshot aggregate CSV.
func (l Layout) AggregatePath() string {
	return filepath.Join(l.Dir(), "aggregate.csv")
}

// SuiteDir holds the results of one similarity suite.
func (l Layout) SuiteDir(suite string) string {
	return filepath.Join(l.Dir(), "suites", suite)
}
