package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/artifact"
	"github.com/orneryd/mdpredict/pkg/graph"
)

// execCommand is swapped in tests.
var execCommand = exec.CommandContext

// maxStderr bounds how much of a failed process's stderr is kept.
const maxStderr = 2048

// ProcessConfig locates the engine binaries.
type ProcessConfig struct {
	ExactBinary   string
	CoreBinary    string
	SummaryBinary string
	CoreEpsilon   float64
	CoreDelta     float64
	// ScratchDir holds temporary output of exact and summary runs. Empty
	// uses the system temp directory.
	ScratchDir string
}

// ProcessEngine runs the external binaries, one blocking process per call.
type ProcessEngine struct {
	cfg    ProcessConfig
	logger *zap.Logger
}

// NewProcessEngine returns an engine using cfg.
func NewProcessEngine(cfg ProcessConfig, logger *zap.Logger) *ProcessEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessEngine{cfg: cfg, logger: logger.Named("engine")}
}

func datasetPath(snap *graph.Snapshot) (string, error) {
	if snap == nil || snap.Path == "" {
		return "", fmt.Errorf("%w: process engine needs a snapshot file", ErrInvalidRequest)
	}
	return snap.Path, nil
}

func (e *ProcessEngine) run(ctx context.Context, bin string, args ...string) error {
	if bin == "" {
		return fmt.Errorf("%w: binary path not configured", ErrInvalidRequest)
	}
	cmd := execCommand(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("spawning engine process", zap.String("bin", bin), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		cerr := &CommandError{Path: bin, Args: args, ExitCode: -1, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		cerr.Stderr = msg
		return cerr
	}
	return nil
}

func (e *ProcessEngine) scratch(pattern string) (string, func(), error) {
	if e.cfg.ScratchDir != "" {
		if err := os.MkdirAll(e.cfg.ScratchDir, 0755); err != nil {
			return "", nil, err
		}
	}
	dir, err := os.MkdirTemp(e.cfg.ScratchDir, pattern)
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// ExactCount runs the exact binary and parses the edge count.
func (e *ProcessEngine) ExactCount(ctx context.Context, snap *graph.Snapshot) (int, error) {
	dataset, err := datasetPath(snap)
	if err != nil {
		return 0, err
	}
	dir, cleanup, err := e.scratch("exact-*")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	out := filepath.Join(dir, "exact_output.txt")
	if err := e.run(ctx, e.cfg.ExactBinary, "0", dataset, out); err != nil {
		return 0, err
	}
	f, err := os.Open(out)
	if err != nil {
		return 0, fmt.Errorf("%w: exact output: %v", ErrExchange, err)
	}
	defer f.Close()
	return ParseExactOutput(f)
}

// Summarize runs the summary binary with capacity tracked nodes and returns
// everything it reports.
func (e *ProcessEngine) Summarize(ctx context.Context, snap *graph.Snapshot, capacity int, seed int64) (graph.RankedList, error) {
	dataset, err := datasetPath(snap)
	if err != nil {
		return nil, err
	}
	dir, cleanup, err := e.scratch("summary-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	prefix := filepath.Join(dir, "summary")
	k := strconv.Itoa(capacity)
	if err := e.run(ctx, e.cfg.SummaryBinary, dataset, prefix, k, strconv.FormatInt(seed, 10), k); err != nil {
		return nil, err
	}
	list, err := graph.ReadRankedFile(prefix+freshSuffix, graph.FormatRankedCSV)
	if err != nil {
		return nil, fmt.Errorf("%w: summary output: %v", ErrExchange, err)
	}
	return list, nil
}

// RunCore writes the oracle to WorkDir, runs the core binary and collects
// its outputs.
func (e *ProcessEngine) RunCore(ctx context.Context, req CoreRequest) (CoreResult, error) {
	if err := req.Validate(); err != nil {
		return CoreResult{}, err
	}
	dataset, err := datasetPath(req.Snapshot)
	if err != nil {
		return CoreResult{}, err
	}
	if req.WorkDir == "" {
		return CoreResult{}, fmt.Errorf("%w: work dir required", ErrInvalidRequest)
	}

	oraclePath := filepath.Join(req.WorkDir, "oracle.txt")
	if err := artifact.WriteRanked(oraclePath, req.Oracle, graph.FormatDegreeText); err != nil {
		return CoreResult{}, err
	}
	prefix := filepath.Join(req.WorkDir, "core")
	// Stale outputs from an interrupted run must not be picked up.
	for _, suffix := range []string{predictedSuffix, freshSuffix, metricsSuffix} {
		os.Remove(prefix + suffix)
	}

	args := []string{
		"0",
		strconv.FormatInt(req.Seed, 10),
		strconv.Itoa(req.MemoryBudget),
		strconv.FormatFloat(e.cfg.CoreEpsilon, 'g', -1, 64),
		strconv.FormatFloat(e.cfg.CoreDelta, 'g', -1, 64),
		dataset,
		oraclePath,
		"nodes",
		prefix,
	}
	if req.UpdateSize > 0 {
		args = append(args, "1", strconv.Itoa(req.UpdateCapacity), strconv.Itoa(req.UpdateSize))
	}
	if err := e.run(ctx, e.cfg.CoreBinary, args...); err != nil {
		return CoreResult{}, err
	}

	var res CoreResult
	res.TopNodes, err = graph.ReadRankedFile(prefix+predictedSuffix, graph.FormatRankedCSV)
	if err != nil {
		return CoreResult{}, fmt.Errorf("%w: predicted nodes: %v", ErrExchange, err)
	}
	if req.UpdateSize > 0 {
		fresh, err := graph.ReadRankedFile(prefix+freshSuffix, graph.FormatRankedCSV)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			e.logger.Warn("core run produced no summary refresh", zap.String("prefix", prefix))
		case err != nil:
			return CoreResult{}, fmt.Errorf("%w: top nodes: %v", ErrExchange, err)
		default:
			res.Fresh = fresh
		}
	}
	res.Metrics, err = readMetricsFile(prefix + metricsSuffix)
	if err != nil {
		return CoreResult{}, err
	}
	return res, nil
}
