// Package orchestrator fans a sweep of experiments out to worker processes.
//
// Each (dataset, c) combination runs in its own process so that a crash in
// one experiment cannot take the others down. Launches are spaced by a rate
// limiter; after the last launch the orchestrator waits for every worker and
// reports each exit status. There is no cancellation beyond the parent
// context: cancelling it kills running workers and stops further launches.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RunIDEnv carries the job id into the worker's environment.
const RunIDEnv = "MDPREDICT_RUN_ID"

// ErrWorkerFailed is returned when at least one worker did not exit cleanly.
var ErrWorkerFailed = errors.New("orchestrator: worker failed")

// execCommand is swapped in tests.
var execCommand = exec.CommandContext

// Status is the outcome of one job. ExitCode is -1 when the worker never
// ran to completion.
type Status struct {
	Job      Job
	ExitCode int
	Err      error
	Duration time.Duration
}

// Failed reports whether the job did not succeed.
func (s Status) Failed() bool { return s.Err != nil || s.ExitCode != 0 }

// Options configures an Orchestrator.
type Options struct {
	// Binary runs when the sweep names none.
	Binary string
	// Stdout and Stderr receive worker output. Nil discards it.
	Stdout, Stderr io.Writer
	Logger         *zap.Logger
}

// Orchestrator launches and awaits sweep workers.
type Orchestrator struct {
	binary         string
	stdout, stderr io.Writer
	logger         *zap.Logger
}

// New returns an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		binary: opts.Binary,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
		logger: opts.Logger.Named("orchestrator"),
	}
}

// Run launches every job of sweep and waits for all of them. Statuses are
// returned in launch order. The error wraps ErrWorkerFailed when any worker
// failed, or the context error when launching was cut short.
func (o *Orchestrator) Run(ctx context.Context, sweep *Sweep) ([]Status, error) {
	if err := sweep.Validate(); err != nil {
		return nil, err
	}
	binary := sweep.Binary
	if binary == "" {
		binary = o.binary
	}
	if binary == "" {
		return nil, fmt.Errorf("%w: no worker binary", ErrInvalidSweep)
	}

	limit := rate.Inf
	if sweep.LaunchDelay > 0 {
		limit = rate.Every(sweep.LaunchDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	jobs := sweep.Jobs()
	statuses := make([]Status, len(jobs))
	var mu sync.Mutex
	var g errgroup.Group

	for i, job := range jobs {
		statuses[i] = Status{Job: job, ExitCode: -1}
		if err := limiter.Wait(ctx); err != nil {
			statuses[i].Err = err
			continue
		}

		cmd := execCommand(ctx, binary, job.Args...)
		cmd.Env = append(cmd.Environ(), RunIDEnv+"="+job.ID.String())
		cmd.Stdout = o.stdout
		cmd.Stderr = o.stderr

		o.logger.Info("launching worker",
			zap.String("name", job.Name),
			zap.String("run_id", job.ID.String()),
			zap.String("cmd", binary+" "+strings.Join(job.Args, " ")))
		start := time.Now()
		if err := cmd.Start(); err != nil {
			statuses[i].Err = err
			continue
		}

		g.Go(func() error {
			err := cmd.Wait()
			mu.Lock()
			defer mu.Unlock()
			st := &statuses[i]
			st.Duration = time.Since(start)
			st.ExitCode = cmd.ProcessState.ExitCode()
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) {
				st.Err = err
			}
			return nil
		})
	}

	o.logger.Info("all workers launched; waiting for completion", zap.Int("workers", len(jobs)))
	_ = g.Wait()

	failed := 0
	for _, st := range statuses {
		fields := []zap.Field{zap.String("name", st.Job.Name), zap.Int("exit_code", st.ExitCode), zap.Duration("duration", st.Duration)}
		if st.Failed() {
			failed++
			o.logger.Warn("worker failed", append(fields, zap.Error(st.Err))...)
			continue
		}
		o.logger.Info("worker finished", fields...)
	}

	if err := ctx.Err(); err != nil {
		return statuses, err
	}
	if failed > 0 {
		return statuses, fmt.Errorf("%w: %d of %d workers", ErrWorkerFailed, failed, len(statuses))
	}
	return statuses, nil
}

// Report writes one "<name> finished with exit code <n>" line per job.
func Report(w io.Writer, statuses []Status) {
	if w == nil {
		w = os.Stdout
	}
	for _, st := range statuses {
		if st.Err != nil && st.ExitCode == -1 {
			fmt.Fprintf(w, "%s did not run: %v\n", st.Job.Name, st.Err)
			continue
		}
		fmt.Fprintf(w, "%s finished with exit code %d\n", st.Job.Name, st.ExitCode)
	}
}
