package orchestrator

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func fakeExecCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

// TestHelperProcess plays a sweep worker. Workers named bad_* exit 2.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[2:] // "--" and the binary name

	if os.Getenv(RunIDEnv) == "" {
		os.Exit(3)
	}
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "--name" {
			os.Stdout.WriteString("worker " + args[i+1] + "\n")
			if strings.HasPrefix(args[i+1], "bad") {
				os.Exit(2)
			}
		}
	}
	os.Exit(0)
}

func useFakeExec(t *testing.T) {
	t.Helper()
	execCommand = fakeExecCommand
	t.Cleanup(func() { execCommand = exec.CommandContext })
}

func sweep(names ...string) *Sweep {
	s := &Sweep{
		Command:     "uss",
		CValues:     []int{1, 2},
		NTrials:     3,
		LaunchDelay: time.Millisecond,
	}
	for _, n := range names {
		s.DatasetFolders = append(s.DatasetFolders, "data/"+n)
		s.OracleFolders = append(s.OracleFolders, "oracles/"+n)
		s.Names = append(s.Names, n)
	}
	return s
}

// =============================================================================
// Sweep
// =============================================================================

func TestLoadSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	doc := `
command: run
dataset_folders: [data/wiki, data/dblp]
oracle_folders: [oracles/wiki, oracles/dblp]
nbar_files: [nbar/wiki.txt, nbar/dblp.txt]
initial_predictors: [degrees/wiki.txt, degrees/dblp.txt]
names: [wiki, dblp]
c_values: [1, 4]
n_trials: 5
extra_args: [--policy, split]
launch_delay: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	s, err := LoadSweep(path)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	assert.Equal(t, 250*time.Millisecond, s.LaunchDelay)

	jobs := s.Jobs()
	require.Len(t, jobs, 4)
	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"wiki_c1", "wiki_c4", "dblp_c1", "dblp_c4"}, names)
	assert.Equal(t, []string{
		"run", "--dataset", "data/dblp", "--oracles", "oracles/dblp",
		"--nbar", "nbar/dblp.txt", "--initial", "degrees/dblp.txt",
		"--c", "4", "--trials", "5", "--name", "dblp_c4", "--policy", "split",
	}, jobs[3].Args)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)

	t.Run("default_delay", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "s.yaml")
		require.NoError(t, os.WriteFile(p, []byte("command: uss\n"), 0644))
		s, err := LoadSweep(p)
		require.NoError(t, err)
		assert.Equal(t, DefaultLaunchDelay, s.LaunchDelay)
	})
}

func TestSimilarityJobs(t *testing.T) {
	s := &Sweep{
		Command:       "similarity",
		OracleFolders: []string{"oracles/wiki", "oracles/dblp"},
		Names:         []string{"wiki", "dblp"},
	}
	require.NoError(t, s.Validate())

	jobs := s.Jobs()
	require.Len(t, jobs, 2, "one worker per oracle folder")
	assert.Equal(t, "wiki", jobs[0].Name)
	assert.Equal(t, []string{"similarity", "--oracles", "oracles/dblp", "--name", "dblp"}, jobs[1].Args)
}

func TestUSSJobsOmitRunOnlyFlags(t *testing.T) {
	s := sweep("wiki")
	require.NoError(t, s.Validate())
	for _, j := range s.Jobs() {
		assert.NotContains(t, j.Args, "--nbar")
		assert.NotContains(t, j.Args, "--initial")
		assert.Equal(t, "uss", j.Args[0])
	}
}

func TestSweepValidate(t *testing.T) {
	t.Run("mismatched_lists", func(t *testing.T) {
		s := sweep("wiki", "dblp")
		s.OracleFolders = s.OracleFolders[:1]
		assert.ErrorIs(t, s.Validate(), ErrConfigMismatch)

		s = sweep("wiki", "dblp")
		s.Command = "run"
		s.NBarFiles = []string{"only-one.txt"}
		assert.ErrorIs(t, s.Validate(), ErrConfigMismatch)
	})

	t.Run("flags_follow_command", func(t *testing.T) {
		s := sweep("wiki")
		s.Command = "train"
		assert.ErrorIs(t, s.Validate(), ErrInvalidSweep)

		s = sweep("wiki")
		s.NBarFiles = []string{"nbar/wiki.txt"}
		assert.ErrorIs(t, s.Validate(), ErrInvalidSweep, "uss takes no --nbar")

		s = sweep("wiki")
		s.Command = "run"
		assert.ErrorIs(t, s.Validate(), ErrInvalidSweep, "run needs n̄ files")

		s = sweep("wiki")
		s.Command = "similarity"
		assert.ErrorIs(t, s.Validate(), ErrInvalidSweep, "similarity takes no datasets or c values")
	})

	t.Run("missing_fields", func(t *testing.T) {
		s := sweep("wiki")
		s.Command = ""
		assert.ErrorIs(t, s.Validate(), ErrInvalidSweep)

		s = sweep("wiki")
		s.CValues = nil
		assert.ErrorIs(t, s.Validate(), ErrInvalidSweep)

		s = sweep("wiki")
		s.NTrials = 0
		assert.ErrorIs(t, s.Validate(), ErrInvalidSweep)

		assert.ErrorIs(t, sweep().Validate(), ErrInvalidSweep)
	})
}

// =============================================================================
// Orchestrator
// =============================================================================

func TestRunAllSucceed(t *testing.T) {
	defer goleak.VerifyNone(t)
	useFakeExec(t)

	var stdout bytes.Buffer
	o := New(Options{Binary: "mdpredict", Stdout: &stdout})
	statuses, err := o.Run(context.Background(), sweep("wiki", "dblp"))
	require.NoError(t, err)
	require.Len(t, statuses, 4)

	for _, st := range statuses {
		assert.False(t, st.Failed(), st.Job.Name)
		assert.Equal(t, 0, st.ExitCode)
	}
	assert.Equal(t, "dblp_c2", statuses[3].Job.Name)
	assert.Contains(t, stdout.String(), "worker wiki_c1")

	var report bytes.Buffer
	Report(&report, statuses)
	assert.Contains(t, report.String(), "wiki_c2 finished with exit code 0\n")
}

func TestRunReportsEveryFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	useFakeExec(t)

	o := New(Options{Binary: "mdpredict"})
	statuses, err := o.Run(context.Background(), sweep("wiki", "bad"))
	require.ErrorIs(t, err, ErrWorkerFailed)
	assert.Contains(t, err.Error(), "2 of 4 workers")

	require.Len(t, statuses, 4)
	assert.Equal(t, 0, statuses[0].ExitCode, "a failing worker does not stop the others")
	assert.Equal(t, 0, statuses[1].ExitCode)
	assert.Equal(t, 2, statuses[2].ExitCode)
	assert.Equal(t, 2, statuses[3].ExitCode)

	var report bytes.Buffer
	Report(&report, statuses)
	assert.Contains(t, report.String(), "bad_c1 finished with exit code 2")
}

func TestRunThrottlesLaunches(t *testing.T) {
	defer goleak.VerifyNone(t)
	useFakeExec(t)

	s := sweep("wiki", "dblp")
	s.LaunchDelay = 20 * time.Millisecond

	start := time.Now()
	_, err := New(Options{Binary: "mdpredict"}).Run(context.Background(), s)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 3*s.LaunchDelay, "four launches need three gaps")
}

func TestRunCancelledBeforeLaunch(t *testing.T) {
	defer goleak.VerifyNone(t)
	useFakeExec(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	statuses, err := New(Options{Binary: "mdpredict"}).Run(ctx, sweep("wiki"))
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.True(t, st.Failed())
		assert.Equal(t, -1, st.ExitCode)
	}

	var report bytes.Buffer
	Report(&report, statuses)
	assert.Contains(t, report.String(), "wiki_c1 did not run")
}

func TestRunNeedsBinary(t *testing.T) {
	_, err := New(Options{}).Run(context.Background(), sweep("wiki"))
	assert.ErrorIs(t, err, ErrInvalidSweep)
}
