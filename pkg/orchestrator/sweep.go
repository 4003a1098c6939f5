package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	// ErrConfigMismatch reports per-dataset lists of different lengths.
	ErrConfigMismatch = errors.New("orchestrator: sweep lists differ in length")
	ErrInvalidSweep   = errors.New("orchestrator: invalid sweep")
)

// Sweep is the YAML description of a batch of experiments. The per-dataset
// lists are parallel: entry i of each describes dataset i.
//
// command is the worker subcommand: run, uss or similarity. Only run takes
// nbar_files and initial_predictors; similarity takes neither dataset
// folders nor c_values and n_trials, and starts one worker per oracle folder.
//
// Example:
//
//	command: run
//	dataset_folders: [data/wiki, data/dblp]
//	oracle_folders:  [oracles/wiki, oracles/dblp]
//	nbar_files:      [nbar/wiki.txt, nbar/dblp.txt]
//	initial_predictors: [degrees/wiki_s0.txt, degrees/dblp_s0.txt]
//	names:           [wiki, dblp]
//	c_values:        [1, 2, 4]
//	n_trials:        5
//	extra_args:      [--policy, split, --drift, uss-updated]
//	launch_delay:    1s
type Sweep struct {
	// Binary is the worker executable. Empty means the running binary.
	Binary  string `yaml:"binary"`
	Command string `yaml:"command"`

	DatasetFolders []string `yaml:"dataset_folders"`
	OracleFolders  []string `yaml:"oracle_folders"`
	// NBarFiles and InitialPredictors are optional; when present they must
	// match the other lists.
	NBarFiles         []string `yaml:"nbar_files"`
	InitialPredictors []string `yaml:"initial_predictors"`
	Names             []string `yaml:"names"`

	CValues     []int         `yaml:"c_values"`
	NTrials     int           `yaml:"n_trials"`
	ExtraArgs   []string      `yaml:"extra_args"`
	LaunchDelay time.Duration `yaml:"launch_delay"`
}

// DefaultLaunchDelay separates consecutive worker launches.
const DefaultLaunchDelay = time.Second

// LoadSweep reads a sweep file.
func LoadSweep(path string) (*Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Sweep{LaunchDelay: DefaultLaunchDelay}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("orchestrator: parse %s: %w", path, err)
	}
	return s, nil
}

// workerFlags lists the per-dataset inputs a worker command accepts.
type workerFlags struct {
	dataset bool
	perC    bool // one worker per c value, with --c and --trials
	nbar    bool // --nbar is required
	initial bool // --initial is accepted
}

var workerCommands = map[string]workerFlags{
	"run":        {dataset: true, perC: true, nbar: true, initial: true},
	"uss":        {dataset: true, perC: true},
	"similarity": {},
}

// Validate checks the sweep before anything is launched. Lists the command
// does not accept must be empty, so no worker is started with flags it
// would reject.
func (s *Sweep) Validate() error {
	if s.Command == "" {
		return fmt.Errorf("%w: command is empty", ErrInvalidSweep)
	}
	wf, ok := workerCommands[s.Command]
	if !ok {
		return fmt.Errorf("%w: unknown worker command %q", ErrInvalidSweep, s.Command)
	}
	n := len(s.OracleFolders)
	if n == 0 {
		return fmt.Errorf("%w: no oracle folders", ErrInvalidSweep)
	}
	if len(s.Names) != n {
		return fmt.Errorf("%w: %d oracle folders, %d names", ErrConfigMismatch, n, len(s.Names))
	}

	if err := s.checkList("dataset_folders", s.DatasetFolders, n, wf.dataset, wf.dataset); err != nil {
		return err
	}
	if err := s.checkList("nbar_files", s.NBarFiles, n, wf.nbar, wf.nbar); err != nil {
		return err
	}
	if err := s.checkList("initial_predictors", s.InitialPredictors, n, wf.initial, false); err != nil {
		return err
	}

	if wf.perC {
		if len(s.CValues) == 0 {
			return fmt.Errorf("%w: no c values", ErrInvalidSweep)
		}
		if s.NTrials <= 0 {
			return fmt.Errorf("%w: n_trials must be positive, got %d", ErrInvalidSweep, s.NTrials)
		}
	} else if len(s.CValues) != 0 || s.NTrials != 0 {
		return fmt.Errorf("%w: %s takes no c_values or n_trials", ErrInvalidSweep, s.Command)
	}
	if s.LaunchDelay < 0 {
		return fmt.Errorf("%w: negative launch delay", ErrInvalidSweep)
	}
	return nil
}

// checkList validates a per-dataset list against the oracle folder count.
func (s *Sweep) checkList(key string, list []string, n int, accepted, required bool) error {
	switch {
	case !accepted && len(list) != 0:
		return fmt.Errorf("%w: %s takes no %s", ErrInvalidSweep, s.Command, key)
	case required && len(list) == 0:
		return fmt.Errorf("%w: %s needs %s", ErrInvalidSweep, s.Command, key)
	case len(list) != 0 && len(list) != n:
		return fmt.Errorf("%w: %d oracle folders, %d %s", ErrConfigMismatch, n, len(list), key)
	}
	return nil
}

// Job is one worker invocation.
type Job struct {
	ID   uuid.UUID
	Name string
	Args []string
}

// Jobs expands a validated sweep, dataset-major: one job per (dataset, c)
// named "<name>_c<c>", or one per oracle folder named "<name>" for
// commands without a multiplier.
func (s *Sweep) Jobs() []Job {
	wf := workerCommands[s.Command]
	var jobs []Job
	for i, oracles := range s.OracleFolders {
		base := []string{s.Command}
		if wf.dataset {
			base = append(base, "--dataset", s.DatasetFolders[i])
		}
		base = append(base, "--oracles", oracles)
		if wf.nbar {
			base = append(base, "--nbar", s.NBarFiles[i])
		}
		if wf.initial && len(s.InitialPredictors) > 0 {
			base = append(base, "--initial", s.InitialPredictors[i])
		}

		if !wf.perC {
			jobs = append(jobs, s.job(s.Names[i], base))
			continue
		}
		for _, c := range s.CValues {
			name := fmt.Sprintf("%s_c%d", s.Names[i], c)
			args := append(slices.Clone(base), "--c", strconv.Itoa(c), "--trials", strconv.Itoa(s.NTrials))
			jobs = append(jobs, s.job(name, args))
		}
	}
	return jobs
}

func (s *Sweep) job(name string, args []string) Job {
	args = append(args, "--name", name)
	args = append(args, s.ExtraArgs...)
	return Job{ID: uuid.New(), Name: name, Args: args}
}
