// Package runstore persists runs on the filesystem.
//
// Each run owns one directory under the store root:
//
//	<root>/<runID>/
//	  run-state.json     status and timestamps for every step execution
//	  events.jsonl       engine event log
//	  <NN>-<stepID>/     per-step artifacts
//	    transcript.log   executor output
//	    policy.json      snapshot of the policy in force
//	    metrics.json     resource counters
//
// run-state.json is rewritten atomically (temp file + rename) after every
// step transition, before the engine advances. The store never deletes
// history. Distinct runs write to disjoint directories, so concurrent runs
// need no coordination.
package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/policy"
	"github.com/chazuruo/drover/internal/workflow"
)

// RunStatus is the overall status of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// StepStatus is the status of one step execution.
type StepStatus string

const (
	StepPending         StepStatus = "pending"
	StepRunning         StepStatus = "running"
	StepSucceeded       StepStatus = "succeeded"
	StepFailed          StepStatus = "failed"
	StepPolicyViolation StepStatus = "policy_violation"
	StepSkipped         StepStatus = "skipped"
)

// Terminal reports whether no further transition can happen from s.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepSucceeded, StepFailed, StepPolicyViolation, StepSkipped:
		return true
	}
	return false
}

// StepRecord is the persisted record of one attempt of one step.
type StepRecord struct {
	StepID      string            `json:"step_id"`
	Type        workflow.StepType `json:"type"`
	Status      StepStatus        `json:"status"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	ArtifactDir string            `json:"artifact_dir,omitempty"` // relative to the run dir
	ExitCode    *int              `json:"exit_code,omitempty"`
	// FailureNoted marks a cmd step that exited nonzero under
	// on_error: continue. Status stays succeeded for sequencing, but the
	// failure itself must survive in the record.
	FailureNoted bool              `json:"failure_noted,omitempty"`
	Violation    *policy.Violation `json:"violation,omitempty"`
	Metrics      *policy.Metrics   `json:"metrics,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// RunState describes one run: identity, the document it ran, and the status
// of every step execution. It is the single durable representation of a run.
type RunState struct {
	RunID          string       `json:"run_id"`
	WorkflowName   string       `json:"workflow_name"`
	WorkflowPath   string       `json:"workflow_path"`
	DefinitionHash string       `json:"definition_hash"`
	Model          string       `json:"model"`
	CreatedAt      time.Time    `json:"created_at"`
	Status         RunStatus    `json:"status"`
	Steps          []StepRecord `json:"steps"`
}

// StepIndex returns the position of the record for stepID, or -1.
func (s *RunState) StepIndex(stepID string) int {
	for i := range s.Steps {
		if s.Steps[i].StepID == stepID {
			return i
		}
	}
	return -1
}

// RunSummary is one row of List output.
type RunSummary struct {
	RunID        string
	WorkflowName string
	Status       RunStatus
	CreatedAt    time.Time
	StepsTotal   int
	StepsDone    int
}

const (
	stateFile     = "run-state.json"
	eventsFile    = "events.jsonl"
	transcriptLog = "transcript.log"
	policySnap    = "policy.json"
	metricsFile   = "metrics.json"
	proposedDiff  = "proposed.diff"
)

// Store persists runs under a root directory.
type Store struct {
	root string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store rooted at dir. The directory is created lazily on the
// first write.
func New(dir string, opts ...Option) *Store {
	s := &Store{root: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// RunDir returns the directory owned by runID.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// CreateRun makes the run directory and durably writes the initial state.
func (s *Store) CreateRun(state *RunState) error {
	dir := s.RunDir(state.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &errs.PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	return s.SaveRunState(state)
}

// SaveRunState atomically rewrites run-state.json. The temp file + rename
// sequence guarantees a reader never observes a half-written state, which is
// what makes crash-interrupted runs resumable.
func (s *Store) SaveRunState(state *RunState) error {
	dir := s.RunDir(state.RunID)
	path := filepath.Join(dir, stateFile)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &errs.PersistenceError{Op: "encode", Path: path, Err: err}
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".run-state-*.json")
	if err != nil {
		return &errs.PersistenceError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &errs.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &errs.PersistenceError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &errs.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &errs.PersistenceError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// LoadRunState reads a run's persisted state. A missing run reports
// errs.ErrNotFound; a present but unreadable state is a PersistenceError.
func (s *Store) LoadRunState(runID string) (*RunState, error) {
	path := filepath.Join(s.RunDir(runID), stateFile)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("run %q: %w", runID, errs.ErrNotFound)
	}
	if err != nil {
		return nil, &errs.PersistenceError{Op: "load", Path: path, Err: err}
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &errs.PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return &state, nil
}

// StepDirName names a step's artifact directory: a 2-digit sequence index
// keeps directory listings in execution order.
func StepDirName(index int, stepID string) string {
	return fmt.Sprintf("%02d-%s", index+1, stepID)
}

// CreateStepDir creates a step's artifact directory and returns its
// absolute path.
func (s *Store) CreateStepDir(runID, dirName string) (string, error) {
	dir := filepath.Join(s.RunDir(runID), dirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &errs.PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	return dir, nil
}

// WriteTranscript stores the executor's output for a step.
func (s *Store) WriteTranscript(runID, dirName string, transcript []byte) error {
	return s.writeStepFile(runID, dirName, transcriptLog, transcript)
}

// WritePolicySnapshot stores the policy in force for a step, so audits do
// not depend on the workflow document staying unchanged.
func (s *Store) WritePolicySnapshot(runID, dirName string, p *workflow.Policy) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return &errs.PersistenceError{Op: "encode", Path: policySnap, Err: err}
	}
	return s.writeStepFile(runID, dirName, policySnap, append(data, '\n'))
}

// WriteMetrics stores a step's final resource counters.
func (s *Store) WriteMetrics(runID, dirName string, m *policy.Metrics) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &errs.PersistenceError{Op: "encode", Path: metricsFile, Err: err}
	}
	return s.writeStepFile(runID, dirName, metricsFile, append(data, '\n'))
}

func (s *Store) writeStepFile(runID, dirName, name string, data []byte) error {
	if _, err := s.CreateStepDir(runID, dirName); err != nil {
		return err
	}
	path := filepath.Join(s.RunDir(runID), dirName, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &errs.PersistenceError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// WriteProposedDiff stores the unified diff an agent step proposed, for a
// later apply_diff step to pick up.
func (s *Store) WriteProposedDiff(runID, dirName string, diff []byte) error {
	return s.writeStepFile(runID, dirName, proposedDiff, diff)
}

// ProposedDiffPath returns where a step's proposed diff would live. The
// second return reports whether one actually exists.
func (s *Store) ProposedDiffPath(runID, dirName string) (string, bool) {
	path := filepath.Join(s.RunDir(runID), dirName, proposedDiff)
	if _, err := os.Stat(path); err != nil {
		return path, false
	}
	return path, true
}

// ReadTranscript returns a step's stored transcript.
func (s *Store) ReadTranscript(runID, dirName string) ([]byte, error) {
	path := filepath.Join(s.RunDir(runID), dirName, transcriptLog)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("transcript for %s/%s: %w", runID, dirName, errs.ErrNotFound)
	}
	if err != nil {
		return nil, &errs.PersistenceError{Op: "load", Path: path, Err: err}
	}
	return data, nil
}

// EventLog opens the run's events.jsonl for appending.
func (s *Store) EventLog(runID string) (io.WriteCloser, error) {
	dir := s.RunDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &errs.PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	path := filepath.Join(dir, eventsFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &errs.PersistenceError{Op: "open", Path: path, Err: err}
	}
	return f, nil
}

// List returns a summary of every run in the store, newest first. A present
// but unreadable run-state.json fails the listing rather than being
// silently skipped.
func (s *Store) List() ([]RunSummary, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.PersistenceError{Op: "list", Path: s.root, Err: err}
	}

	var out []RunSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		state, err := s.LoadRunState(e.Name())
		if errs.IsNotFound(err) {
			// Not a run directory.
			continue
		}
		if err != nil {
			return nil, err
		}

		done := 0
		for _, rec := range state.Steps {
			if rec.Status.Terminal() {
				done++
			}
		}
		out = append(out, RunSummary{
			RunID:        state.RunID,
			WorkflowName: state.WorkflowName,
			Status:       state.Status,
			CreatedAt:    state.CreatedAt,
			StepsTotal:   len(state.Steps),
			StepsDone:    done,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}
