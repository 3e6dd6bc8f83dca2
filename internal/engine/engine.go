// Package engine drives a validated workflow's steps through their state
// machine: pending, running, then one of succeeded, failed,
// policy_violation, or skipped.
//
// Steps execute strictly sequentially. The engine owns no I/O of its own
// beyond the run store; the actual work happens in the type-specific
// executors (command runner, agent runner, diff applier), which are injected
// as interfaces. All nondeterminism lives in those executors: given the same
// definition and the same executor results, the engine produces the same
// sequence of states.
//
// Durability rule: every step transition is written to the run store before
// the engine advances, so a crash at any point leaves a resumable, coherent
// run-state on disk.
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/chazuruo/drover/internal/runstore"
	"github.com/chazuruo/drover/internal/workflow"
)

// Plan is everything a run needs: the resolved definition plus the
// provenance of the document it came from.
type Plan struct {
	// Definition is the validated, placeholder-resolved workflow.
	Definition *workflow.Workflow
	// WorkflowPath is the document's location, recorded for resume.
	WorkflowPath string
	// DefinitionHash is the digest of the document's raw bytes.
	DefinitionHash string
}

// CommandResult is what a command runner reports for a cmd step. A command
// that ran to completion returns a result and a nil error even when the
// exit code is nonzero; errors are reserved for "could not run".
type CommandResult struct {
	ExitCode int
	Output   []byte
	Duration time.Duration
}

// CommandRunner executes a cmd step's shell command. Implementations must
// kill the subprocess when ctx ends.
type CommandRunner interface {
	Run(ctx context.Context, command string) (*CommandResult, error)
}

// AgentEventType tags one observation from the agent runner's event stream.
type AgentEventType string

const (
	AgentFileTouched AgentEventType = "file_touched"
	AgentEditApplied AgentEventType = "edit_applied"
	AgentCommand     AgentEventType = "command"
	AgentMessage     AgentEventType = "message"
)

// AgentEvent is one observation reported live by the agent runner.
type AgentEvent struct {
	Type AgentEventType `json:"type"`
	Path string         `json:"path,omitempty"`
	Argv []string       `json:"argv,omitempty"`
	Text string         `json:"text,omitempty"`
}

// AgentRequest carries a prompt or agent step to the agent runner.
type AgentRequest struct {
	StepID      string
	Model       string
	PromptFile  string                // prompt steps
	Tools       []string
	InputFilter *workflow.InputFilter // prompt steps
	Policy      *workflow.Policy      // agent steps; nil for prompt steps
}

// AgentResult is the agent runner's final report.
type AgentResult struct {
	ExitCode   int
	Transcript []byte
	Diff       []byte // proposed edits as a unified diff, if any
}

// AgentRunner performs the language-model-driven work of prompt and agent
// steps. Implementations stream each observation to onEvent as it happens;
// a non-nil return from onEvent must cancel the in-flight work. The run
// must also be killed when ctx ends.
type AgentRunner interface {
	Run(ctx context.Context, req AgentRequest, onEvent func(AgentEvent) error) (*AgentResult, error)
}

// DiffRequest asks the diff applier to commit proposed edits.
type DiffRequest struct {
	StepID   string
	DiffPath string
	// Approve skips the confirmation gate when true.
	Approve bool
}

// DiffResult reports whether the edits were committed.
type DiffResult struct {
	Applied bool
	Reason  string
}

// DiffApplier commits a proposed diff to the working tree, optionally
// behind a confirmation gate.
type DiffApplier interface {
	Apply(ctx context.Context, req DiffRequest) (*DiffResult, error)
}

// EventType tags an engine progress event.
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventStepStarted     EventType = "step_started"
	EventStepCompleted   EventType = "step_completed"
	EventPolicyViolation EventType = "policy_violation"
	EventRunCompleted    EventType = "run_completed"
)

// Event is a progress notification, emitted only after the transition it
// describes has been durably persisted.
type Event struct {
	Type      EventType
	RunID     string
	StepID    string
	StepIndex int
	Status    string
	Message   string
	Time      time.Time
}

// Engine executes runs against a store and a set of executors.
type Engine struct {
	store  *runstore.Store
	cmd    CommandRunner
	agent  AgentRunner
	differ DiffApplier
	clock  func() time.Time
	log    *slog.Logger
	events func(Event)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithCommandRunner sets the executor for cmd steps.
func WithCommandRunner(r CommandRunner) Option {
	return func(e *Engine) { e.cmd = r }
}

// WithAgentRunner sets the executor for prompt and agent steps.
func WithAgentRunner(r AgentRunner) Option {
	return func(e *Engine) { e.agent = r }
}

// WithDiffApplier sets the executor for apply_diff steps.
func WithDiffApplier(d DiffApplier) Option {
	return func(e *Engine) { e.differ = d }
}

// WithLogger sets the diagnostic logger. The per-run event log in the run
// directory is separate and always written.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithEvents sets a progress event sink.
func WithEvents(sink func(Event)) Option {
	return func(e *Engine) { e.events = sink }
}

// New creates an engine over the given store.
func New(store *runstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		clock:  time.Now,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		events: func(Event) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) emit(ev Event) {
	ev.Time = e.clock()
	e.events(ev)
}
