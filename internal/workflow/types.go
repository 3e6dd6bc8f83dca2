package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SchemaVersion is the workflow schema version this build understands.
const SchemaVersion = 1

// StepType discriminates the four step variants.
type StepType string

const (
	StepPrompt    StepType = "prompt"
	StepCmd       StepType = "cmd"
	StepAgent     StepType = "agent"
	StepApplyDiff StepType = "apply_diff"
)

// Known reports whether t is a step type this build understands.
func (t StepType) Known() bool {
	switch t {
	case StepPrompt, StepCmd, StepAgent, StepApplyDiff:
		return true
	}
	return false
}

// OnError selects how a cmd step's nonzero exit affects the run.
type OnError string

const (
	// OnErrorFail aborts the run (the default).
	OnErrorFail OnError = "fail"
	// OnErrorContinue records the failure but lets the run proceed.
	OnErrorContinue OnError = "continue"
)

// Workflow is a validated, immutable description of an ordered sequence of
// steps. Document order is execution order.
type Workflow struct {
	SchemaVersion int       `yaml:"schema_version" json:"schema_version"`
	Name          string    `yaml:"name" json:"name"`                               // Display name
	Model         string    `yaml:"model" json:"model"`                             // Model reference, may hold ${VAR} until resolved
	Guardrails    []string  `yaml:"guardrails,omitempty" json:"guardrails,omitempty"` // Optional guardrail identifiers
	Env           *EnvBlock `yaml:"env,omitempty" json:"env,omitempty"`
	Steps         []Step    `yaml:"steps" json:"steps"`
}

// EnvBlock bounds a run and locates its artifacts.
type EnvBlock struct {
	MaxRuntimeSeconds int    `yaml:"max_runtime_seconds,omitempty" json:"max_runtime_seconds,omitempty"` // Whole-run deadline
	ArtifactsDir      string `yaml:"artifacts_dir,omitempty" json:"artifacts_dir,omitempty"`             // Run directory root template
}

// Step is one unit of work. The Type tag selects which of the variant
// fields are meaningful; Validate enforces that the mandatory one is set.
type Step struct {
	ID   string   `yaml:"id" json:"id"`
	Type StepType `yaml:"type" json:"type"`

	// prompt
	PromptFile     string       `yaml:"prompt_file,omitempty" json:"prompt_file,omitempty"`
	AvailableTools []string     `yaml:"available_tools,omitempty" json:"available_tools,omitempty"` // prompt and agent steps
	InputFilter    *InputFilter `yaml:"input_filter,omitempty" json:"input_filter,omitempty"`

	// cmd
	Command string  `yaml:"command,omitempty" json:"command,omitempty"`
	OnError OnError `yaml:"on_error,omitempty" json:"on_error,omitempty"`

	// agent
	Policy *Policy `yaml:"policy,omitempty" json:"policy,omitempty"`

	// apply_diff
	Approve bool `yaml:"approve,omitempty" json:"approve,omitempty"`
}

// UnmarshalYAML applies variant defaults after decoding.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type rawStep Step
	var raw rawStep
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Type == StepCmd && raw.OnError == "" {
		raw.OnError = OnErrorFail
	}
	*s = Step(raw)
	return nil
}

// InputFilter narrows which files a prompt step may read.
type InputFilter struct {
	PathGlobs     []string `yaml:"path_globs,omitempty" json:"path_globs,omitempty"`
	MaxFileSizeKB int      `yaml:"max_file_size_kb,omitempty" json:"max_file_size_kb,omitempty"`
}

// Policy is the budget attached to an agent step: time, file count, edit
// count, path scope, and command scope.
type Policy struct {
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxFiles       int      `yaml:"max_files" json:"max_files"`
	MaxEdits       int      `yaml:"max_edits" json:"max_edits"` // Must be at least 1
	AllowedPaths   []string `yaml:"allowed_paths" json:"allowed_paths"`
	CmdAllowlist   []string `yaml:"cmd_allowlist" json:"cmd_allowlist"` // Empty means no subprocess allowed
}

// StepIndex returns the position of the step with the given id, or -1.
func (w *Workflow) StepIndex(id string) int {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// MarshalWorkflow marshals a workflow to YAML bytes.
func MarshalWorkflow(wf *Workflow) ([]byte, error) {
	data, err := yaml.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}
	return data, nil
}
