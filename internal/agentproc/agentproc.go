// Package agentproc runs prompt and agent steps as a local agent CLI
// subprocess and parses NDJSON from its stdout for structured events.
//
// The subprocess contract: the step's parameters arrive in the
// environment (DROVER_STEP_ID, DROVER_MODEL, DROVER_PROMPT_FILE,
// DROVER_TOOLS, DROVER_INPUT_GLOBS, DROVER_POLICY_JSON, DROVER_DIFF_FILE),
// stdout carries one JSON object per line for observations the policy guard
// must see:
//
//	{"type":"file_touched","path":"internal/server.go"}
//	{"type":"edit_applied","path":"internal/server.go"}
//	{"type":"command","argv":["go","test","./..."]}
//	{"type":"message","text":"explaining the change"}
//
// Non-JSON stdout lines and all of stderr go to the transcript. A proposed
// diff, if the agent has one, is written to the file named by
// DROVER_DIFF_FILE before exit.
package agentproc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/chazuruo/drover/internal/engine"
)

// Runner launches the configured agent CLI. It implements
// engine.AgentRunner.
type Runner struct {
	argv []string
	dir  string
	env  map[string]string
	log  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithDir sets the working directory for the agent subprocess.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// WithEnv adds environment variables passed through to every subprocess.
func WithEnv(env map[string]string) Option {
	return func(r *Runner) { r.env = env }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// New creates a runner for the given agent command line, e.g.
// ["claude", "--output-format", "ndjson"].
func New(argv []string, opts ...Option) (*Runner, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty agent command")
	}
	r := &Runner{
		argv: argv,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the agent subprocess for one step, streaming each parsed
// event into onEvent. A non-nil return from onEvent kills the subprocess
// and is returned as Run's error, with the partial result still populated.
// Timeouts and cancellation arriving through ctx surface as the
// conventional 124 and 130 exit codes.
func (r *Runner) Run(ctx context.Context, req engine.AgentRequest, onEvent func(engine.AgentEvent) error) (*engine.AgentResult, error) {
	diffFile, err := os.CreateTemp("", "drover-diff-*.patch")
	if err != nil {
		return nil, fmt.Errorf("diff temp file: %w", err)
	}
	diffPath := diffFile.Name()
	diffFile.Close()
	defer os.Remove(diffPath)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.argv[0], r.argv[1:]...)
	if r.dir != "" {
		cmd.Dir = r.dir
	}
	cmd.Env = r.buildEnv(req, diffPath)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}

	var mu sync.Mutex
	var transcript bytes.Buffer
	appendLine := func(line string) {
		mu.Lock()
		transcript.WriteString(line + "\n")
		mu.Unlock()
	}

	// stopErr records the first onEvent refusal; it also kills the
	// subprocess via execCtx.
	var stopErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		buf := make([]byte, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			ev, ok := parseEvent(line)
			if !ok {
				appendLine(line)
				continue
			}
			if ev.Type == engine.AgentMessage {
				appendLine(ev.Text)
			}
			if stopErr != nil {
				// Already stopping; drain without forwarding.
				continue
			}
			if err := onEvent(ev); err != nil {
				stopErr = err
				cancel()
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		buf := make([]byte, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				appendLine(line)
			}
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
		switch {
		case stopErr != nil:
			exitCode = 130
		case execCtx.Err() == context.DeadlineExceeded:
			exitCode = 124
			r.log.Error("agent timed out", slog.String("step", req.StepID))
		case execCtx.Err() == context.Canceled:
			exitCode = 130
		}
	}

	res := &engine.AgentResult{
		ExitCode:   exitCode,
		Transcript: transcript.Bytes(),
	}
	if diff, rerr := os.ReadFile(diffPath); rerr == nil && len(bytes.TrimSpace(diff)) > 0 {
		res.Diff = diff
	}
	return res, stopErr
}

// buildEnv assembles the subprocess environment from the inherited one,
// the passthrough set, and the step's parameters.
func (r *Runner) buildEnv(req engine.AgentRequest, diffPath string) []string {
	env := os.Environ()
	for k, v := range r.env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	env = append(env,
		fmt.Sprintf("DROVER_STEP_ID=%s", req.StepID),
		fmt.Sprintf("DROVER_MODEL=%s", req.Model),
		fmt.Sprintf("DROVER_DIFF_FILE=%s", diffPath),
	)
	if req.PromptFile != "" {
		env = append(env, fmt.Sprintf("DROVER_PROMPT_FILE=%s", req.PromptFile))
	}
	if len(req.Tools) > 0 {
		env = append(env, fmt.Sprintf("DROVER_TOOLS=%s", strings.Join(req.Tools, ",")))
	}
	if req.InputFilter != nil && len(req.InputFilter.PathGlobs) > 0 {
		env = append(env, fmt.Sprintf("DROVER_INPUT_GLOBS=%s", strings.Join(req.InputFilter.PathGlobs, ",")))
	}
	if req.Policy != nil {
		if data, err := json.Marshal(req.Policy); err == nil {
			env = append(env, fmt.Sprintf("DROVER_POLICY_JSON=%s", data))
		}
	}
	return env
}

// parseEvent decodes one NDJSON line. Lines that are not JSON, or JSON
// without a known type, belong to the transcript instead.
func parseEvent(line string) (engine.AgentEvent, bool) {
	var ev engine.AgentEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return engine.AgentEvent{}, false
	}
	switch ev.Type {
	case engine.AgentFileTouched, engine.AgentEditApplied, engine.AgentCommand, engine.AgentMessage:
		return ev, true
	}
	return engine.AgentEvent{}, false
}
