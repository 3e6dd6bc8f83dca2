// Package shellexec runs cmd steps through a shell subprocess, capturing
// interleaved stdout and stderr as the step's transcript.
package shellexec

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chazuruo/drover/internal/engine"
)

// Runner executes shell commands. It implements engine.CommandRunner.
type Runner struct {
	shell  string
	dir    string
	env    map[string]string
	onLine func(string)
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell selects the shell binary (bash, zsh, sh, pwsh).
func WithShell(shell string) Option {
	return func(r *Runner) {
		if shell != "" {
			r.shell = shell
		}
	}
}

// WithDir sets the working directory for every command.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// WithEnv adds environment variables on top of the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(r *Runner) { r.env = env }
}

// WithLineHandler streams each output line as it is read, for live display.
func WithLineHandler(fn func(string)) Option {
	return func(r *Runner) { r.onLine = fn }
}

// New creates a shell runner. The default shell is bash.
func New(opts ...Option) *Runner {
	r := &Runner{shell: "bash"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes command via `<shell> -c` and reports the exit code and
// combined output. A nonzero exit is not an error; the error return is
// reserved for commands that could not be run at all. When ctx ends the
// subprocess is killed and the kill shows up as a negative exit code.
func (r *Runner) Run(ctx context.Context, command string) (*engine.CommandResult, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("empty command")
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	if r.dir != "" {
		cmd.Dir = r.dir
	}
	if len(r.env) > 0 {
		cmd.Env = append([]string{}, os.Environ()...)
		for k, v := range r.env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	// Both streams feed one transcript; the mutex keeps the interleaving
	// at line granularity.
	var mu sync.Mutex
	var output bytes.Buffer
	collect := func(rd io.Reader) {
		scanner := newLineScanner(rd)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			output.WriteString(line + "\n")
			mu.Unlock()
			if r.onLine != nil {
				r.onLine(line)
			}
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		collect(stdout)
	}()
	go func() {
		defer wg.Done()
		collect(stderr)
	}()

	// Drain both pipes before Wait; Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()

	res := &engine.CommandResult{
		Output:   output.Bytes(),
		Duration: time.Since(start),
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			res.ExitCode = getExitCode(exitErr)
			return res, nil
		}
		return nil, waitErr
	}
	res.ExitCode = 0
	return res, nil
}

// getExitCode extracts the exit code from an exec.ExitError.
func getExitCode(err *exec.ExitError) int {
	if status, ok := err.Sys().(syscall.WaitStatus); ok {
		return status.ExitStatus()
	}
	return 1
}

// lineScanner provides line-by-line scanning that still yields a trailing
// line with no newline.
type lineScanner struct {
	reader *bufio.Reader
	line   string
	err    error
}

func newLineScanner(r io.Reader) *lineScanner {
	return &lineScanner{reader: bufio.NewReader(r)}
}

func (s *lineScanner) Scan() bool {
	s.line, s.err = s.reader.ReadString('\n')
	if s.err != nil {
		if s.err == io.EOF {
			return s.line != ""
		}
		return false
	}
	return true
}

func (s *lineScanner) Text() string {
	return strings.TrimSuffix(s.line, "\n")
}

func (s *lineScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
